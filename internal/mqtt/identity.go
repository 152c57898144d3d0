package mqtt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// identityFile holds the per-installation suffix under the data dir.
const identityFile = "mqtt_client_suffix"

// ClientID returns base followed by a suffix persisted in dataDir. The
// suffix is created on first use from a UUIDv7, so two installations
// sharing a broker never collide and a restart reconnects under the
// same identifier.
func ClientID(dataDir, base string) (string, error) {
	path := filepath.Join(dataDir, identityFile)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if suffix := strings.TrimSpace(string(data)); suffix != "" {
			return joinClientID(base, suffix), nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate client suffix: %w", err)
	}
	// The trailing block of a v7 UUID is random; the leading block is
	// a timestamp shared by installations created in the same second.
	suffix := id.String()[24:]
	if err := os.WriteFile(path, []byte(suffix+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("persist client suffix to %s: %w", path, err)
	}
	return joinClientID(base, suffix), nil
}

func joinClientID(base, suffix string) string {
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
