package defaults

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nugget/quill/internal/config"
)

func TestConfigYAML_Loads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, ConfigYAML, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(default config) error = %v", err)
	}
	if cfg.Models.Provider != config.ProviderOllama {
		t.Errorf("provider = %q, want %q", cfg.Models.Provider, config.ProviderOllama)
	}
	if cfg.Agent.MaxAutoRounds != config.DefaultMaxAutoRounds {
		t.Errorf("max_auto_rounds = %d, want %d", cfg.Agent.MaxAutoRounds, config.DefaultMaxAutoRounds)
	}
	if cfg.MQTT.Configured() {
		t.Error("mqtt should be disabled by default")
	}
}
