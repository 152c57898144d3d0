// Package paths confines file operations to a single storage root.
// Every path a model supplies passes through a [Sandbox] before any
// filesystem call is made.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned when a path resolves outside the sandbox
// root after symlinks and ".." segments are evaluated.
var ErrEscapesRoot = errors.New("path escapes storage root")

// ErrRootProtected is returned when a destructive operation targets
// the sandbox root itself.
var ErrRootProtected = errors.New("Error: Cannot delete storage root.")

// Sandbox resolves caller-supplied paths against a canonical root.
type Sandbox struct {
	root string
}

// NewSandbox canonicalizes root (home expansion, absolute form and
// symlink evaluation when it exists) and returns a Sandbox for it.
func NewSandbox(root string) (*Sandbox, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("sandbox root is empty")
	}
	abs, err := filepath.Abs(ExpandHome(root))
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root %s: %w", root, err)
	}
	canon, err := evalExisting(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root %s: %w", root, err)
	}
	return &Sandbox{root: canon}, nil
}

// Root returns the canonical root directory.
func (s *Sandbox) Root() string {
	return s.root
}

// Resolve joins segments into a single path and canonicalizes it
// beneath the root. Relative paths are taken relative to the root.
// Absolute paths already inside the root are kept; any other absolute
// path is re-rooted, so "/notes.txt" means the root's notes.txt.
//
// The result is the root or a path beneath it. Anything else,
// including a symlink that points outside, yields [ErrEscapesRoot].
func (s *Sandbox) Resolve(segments ...string) (string, error) {
	candidate, err := s.candidate(segments)
	if err != nil {
		return "", err
	}

	canon, err := evalExisting(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", filepath.Join(segments...), err)
	}
	if !within(s.root, canon) {
		return "", fmt.Errorf("%s: %w", filepath.Join(segments...), ErrEscapesRoot)
	}
	return canon, nil
}

// ResolveEntry is like [Sandbox.Resolve] but leaves the final element
// unevaluated, so a symlink inside the root names the link itself
// rather than its target. Removal and rename use this form.
func (s *Sandbox) ResolveEntry(segments ...string) (string, error) {
	candidate, err := s.candidate(segments)
	if err != nil {
		return "", err
	}
	if candidate == s.root {
		return s.root, nil
	}

	parent, err := evalExisting(filepath.Dir(candidate))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", filepath.Join(segments...), err)
	}
	if !within(s.root, parent) {
		return "", fmt.Errorf("%s: %w", filepath.Join(segments...), ErrEscapesRoot)
	}
	return filepath.Join(parent, filepath.Base(candidate)), nil
}

// candidate joins segments lexically beneath the root without touching
// the filesystem.
func (s *Sandbox) candidate(segments []string) (string, error) {
	joined := filepath.Join(segments...)
	if joined == "" {
		joined = "."
	}

	var candidate string
	switch {
	case filepath.IsAbs(joined) && within(s.root, filepath.Clean(joined)):
		candidate = filepath.Clean(joined)
	case filepath.IsAbs(joined):
		candidate = filepath.Join(s.root, strings.TrimLeft(joined, string(filepath.Separator)))
	default:
		candidate = filepath.Join(s.root, joined)
	}

	if !within(s.root, candidate) {
		return "", fmt.Errorf("%s: %w", joined, ErrEscapesRoot)
	}
	return candidate, nil
}

// IsRoot reports whether the resolved path p is the root itself.
func (s *Sandbox) IsRoot(p string) bool {
	return filepath.Clean(p) == s.root
}

// Rel returns p relative to the root using forward slashes. The root
// itself is ".".
func (s *Sandbox) Rel(p string) string {
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// within reports whether p equals root or lies beneath it. Both must
// be clean absolute paths.
func within(root, p string) bool {
	if p == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

// evalExisting evaluates symlinks in the longest existing prefix of p
// and re-attaches the remainder, so paths that do not exist yet still
// resolve through symlinked parents.
func evalExisting(p string) (string, error) {
	existing := p
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return p, nil
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{resolved}, rest...)...), nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return filepath.Join(home, path[2:])
	}
	return path
}
