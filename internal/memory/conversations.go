// Package memory persists conversation transcripts as text files and
// journals every turn and command call in SQLite.
package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrConversationNotFound is returned by [ConversationStore.Load] when
// no transcript exists under the requested name.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrInvalidConversationName is returned for names that would leave the
// conversations directory.
var ErrInvalidConversationName = errors.New("invalid conversation name")

const conversationExt = ".txt"

// ConversationStore keeps saved transcripts as <name>.txt files in a
// single directory.
type ConversationStore struct {
	dir string
}

// NewConversationStore creates a store rooted at dir, creating the
// directory if needed.
func NewConversationStore(dir string) (*ConversationStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversations dir: %w", err)
	}
	return &ConversationStore{dir: dir}, nil
}

// Dir returns the directory transcripts are stored in.
func (s *ConversationStore) Dir() string {
	return s.dir
}

// Save writes transcript under name, replacing any previous content.
func (s *ConversationStore) Save(ctx context.Context, name, transcript string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(transcript), 0o644); err != nil {
		return fmt.Errorf("save conversation %s: %w", name, err)
	}
	return nil
}

// Load returns the saved transcript for name.
func (s *ConversationStore) Load(ctx context.Context, name string) (string, error) {
	path, err := s.path(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", name, ErrConversationNotFound)
		}
		return "", fmt.Errorf("load conversation %s: %w", name, err)
	}
	return string(data), nil
}

// List returns the names of saved conversations in sorted order.
// Entries without the transcript extension are ignored.
func (s *ConversationStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), conversationExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), conversationExt))
	}
	sort.Strings(names)
	return names, nil
}

// path maps a conversation name to its file, rejecting names with
// separators or dot segments.
func (s *ConversationStore) path(name string) (string, error) {
	switch {
	case strings.TrimSpace(name) == "",
		name == ".", name == "..",
		strings.ContainsAny(name, `/\`+"\x00"):
		return "", fmt.Errorf("%w: %q", ErrInvalidConversationName, name)
	}
	return filepath.Join(s.dir, name+conversationExt), nil
}
