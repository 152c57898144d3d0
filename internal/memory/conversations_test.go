package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestConversations(t *testing.T) *ConversationStore {
	t.Helper()
	s, err := NewConversationStore(filepath.Join(t.TempDir(), "conversations"))
	if err != nil {
		t.Fatalf("NewConversationStore: %v", err)
	}
	return s
}

func TestConversationStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestConversations(t)

	transcript := "User: hi\nAssistant: hello\n"
	if err := s.Save(ctx, "first", transcript); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Saving again with the same transcript is idempotent.
	if err := s.Save(ctx, "first", transcript); err != nil {
		t.Fatalf("Save again: %v", err)
	}

	got, err := s.Load(ctx, "first")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != transcript {
		t.Errorf("Load = %q, want %q", got, transcript)
	}

	if err := s.Save(ctx, "first", "replaced"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = s.Load(ctx, "first")
	if got != "replaced" {
		t.Errorf("after overwrite Load = %q, want %q", got, "replaced")
	}
}

func TestConversationStore_LoadMissing(t *testing.T) {
	s := newTestConversations(t)
	_, err := s.Load(context.Background(), "ghost")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Load missing error = %v, want ErrConversationNotFound", err)
	}
}

func TestConversationStore_List(t *testing.T) {
	ctx := context.Background()
	s := newTestConversations(t)

	names, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List empty: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("List empty = %v, want none", names)
	}

	for _, n := range []string{"b", "a", "c"} {
		if err := s.Save(ctx, n, n); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(s.Dir(), "notes.md"), []byte("x"), 0o644)
	os.Mkdir(filepath.Join(s.Dir(), "sub.txt"), 0o755)

	names, err = s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, names); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestConversationStore_InvalidNames(t *testing.T) {
	ctx := context.Background()
	s := newTestConversations(t)

	for _, name := range []string{"", " ", ".", "..", "../escape", "a/b", `a\b`} {
		if err := s.Save(ctx, name, "x"); !errors.Is(err, ErrInvalidConversationName) {
			t.Errorf("Save(%q) error = %v, want ErrInvalidConversationName", name, err)
		}
		if _, err := s.Load(ctx, name); !errors.Is(err, ErrInvalidConversationName) {
			t.Errorf("Load(%q) error = %v, want ErrInvalidConversationName", name, err)
		}
	}
}
