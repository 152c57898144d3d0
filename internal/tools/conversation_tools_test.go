package tools

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nugget/quill/internal/memory"
)

func TestConversationTools_RoundTrip(t *testing.T) {
	store, err := memory.NewConversationStore(filepath.Join(t.TempDir(), "convs"))
	if err != nil {
		t.Fatal(err)
	}
	ct := NewConversationTools(store, nil)
	ctx := context.Background()

	if err := ct.Save(ctx, "session_a", "User: hi\n"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := ct.Load(ctx, "session_a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "User: hi\n" {
		t.Errorf("Load = %q", got)
	}

	names, err := ct.List(ctx)
	if err != nil || len(names) != 1 || names[0] != "session_a" {
		t.Errorf("List = %v, %v; want [session_a]", names, err)
	}

	if _, err := ct.Load(ctx, "missing"); !errors.Is(err, memory.ErrConversationNotFound) {
		t.Errorf("Load missing error = %v", err)
	}
}
