package tools

import (
	"context"
	"log/slog"

	"github.com/nugget/quill/internal/memory"
)

// ConversationTools executes conversation commands against a
// transcript store.
type ConversationTools struct {
	store  *memory.ConversationStore
	logger *slog.Logger
}

// NewConversationTools creates conversation tools over store.
func NewConversationTools(store *memory.ConversationStore, logger *slog.Logger) *ConversationTools {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationTools{store: store, logger: logger.With("component", "conversation_tools")}
}

// Save writes transcript under name.
func (ct *ConversationTools) Save(ctx context.Context, name, transcript string) error {
	if err := ct.store.Save(ctx, name, transcript); err != nil {
		return err
	}
	ct.logger.Debug("conversation saved", "name", name, "bytes", len(transcript))
	return nil
}

// Load returns the transcript saved under name.
func (ct *ConversationTools) Load(ctx context.Context, name string) (string, error) {
	content, err := ct.store.Load(ctx, name)
	if err != nil {
		return "", err
	}
	ct.logger.Debug("conversation loaded", "name", name, "bytes", len(content))
	return content, nil
}

// List returns saved conversation names.
func (ct *ConversationTools) List(ctx context.Context) ([]string, error) {
	return ct.store.List(ctx)
}
