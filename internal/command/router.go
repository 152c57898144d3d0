package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nugget/quill/internal/memory"
)

// FileSystem is the filesystem effector. Paths are as supplied by the
// model; the implementation confines them to its storage root.
type FileSystem interface {
	Cat(ctx context.Context, path string) (string, error)
	Copy(ctx context.Context, src, dest string) error
	Move(ctx context.Context, src, dest string) error
	Remove(ctx context.Context, path string, recursive bool) error
	Touch(ctx context.Context, path string) error
	Mkdir(ctx context.Context, path string) error
	Rmdir(ctx context.Context, path string) error
	List(ctx context.Context, path string, recursive bool) ([]string, error)
	Save(ctx context.Context, path, data string) error
}

// Conversations is the conversation effector.
type Conversations interface {
	Save(ctx context.Context, name, transcript string) error
	Load(ctx context.Context, name string) (string, error)
	List(ctx context.Context) ([]string, error)
}

// Conversation identifies the session a command runs within. Its name
// is the default for conv.save and conv.load; its transcript is what
// conv.save writes.
type Conversation struct {
	Name       string
	Transcript string
}

// Router dispatches bound commands to the effectors.
type Router struct {
	registry *Registry
	fs       FileSystem
	conv     Conversations
	logger   *slog.Logger
}

// NewRouter creates a router over the given registry and effectors.
func NewRouter(registry *Registry, files FileSystem, convs Conversations, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		fs:       files,
		conv:     convs,
		logger:   logger.With("component", "router"),
	}
}

// Registry returns the registry commands are validated against.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Execute validates, binds and routes a command given by name and raw
// parameters. Names outside the fs and conv namespaces fail with
// "Command not found" before validation.
func (r *Router) Execute(ctx context.Context, conv Conversation, name string, params map[string]any) Result {
	ns, _, _ := strings.Cut(name, ".")
	if ns != NamespaceFS && ns != NamespaceConv {
		return Result{Message: "Command not found", Kind: KindNotFound}
	}

	raw := map[string]any{"commandName": name}
	if params != nil {
		raw["parameters"] = params
	}
	v, err := r.registry.Validate(raw)
	if err != nil {
		return Result{Message: err.Error(), Kind: KindInvalidParams}
	}
	cmd, err := Bind(v)
	if err != nil {
		return Result{Message: err.Error(), Kind: KindInvalidParams}
	}
	return r.Route(ctx, conv, cmd)
}

// Route runs one bound command. Effector errors and panics become
// failed results; Route never returns an error.
func (r *Router) Route(ctx context.Context, conv Conversation, cmd Command) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("command panicked", "command", cmd.Name(), "panic", p)
			res = Result{Message: fmt.Sprintf("internal error: %v", p), Kind: KindIO}
		}
	}()

	switch c := cmd.(type) {
	case FsCat:
		content, err := r.fs.Cat(ctx, c.Path)
		if err != nil {
			return Fail(err)
		}
		return OK("File read successfully.", content)

	case FsCp:
		if err := r.fs.Copy(ctx, c.Src, c.Dest); err != nil {
			return Fail(err)
		}
		return OK("Copied to "+c.Dest, nil)

	case FsMv:
		if err := r.fs.Move(ctx, c.Src, c.Dest); err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("Moved/Renamed %s to %s", c.Src, c.Dest), nil)

	case FsRm:
		if err := r.fs.Remove(ctx, c.Path, c.Recursive); err != nil {
			return Fail(err)
		}
		return OK("Removed "+c.Path, nil)

	case FsTouch:
		if err := r.fs.Touch(ctx, c.Path); err != nil {
			return Fail(err)
		}
		return OK("Created "+c.Path, nil)

	case FsMkdir:
		if err := r.fs.Mkdir(ctx, c.Path); err != nil {
			return Fail(err)
		}
		return OK("Created directory "+c.Path, nil)

	case FsRmdir:
		if err := r.fs.Rmdir(ctx, c.Path); err != nil {
			return Fail(err)
		}
		return OK("Removed directory "+c.Path, nil)

	case FsLs:
		entries, err := r.fs.List(ctx, c.Path, c.Recursive)
		if err != nil {
			return Fail(err)
		}
		if entries == nil {
			entries = []string{}
		}
		return OK("Listing completed.", entries)

	case FsSave:
		if err := r.fs.Save(ctx, c.Path, c.Data); err != nil {
			return Fail(err)
		}
		return OK("Saved data to "+c.Path, nil)

	case ConvSave:
		name := c.Conversation
		if name == "" {
			name = conv.Name
		}
		if err := r.conv.Save(ctx, name, conv.Transcript); err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("Conversation saved as %s.", name), nil)

	case ConvLoad:
		name := c.Conversation
		if name == "" {
			name = conv.Name
		}
		content, err := r.conv.Load(ctx, name)
		if errors.Is(err, memory.ErrConversationNotFound) {
			return Result{Message: fmt.Sprintf("Error: %s not found.", name), Kind: KindNotFound}
		}
		if err != nil {
			return Fail(err)
		}
		return OK(fmt.Sprintf("Loaded conversation %s.", name), strings.TrimSpace(content))

	case ConvList:
		names, err := r.conv.List(ctx)
		if err != nil {
			return Fail(err)
		}
		if names == nil {
			names = []string{}
		}
		return OK("Conversations listed successfully.", names)

	default:
		return Result{Message: "Command not found", Kind: KindNotFound}
	}
}
