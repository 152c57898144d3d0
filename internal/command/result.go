package command

import (
	"errors"
	"io/fs"

	"github.com/nugget/quill/internal/memory"
	"github.com/nugget/quill/internal/paths"
)

// ErrorKind classifies a failed result for logging and the journal.
// It is not part of the JSON sent back to the model.
type ErrorKind string

// Error kinds.
const (
	KindNone          ErrorKind = ""
	KindNotFound      ErrorKind = "not_found"
	KindRootProtected ErrorKind = "root_protected"
	KindPathEscape    ErrorKind = "path_escape"
	KindInvalidParams ErrorKind = "invalid_params"
	KindIO            ErrorKind = "io"
)

// Result is the outcome of one routed command.
type Result struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Value   any       `json:"value"`
	Kind    ErrorKind `json:"-"`
}

// OK builds a successful result.
func OK(message string, value any) Result {
	return Result{Success: true, Message: message, Value: value}
}

// Fail builds a failed result from err, using its text as the message.
func Fail(err error) Result {
	return Result{Message: err.Error(), Kind: classify(err)}
}

func classify(err error) ErrorKind {
	var verr *ValidationError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, paths.ErrRootProtected):
		return KindRootProtected
	case errors.Is(err, paths.ErrEscapesRoot), errors.Is(err, memory.ErrInvalidConversationName):
		return KindPathEscape
	case errors.Is(err, memory.ErrConversationNotFound), errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.As(err, &verr):
		return KindInvalidParams
	default:
		return KindIO
	}
}
