package command

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Command is one bound, typed command. The set of implementations is
// closed: each registry entry has exactly one variant, and [Router.Route]
// switches over all of them.
type Command interface {
	// Name returns the registry name of the command.
	Name() string
	isCommand()
}

// FsCat reads a file.
type FsCat struct{ Path string }

// FsCp copies a file or directory tree.
type FsCp struct{ Src, Dest string }

// FsMv moves or renames a file or directory.
type FsMv struct{ Src, Dest string }

// FsRm removes a file, or a tree when Recursive is set.
type FsRm struct {
	Path      string
	Recursive bool
}

// FsTouch creates a file or updates its modification time.
type FsTouch struct{ Path string }

// FsMkdir creates a directory and any missing parents.
type FsMkdir struct{ Path string }

// FsRmdir removes an empty directory.
type FsRmdir struct{ Path string }

// FsLs lists a directory, or every file beneath it when Recursive is
// set.
type FsLs struct {
	Path      string
	Recursive bool
}

// FsSave overwrites a file with Data.
type FsSave struct{ Path, Data string }

// ConvSave writes the active transcript. An empty Conversation means
// the session's own conversation name.
type ConvSave struct{ Conversation string }

// ConvLoad reads a saved conversation. An empty Conversation means the
// session's own conversation name.
type ConvLoad struct{ Conversation string }

// ConvList enumerates saved conversations.
type ConvList struct{}

func (FsCat) Name() string { return NameFsCat }
func (FsCp) Name() string { return NameFsCp }
func (FsMv) Name() string { return NameFsMv }
func (FsRm) Name() string { return NameFsRm }
func (FsTouch) Name() string { return NameFsTouch }
func (FsMkdir) Name() string { return NameFsMkdir }
func (FsRmdir) Name() string { return NameFsRmdir }
func (FsLs) Name() string { return NameFsLs }
func (FsSave) Name() string { return NameFsSave }
func (ConvSave) Name() string { return NameConvSave }
func (ConvLoad) Name() string { return NameConvLoad }
func (ConvList) Name() string { return NameConvList }

func (FsCat) isCommand() {}
func (FsCp) isCommand() {}
func (FsMv) isCommand() {}
func (FsRm) isCommand() {}
func (FsTouch) isCommand() {}
func (FsMkdir) isCommand() {}
func (FsRmdir) isCommand() {}
func (FsLs) isCommand() {}
func (FsSave) isCommand() {}
func (ConvSave) isCommand() {}
func (ConvLoad) isCommand() {}
func (ConvList) isCommand() {}

// Bind converts a validated command into its typed variant, checking
// parameter types on the way. Paths and names must be strings,
// recursive must be a boolean or "true"/"false", and non-string data is
// stored as its JSON encoding.
func Bind(v Validated) (Command, error) {
	b := binder{name: v.Name, params: v.Params}

	var cmd Command
	switch v.Name {
	case NameFsCat:
		cmd = FsCat{Path: b.str("path")}
	case NameFsCp:
		cmd = FsCp{Src: b.str("src"), Dest: b.dest()}
	case NameFsMv:
		cmd = FsMv{Src: b.str("src"), Dest: b.dest()}
	case NameFsRm:
		cmd = FsRm{Path: b.str("path"), Recursive: b.flag("recursive")}
	case NameFsTouch:
		cmd = FsTouch{Path: b.str("path")}
	case NameFsMkdir:
		cmd = FsMkdir{Path: b.str("path")}
	case NameFsRmdir:
		cmd = FsRmdir{Path: b.str("path")}
	case NameFsLs:
		cmd = FsLs{Path: b.str("path"), Recursive: b.flag("recursive")}
	case NameFsSave:
		cmd = FsSave{Path: b.str("path"), Data: b.data("data")}
	case NameConvSave:
		cmd = ConvSave{Conversation: b.str("name")}
	case NameConvLoad:
		cmd = ConvLoad{Conversation: b.str("name")}
	case NameConvList:
		cmd = ConvList{}
	default:
		return nil, &ValidationError{
			Command: v.Name,
			Message: fmt.Sprintf("Error: Command not found: \"%s\".", v.Name),
		}
	}

	if b.err != nil {
		return nil, b.err
	}
	return cmd, nil
}

// binder extracts typed parameters, remembering the first type error.
type binder struct {
	name   string
	params map[string]any
	err    error
}

func (b *binder) fail(key, want string) {
	if b.err != nil {
		return
	}
	b.err = &ValidationError{
		Command: b.name,
		Message: fmt.Sprintf("Error: Invalid parameter %s for %s: expected %s.", key, b.name, want),
	}
}

func (b *binder) str(key string) string {
	v, ok := b.params[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		b.fail(key, "a string")
		return ""
	}
	return s
}

// dest reads the copy/move target, preferring "dest" over
// "destination".
func (b *binder) dest() string {
	if _, ok := b.params["dest"]; ok {
		return b.str("dest")
	}
	return b.str("destination")
}

func (b *binder) flag(key string) bool {
	v, ok := b.params[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if strings.TrimSpace(t) == "" {
			return false
		}
		parsed, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(t)))
		if err != nil {
			b.fail(key, "true or false")
			return false
		}
		return parsed
	default:
		b.fail(key, "true or false")
		return false
	}
}

func (b *binder) data(key string) string {
	v := b.params[key]
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	enc, err := json.Marshal(v)
	if err != nil {
		b.fail(key, "text")
		return ""
	}
	return string(enc)
}
