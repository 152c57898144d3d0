// Package command defines the command vocabulary a model may emit,
// validates raw commands against it, binds them to typed variants and
// routes them to the filesystem and conversation effectors.
package command

import (
	"fmt"
	"sort"
	"strings"
)

// Namespaces recognised by the router.
const (
	NamespaceFS   = "fs"
	NamespaceConv = "conv"
)

// Command names in the default registry.
const (
	NameConvList = "conv.ls"
	NameConvLoad = "conv.load"
	NameConvSave = "conv.save"
	NameFsCat    = "fs.cat"
	NameFsCp     = "fs.cp"
	NameFsMv     = "fs.mv"
	NameFsRm     = "fs.rm"
	NameFsTouch  = "fs.touch"
	NameFsMkdir  = "fs.mkdir"
	NameFsRmdir  = "fs.rmdir"
	NameFsLs     = "fs.ls"
	NameFsSave   = "fs.save"
)

// Spec declares one command: its parameters and whether its result is
// surfaced back to the model on the next automatic round.
type Spec struct {
	Name           string
	Required       []string
	Optional       []string
	Description    string
	VisibleToModel bool
}

// Namespace returns the dotted prefix of the command name.
func (s Spec) Namespace() string {
	ns, _, _ := strings.Cut(s.Name, ".")
	return ns
}

// Allowed reports whether key is a required or optional parameter.
func (s Spec) Allowed(key string) bool {
	for _, k := range s.Required {
		if k == key {
			return true
		}
	}
	for _, k := range s.Optional {
		if k == key {
			return true
		}
	}
	return false
}

// Registry is the immutable set of known commands.
type Registry struct {
	specs map[string]Spec
	names []string
}

// NewRegistry builds a registry, rejecting duplicate names, names
// without a namespace and parameters that are both required and
// optional.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		if _, dup := r.specs[s.Name]; dup {
			return nil, fmt.Errorf("duplicate command %q", s.Name)
		}
		ns, verb, ok := strings.Cut(s.Name, ".")
		if !ok || ns == "" || verb == "" {
			return nil, fmt.Errorf("command %q has no namespace", s.Name)
		}
		for _, req := range s.Required {
			for _, opt := range s.Optional {
				if req == opt {
					return nil, fmt.Errorf("command %q: parameter %q is both required and optional", s.Name, req)
				}
			}
		}
		s.Required = append([]string(nil), s.Required...)
		s.Optional = append([]string(nil), s.Optional...)
		r.specs[s.Name] = s
		r.names = append(r.names, s.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// DefaultRegistry returns the built-in filesystem and conversation
// commands.
//
// fs.cp and fs.mv accept either "dest" or "destination" for the
// target; each keeps one spelling required and admits the other.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(defaultSpecs()...)
	if err != nil {
		panic(fmt.Sprintf("default command registry: %v", err))
	}
	return r
}

func defaultSpecs() []Spec {
	return []Spec{
		{
			Name:           NameConvList,
			Description:    "Lists saved conversations.",
			VisibleToModel: true,
		},
		{
			Name:           NameConvLoad,
			Optional:       []string{"name"},
			Description:    "Retrieves content of a specified conversation file.",
			VisibleToModel: true,
		},
		{
			Name:        NameConvSave,
			Optional:    []string{"name"},
			Description: "Saves the current conversation.",
		},
		{
			Name:           NameFsCat,
			Required:       []string{"path"},
			Description:    "Displays the contents of the specified file.",
			VisibleToModel: true,
		},
		{
			Name:        NameFsCp,
			Required:    []string{"src", "destination"},
			Optional:    []string{"dest"},
			Description: "Copies the source file or directory to the specified destination.",
		},
		{
			Name:        NameFsMv,
			Required:    []string{"src", "dest"},
			Optional:    []string{"destination"},
			Description: "Moves or renames the source file or directory to the specified destination.",
		},
		{
			Name:        NameFsRm,
			Required:    []string{"path"},
			Optional:    []string{"recursive"},
			Description: "Removes the specified file or directory. If 'recursive' is set to true, it will recursively remove directories and their contents.",
		},
		{
			Name:        NameFsTouch,
			Required:    []string{"path"},
			Description: "Creates a new empty file with the given filename.",
		},
		{
			Name:        NameFsMkdir,
			Required:    []string{"path"},
			Description: "Creates a new directory in the storage space.",
		},
		{
			Name:        NameFsRmdir,
			Required:    []string{"path"},
			Description: "Removes the specified directory. Note: This will only remove empty directories.",
		},
		{
			Name:           NameFsLs,
			Optional:       []string{"path", "recursive"},
			Description:    "Lists contents in the storage directory or a specified path. If 'recursive' is set to true, it lists all files under the specified path recursively.",
			VisibleToModel: true,
		},
		{
			Name:        NameFsSave,
			Required:    []string{"path", "data"},
			Description: "Saves provided data to the specified filename.",
		},
	}
}

// Lookup returns the spec for name.
func (r *Registry) Lookup(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Names returns every command name in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Specs returns every spec in name order.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.specs[n])
	}
	return out
}

// Advertise renders one line per command for the system prompt:
// name, description and parameter lists.
func (r *Registry) Advertise() string {
	var sb strings.Builder
	sb.WriteString("**Supported Commands:**\n")
	for _, s := range r.Specs() {
		fmt.Fprintf(&sb, "- `%s`: %s\n", s.Name, s.Description)
		if len(s.Required) > 0 {
			fmt.Fprintf(&sb, "\t- Required: %s\n", strings.Join(s.Required, ", "))
		}
		if len(s.Optional) > 0 {
			fmt.Fprintf(&sb, "\t- Optional: %s\n", strings.Join(s.Optional, ", "))
		}
	}
	return sb.String()
}
