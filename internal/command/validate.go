package command

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ValidationError describes why a raw command was rejected. Its
// message is fed back to the model verbatim.
type ValidationError struct {
	Command string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validated is a command whose name exists in the registry and whose
// parameters contain every required key and nothing else.
type Validated struct {
	Name   string
	Params map[string]any
}

// Validate checks a decoded JSON value against the registry. Checks
// run in order and stop at the first failure: shape, name, required
// parameters, then unexpected parameters. The parameter map of a valid
// command is returned unmodified.
func (r *Registry) Validate(raw any) (Validated, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Validated{}, &ValidationError{
			Message: fmt.Sprintf("Error: Unable to parse command: \"%s\".", render(raw)),
		}
	}

	name, _ := obj["commandName"].(string)
	spec, ok := r.Lookup(name)
	if !ok {
		if name == "" && obj["commandName"] != nil {
			name = render(obj["commandName"])
		}
		return Validated{}, &ValidationError{
			Command: name,
			Message: fmt.Sprintf("Error: Command not found: \"%s\".", name),
		}
	}

	params := coerceParams(obj["parameters"])

	var missing []string
	for _, k := range spec.Required {
		if _, ok := params[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Validated{}, &ValidationError{
			Command: name,
			Message: fmt.Sprintf("Error: Missing parameters for %s: %s.", name, strings.Join(missing, ", ")),
		}
	}

	var extra []string
	for k := range params {
		if !spec.Allowed(k) {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return Validated{}, &ValidationError{
			Command: name,
			Message: fmt.Sprintf("Error: Unexpected parameters for %s: %s.", name, strings.Join(extra, ", ")),
		}
	}

	return Validated{Name: name, Params: params}, nil
}

// coerceParams turns the parameters field into a map. An absent field
// is empty; a bare scalar becomes a single key with an empty value so
// the unexpected-parameter check can name it.
func coerceParams(v any) map[string]any {
	switch p := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return p
	default:
		return map[string]any{render(p): ""}
	}
}

// render formats a decoded JSON value for error messages.
func render(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	case float64, bool:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
