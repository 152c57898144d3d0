package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// incorrectStructure is shown to the user when the reply contains an
// object-shaped region that does not decode.
const incorrectStructure = "Error: Incorrect command structure in the response."

// objectPattern selects the span from the first '{' to the last '}'
// when only prose surrounds it.
var objectPattern = regexp.MustCompile(`(?s)^[^{]*?(\{.*?\})[^}]*?$`)

// TurnResponse is the decoded shape of one model reply.
type TurnResponse struct {
	// Commands holds the raw command objects in reply order. They are
	// validated individually by the router's registry.
	Commands []any
	// User is the message meant for the human.
	User string
	// ReturnToModel reports whether the model asked to see results
	// before the human is prompted again.
	ReturnToModel bool
	// Malformed is set when the reply held an object-shaped region
	// that did not decode. The model is asked to try again.
	Malformed bool
}

// Extract decodes a model reply. A fenced code block holding a JSON
// object wins; otherwise the outermost brace-delimited region is used.
// Replies without any such region are passed through as the user
// message. Extract never fails.
func Extract(raw string) TurnResponse {
	candidate, ok := fencedObject(raw)
	if !ok {
		m := objectPattern.FindStringSubmatch(raw)
		if m == nil {
			return TurnResponse{User: raw, ReturnToModel: true}
		}
		candidate = strings.TrimSpace(m[1])
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(candidate), &data); err != nil {
		return TurnResponse{User: incorrectStructure, ReturnToModel: true, Malformed: true}
	}

	resp := TurnResponse{}
	if cmds, ok := data["commands"].([]any); ok {
		resp.Commands = cmds
	}
	switch u := data["user"].(type) {
	case nil:
	case string:
		resp.User = u
	default:
		resp.User = fmt.Sprint(u)
	}
	if v, ok := data["return_to_gpt"]; ok && v != nil {
		resp.ReturnToModel = strings.EqualFold(fmt.Sprint(v), "true")
	}
	return resp
}

// fencedObject returns the body of the first fenced code block whose
// content is a valid JSON object.
func fencedObject(raw string) (string, bool) {
	if !strings.Contains(raw, "```") && !strings.Contains(raw, "~~~") {
		return "", false
	}

	src := []byte(raw)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var found string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var buf bytes.Buffer
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		body := bytes.TrimSpace(buf.Bytes())
		if len(body) > 0 && body[0] == '{' && json.Valid(body) {
			found = string(body)
			return ast.WalkStop, nil
		}
		return ast.WalkSkipChildren, nil
	})
	return found, found != ""
}
