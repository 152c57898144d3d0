package prompts

import (
	"strings"
	"testing"
)

func TestSystemPrompt(t *testing.T) {
	got := SystemPrompt("- `fs.ls`: Lists.\n")
	if !strings.HasPrefix(got, CommandPreamble()) {
		t.Error("system prompt should start with the preamble")
	}
	if !strings.HasSuffix(got, "- `fs.ls`: Lists.\n") {
		t.Error("system prompt should end with the command list")
	}
	for _, want := range []string{`"commands"`, `"user"`, `"return_to_gpt"`} {
		if !strings.Contains(got, want) {
			t.Errorf("preamble missing %s", want)
		}
	}
}

func TestFeedback(t *testing.T) {
	tests := []struct {
		name    string
		errors  []string
		results string
		want    string
	}{
		{"empty", nil, "", ""},
		{"errors only", []string{"e1", "e2"}, "", "e1\ne2"},
		{"results only", nil, "[]", "Command results:\n[]"},
		{"both", []string{"e1"}, "[1]", "e1\n\nCommand results:\n[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Feedback(tt.errors, tt.results); got != tt.want {
				t.Errorf("Feedback = %q, want %q", got, tt.want)
			}
		})
	}
}
