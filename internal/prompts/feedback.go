package prompts

import "strings"

// Feedback renders the automatic follow-up input for the model: each
// validation error on its own line, followed by the JSON results of the
// commands that ran. Either part may be empty.
func Feedback(errors []string, resultsJSON string) string {
	var parts []string
	if len(errors) > 0 {
		parts = append(parts, strings.Join(errors, "\n"))
	}
	if resultsJSON != "" {
		parts = append(parts, "Command results:\n"+resultsJSON)
	}
	return strings.Join(parts, "\n\n")
}
