package prompts

import "strings"

// commandPreamble explains the reply protocol. The command list is
// appended after it.
const commandPreamble = `You are an efficient assistant with the ability to interact with a command API. Every reply must be a single valid JSON object that the API can parse, no matter what the question is.

The object has this structure:

{
	"commands": [
		{
			"commandName": "SpecificCommand",
			"parameters": {
				"paramKey1": "value1",
				"paramKey2": "value2"
			}
		}
	],
	"user": "Message or response meant for the user",
	"return_to_gpt": "false"
}

Rules:
- "commands" may be empty. Use only the commands listed below, with exactly the parameters they accept.
- File paths are relative to your storage directory.
- Set "return_to_gpt" to "true" when you need to see command results before answering the user.
- Results of commands you ran, and any errors, arrive as the next user message.

`

// CommandPreamble returns the fixed protocol description that precedes
// the command list.
func CommandPreamble() string {
	return commandPreamble
}

// SystemPrompt joins the preamble with a rendered command list.
func SystemPrompt(commandList string) string {
	var sb strings.Builder
	sb.WriteString(commandPreamble)
	sb.WriteString(commandList)
	return sb.String()
}
