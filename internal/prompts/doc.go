// Package prompts contains the prompt text Quill sends to models.
//
// Prompt text is Go code rather than config files because it is program
// logic: the command advertisement is generated from the registry and
// must change whenever the registry does.
//
// Convention: each prompt category gets its own file with an exported
// function that accepts the dynamic parts and returns the fully
// interpolated prompt string.
package prompts
