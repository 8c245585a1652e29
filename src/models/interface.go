package models

import "context"

// Agent is a text-completion model. Generate returns the completion, which
// is a string for every provider in this package.
type Agent interface {
	Generate(context.Context, string) (any, error)
}

func withPrefix(prefix, prompt string) string {
	if prefix == "" {
		return prompt
	}
	return prefix + "\n\n" + prompt
}
