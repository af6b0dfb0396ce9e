// Package llm generates advisor responses. Two providers: the claude CLI
// as a subprocess (default) and a local Ollama model through langchaingo.
package llm

import "context"

// Client produces a completion for a fully assembled prompt.
type Client interface {
	// Name identifies the provider ("claude" or "ollama").
	Name() string

	// Complete returns the model's response text. A failed call returns
	// an LLM_ERROR; the caller decides whether the session continues.
	Complete(ctx context.Context, prompt string) (string, error)
}
