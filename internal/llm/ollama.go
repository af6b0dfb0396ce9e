package llm

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
)

const defaultChatModel = "llama3"

// OllamaClient generates completions from a local Ollama model. Useful
// when everything should stay on the machine.
type OllamaClient struct {
	llm   *ollama.LLM
	model string
}

// NewOllamaChat connects to the Ollama server at serverURL. Empty model
// falls back to the default chat model; empty serverURL uses the
// langchaingo default (localhost).
func NewOllamaChat(serverURL, model string) (*OllamaClient, error) {
	if model == "" {
		model = defaultChatModel
	}

	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, apperrors.NewLLMError(err)
	}
	return &OllamaClient{llm: llm, model: model}, nil
}

func (c *OllamaClient) Name() string { return "ollama" }

func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt)
	if err != nil {
		return "", apperrors.NewLLMError(err)
	}
	return strings.TrimSpace(out), nil
}
