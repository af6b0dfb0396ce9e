package ops

import (
	"context"
	"strings"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
)

// ContextInput contains parameters for the context operation.
type ContextInput struct {
	// Question is the text to retrieve context for. Required.
	Question string
}

// ContextOutput contains the formatted context bundle for a question.
type ContextOutput struct {
	Question string   `json:"question"`
	Context  string   `json:"context"`
	Sources  []string `json:"sources,omitempty"`
}

// Context retrieves and formats the bundle a question would be answered
// with, without calling the LLM. This is what MCP clients consume.
func Context(ctx context.Context, env *Env, input ContextInput) (*ContextOutput, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, apperrors.NewInvalidRequest("question must not be empty")
	}

	bundle, err := env.retriever().Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	return &ContextOutput{
		Question: question,
		Context:  bundle.Format(),
		Sources:  bundle.SourceTitles(),
	}, nil
}
