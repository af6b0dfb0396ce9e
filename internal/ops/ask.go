package ops

import (
	"context"
	"strings"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
	"github.com/hpungsan/dumbledore/internal/llm"
)

// AskInput contains parameters for a one-shot question.
type AskInput struct {
	// Question is the text to answer. Required.
	Question string
}

// AskOutput contains the answer to a one-shot question.
type AskOutput struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources,omitempty"`
}

// Ask answers a single question without persisting a conversation. An empty
// index is not an error; the model answers without context.
func Ask(ctx context.Context, env *Env, input AskInput) (*AskOutput, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, apperrors.NewInvalidRequest("question must not be empty")
	}

	bundle, err := env.retriever().Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	prompt := llm.BuildPrompt(question, bundle.Format())
	answer, err := env.LLM.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return &AskOutput{
		Question: question,
		Answer:   answer,
		Sources:  bundle.SourceTitles(),
	}, nil
}
