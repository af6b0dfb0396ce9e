package ops

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
	"github.com/hpungsan/dumbledore/internal/note"
	"github.com/hpungsan/dumbledore/internal/rag"
	"github.com/hpungsan/dumbledore/internal/vector"
)

// searchableSources are the source types the search filter accepts.
var searchableSources = []string{
	note.SourceApple, note.SourceMarkdown, note.SourceLumify,
	note.SourceConversation, note.SourceStyle,
}

// SearchInput contains parameters for the search operation.
type SearchInput struct {
	// Query is the text to search for. Required.
	Query string
	// TopK caps the number of hits. Zero means the configured top-k.
	TopK int
	// Source restricts hits to one source type. Empty searches everything.
	Source string
}

// SearchResult is one scored hit.
type SearchResult struct {
	Title      string  `json:"title"`
	SourceType string  `json:"source_type"`
	ParentID   string  `json:"parent_id"`
	Ordinal    int     `json:"ordinal"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// SearchOutput contains scored hits, best first.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// Search embeds the query and returns the most similar indexed chunks.
func Search(ctx context.Context, env *Env, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, apperrors.NewInvalidRequest("query must not be empty")
	}

	topK := input.TopK
	if topK <= 0 {
		topK = env.Config.TopK
	}
	if topK > MaxSearchLimit {
		topK = MaxSearchLimit
	}

	var filter *vector.Filter
	if input.Source != "" {
		if !validSourceType(input.Source) {
			return nil, apperrors.NewInvalidRequest(fmt.Sprintf(
				"unknown source %q (valid: %s)", input.Source, strings.Join(searchableSources, ", ")))
		}
		filter = &vector.Filter{SourceTypes: []string{input.Source}}
	}

	hits, err := env.retriever().Search(ctx, query, topK, filter)
	if err != nil {
		return nil, err
	}

	out := &SearchOutput{Query: query, Results: make([]SearchResult, len(hits))}
	for i, h := range hits {
		out.Results[i] = SearchResult{
			Title:      h.Title,
			SourceType: h.SourceType,
			ParentID:   h.ParentID,
			Ordinal:    h.Ordinal,
			Text:       h.Text,
			Score:      h.Score,
		}
	}
	return out, nil
}

// Format renders the hits the way the chat window shows them.
func (o *SearchOutput) Format() string {
	results := make([]vector.Result, len(o.Results))
	for i, r := range o.Results {
		results[i] = vector.Result{
			Record: vector.Record{Title: r.Title, Text: r.Text},
			Score:  r.Score,
		}
	}
	return rag.FormatSearchResults(results)
}

func validSourceType(s string) bool {
	for _, t := range searchableSources {
		if s == t {
			return true
		}
	}
	return false
}
