package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
	"github.com/hpungsan/dumbledore/internal/note"
	"github.com/hpungsan/dumbledore/internal/vector"
)

// StyleProfileTitle is the reserved title of the generated style note.
const StyleProfileTitle = "My Writing Style"

// styleParentID keys the style profile in the vector store.
const styleParentID = "style:profile"

// styleSampleBudget caps the characters of note text sent for analysis.
const styleSampleBudget = 15000

// styleTimeout bounds the analysis call.
const styleTimeout = 120 * time.Second

const styleAnalysisPrompt = `Analyze these writing samples and extract a concise style guide for mimicking this person's writing style.

Focus on:
- Tone and voice (casual, formal, conversational, etc.)
- Common phrases, expressions, or slang they use
- Sentence structure (short/long, fragments, complex)
- Punctuation habits (lowercase, minimal punctuation, etc.)
- Unique quirks or patterns

Output ONLY the style guide - a list of specific, actionable instructions for writing like this person.
Keep it under 300 words. Be specific, not generic.

Writing samples:
---
%s
---

Style guide:`

// StyleOutput contains the generated style profile.
type StyleOutput struct {
	Title   string `json:"title"`
	Profile string `json:"profile"`
	Samples int    `json:"samples"`
}

// Style samples the synced notes, asks the LLM for a writing-style guide,
// and stores the result as a derived note. Re-running replaces the stored
// profile.
func Style(ctx context.Context, env *Env) (*StyleOutput, error) {
	samples, err := styleSamples(ctx, env)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, apperrors.NewInvalidRequest("no note samples to analyze; run sync first")
	}

	prompt := fmt.Sprintf(styleAnalysisPrompt, strings.Join(samples, "\n\n---\n\n"))

	styleCtx, cancel := context.WithTimeout(ctx, styleTimeout)
	defer cancel()
	profile, err := env.LLM.Complete(styleCtx, prompt)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("[Note: %s]\n\n%s", StyleProfileTitle, profile)
	vecs, err := env.Embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	rec := vector.Record{
		ID:         vector.RecordID(styleParentID, 0),
		ParentID:   styleParentID,
		Ordinal:    0,
		SourceType: note.SourceStyle,
		Title:      StyleProfileTitle,
		Text:       text,
		Vector:     vecs[0],
	}
	if err := env.Store.Upsert(ctx, []vector.Record{rec}); err != nil {
		return nil, err
	}

	return &StyleOutput{Title: StyleProfileTitle, Profile: profile, Samples: len(samples)}, nil
}

// styleSamples collects the first chunk of each synced note, skipping
// derived sources, until the sample budget is spent.
func styleSamples(ctx context.Context, env *Env) ([]string, error) {
	titles, err := env.Store.Titles(ctx)
	if err != nil {
		return nil, err
	}

	var samples []string
	total := 0
	for _, title := range titles {
		chunks, err := env.Store.ChunksByTitle(ctx, title)
		if err != nil {
			return nil, err
		}
		if len(chunks) == 0 {
			continue
		}
		first := chunks[0]
		if first.SourceType == note.SourceConversation || first.SourceType == note.SourceStyle {
			continue
		}
		size := note.CountChars(first.Text)
		if total+size > styleSampleBudget {
			break
		}
		samples = append(samples, first.Text)
		total += size
	}
	return samples, nil
}
