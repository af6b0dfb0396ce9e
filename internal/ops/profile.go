package ops

import "context"

// ProfileOutput contains the user's profile note.
type ProfileOutput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Found   bool   `json:"found"`
}

// LookupProfile fetches the reserved profile note from the index. A missing
// profile reports Found false rather than an error so callers can suggest
// creating one.
func LookupProfile(ctx context.Context, env *Env) (*ProfileOutput, error) {
	content, err := env.retriever().Profile(ctx)
	if err != nil {
		return nil, err
	}
	return &ProfileOutput{
		Title:   env.Config.ProfileTitle,
		Content: content,
		Found:   content != "",
	}, nil
}
