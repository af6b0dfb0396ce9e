package ops

import (
	"context"

	"github.com/hpungsan/dumbledore/internal/db"
)

// ClearOutput reports what a clear removed.
type ClearOutput struct {
	Notes  int `json:"notes"`
	Chunks int `json:"chunks"`
}

// Clear wipes the vector index and the sync records. Conversations and
// their messages are kept; a later sync rebuilds the index from scratch.
func Clear(ctx context.Context, env *Env) (*ClearOutput, error) {
	notes, err := db.CountSyncedNotes(env.DB)
	if err != nil {
		return nil, err
	}
	chunks, err := env.Store.Count(ctx)
	if err != nil {
		return nil, err
	}

	if err := env.Store.Clear(ctx); err != nil {
		return nil, err
	}
	if err := db.ClearSyncedNotes(env.DB); err != nil {
		return nil, err
	}
	return &ClearOutput{Notes: notes, Chunks: chunks}, nil
}
