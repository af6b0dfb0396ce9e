package ops

import (
	"context"

	"github.com/hpungsan/dumbledore/internal/db"
)

// NotesInput contains parameters for the notes listing.
type NotesInput struct {
	// Limit caps the rows returned. Zero means DefaultNotesLimit.
	Limit int
}

// NotesOutput lists synced notes, alphabetical by title.
type NotesOutput struct {
	Notes []db.SyncedNote `json:"notes"`
	Total int             `json:"total"`
}

// Notes returns the synced note inventory.
func Notes(ctx context.Context, env *Env, input NotesInput) (*NotesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultNotesLimit
	}
	if limit > MaxNotesLimit {
		limit = MaxNotesLimit
	}

	notes, err := db.ListSyncedNotes(env.DB)
	if err != nil {
		return nil, err
	}

	total := len(notes)
	if len(notes) > limit {
		notes = notes[:limit]
	}
	return &NotesOutput{Notes: notes, Total: total}, nil
}
