package ops

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hpungsan/dumbledore/internal/db"
)

// StatsOutput summarizes the knowledge base.
type StatsOutput struct {
	Notes         int    `json:"notes"`
	Chunks        int    `json:"chunks"`
	Conversations int    `json:"conversations"`
	Dimension     int    `json:"dimension,omitempty"`
	EmbedModel    string `json:"embed_model"`
	VectorBackend string `json:"vector_backend"`
	LastSync      int64  `json:"last_sync,omitempty"`
	DBSizeBytes   int64  `json:"db_size_bytes,omitempty"`
}

// dimensioner is implemented by stores that know their embedding dimension.
type dimensioner interface {
	Dimension(ctx context.Context) (int, error)
}

// Stats reports index and conversation counts.
func Stats(ctx context.Context, env *Env) (*StatsOutput, error) {
	out := &StatsOutput{
		EmbedModel:    env.Config.EmbedModel,
		VectorBackend: env.Config.VectorBackend,
	}

	var err error
	if out.Notes, err = db.CountSyncedNotes(env.DB); err != nil {
		return nil, err
	}
	if out.Chunks, err = env.Store.Count(ctx); err != nil {
		return nil, err
	}
	if out.Conversations, err = db.CountConversations(env.DB); err != nil {
		return nil, err
	}

	if d, ok := env.Store.(dimensioner); ok {
		if out.Dimension, err = d.Dimension(ctx); err != nil {
			return nil, err
		}
	}

	raw, err := db.GetSetting(env.DB, LastSyncKey)
	if err != nil {
		return nil, err
	}
	if raw != "" {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
			out.LastSync = secs
		}
	}

	if env.BaseDir != "" {
		if fi, err := os.Stat(filepath.Join(env.BaseDir, db.FileName)); err == nil {
			out.DBSizeBytes = fi.Size()
		}
	}
	return out, nil
}
