package ops

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hpungsan/dumbledore/internal/db"
	apperrors "github.com/hpungsan/dumbledore/internal/errors"
	"github.com/hpungsan/dumbledore/internal/note"
	"github.com/hpungsan/dumbledore/internal/source"
	"github.com/hpungsan/dumbledore/internal/vector"
)

// LastSyncKey is the settings key holding the unix time of the last
// completed sync.
const LastSyncKey = "last_sync_time"

// SyncInput contains parameters for the sync operation.
type SyncInput struct {
	// Source restricts the run to one source type. Empty syncs every
	// wired source.
	Source string
	// Limit caps notes listed per source. Zero means no cap.
	Limit int
	// Clear wipes the index and sync records before syncing.
	Clear bool
}

// SourceSync reports the outcome for one source.
type SourceSync struct {
	Source  string `json:"source"`
	Listed  int    `json:"listed"`
	Synced  int    `json:"synced"`
	Chunks  int    `json:"chunks"`
	Skipped string `json:"skipped,omitempty"`
}

// SyncOutput summarizes a sync run.
type SyncOutput struct {
	Sources []SourceSync `json:"sources"`
	Synced  int          `json:"synced"`
	Chunks  int          `json:"chunks"`
}

// Sync pulls notes from the wired sources and reindexes the changed ones.
// An unavailable source is recorded in its SourceSync and skipped so the
// other sources still run. Embedder and store failures abort the whole run.
func Sync(ctx context.Context, env *Env, input SyncInput) (*SyncOutput, error) {
	if input.Source != "" && env.sourceFor(input.Source) == nil {
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("unknown source %q", input.Source))
	}

	if input.Clear {
		if _, err := Clear(ctx, env); err != nil {
			return nil, err
		}
	}

	out := &SyncOutput{}
	for _, src := range env.Sources {
		if input.Source != "" && src.Type() != input.Source {
			continue
		}
		res, err := syncSource(ctx, env, src, input.Limit)
		if err != nil {
			return nil, err
		}
		out.Sources = append(out.Sources, *res)
		out.Synced += res.Synced
		out.Chunks += res.Chunks
	}

	if err := db.SetSetting(env.DB, LastSyncKey, strconv.FormatInt(time.Now().Unix(), 10)); err != nil {
		return nil, err
	}
	return out, nil
}

func syncSource(ctx context.Context, env *Env, src source.Source, limit int) (*SourceSync, error) {
	res := &SourceSync{Source: src.Type()}

	if err := src.Available(); err != nil {
		res.Skipped = err.Error()
		fmt.Fprintf(env.out(), "skipping %s: %v\n", src.Type(), err)
		return res, nil
	}

	notes, err := src.List(ctx, limit)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSourceUnavailable) {
			res.Skipped = err.Error()
			fmt.Fprintf(env.out(), "skipping %s: %v\n", src.Type(), err)
			return res, nil
		}
		return nil, err
	}
	res.Listed = len(notes)

	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed, err := noteChanged(env, n)
		if err != nil {
			return nil, err
		}
		if !changed {
			continue
		}
		chunks, err := indexNote(ctx, env, n)
		if err != nil {
			return nil, err
		}
		res.Synced++
		res.Chunks += chunks
		fmt.Fprintf(env.out(), "synced %q (%d chunks)\n", n.Title, chunks)
	}
	return res, nil
}

// noteChanged reports whether n differs from its recorded sync state.
// A note without a modification time is always treated as changed.
func noteChanged(env *Env, n note.Note) (bool, error) {
	if n.LastModified.IsZero() {
		return true, nil
	}
	stored, err := db.GetSyncedNote(env.DB, n.SourceType, n.SourceID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return stored.ModifiedAt != n.LastModified.Unix(), nil
}

// indexNote chunks and embeds one note, replacing whatever the store held
// for it. A note with an empty body still gets a zero-chunk sync row so it
// is not treated as new on every run.
func indexNote(ctx context.Context, env *Env, n note.Note) (int, error) {
	chunks := env.chunker().Chunk(n)

	var records []vector.Record
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vecs, err := env.Embedder.Embed(ctx, texts)
		if err != nil {
			return 0, err
		}
		records = make([]vector.Record, len(chunks))
		for i, c := range chunks {
			records[i] = vector.Record{
				ID:         vector.RecordID(c.ParentID, c.Ordinal),
				ParentID:   c.ParentID,
				Ordinal:    c.Ordinal,
				SourceType: n.SourceType,
				Title:      n.Title,
				Text:       c.Text,
				Vector:     vecs[i],
			}
		}
	}

	if err := env.Store.DeleteByParent(ctx, n.ParentID()); err != nil {
		return 0, err
	}
	if len(records) > 0 {
		if err := env.Store.Upsert(ctx, records); err != nil {
			return 0, err
		}
	}

	sn := db.SyncedNote{
		SourceType: n.SourceType,
		SourceID:   n.SourceID,
		Title:      n.Title,
		ChunkCount: len(records),
		ModifiedAt: n.LastModified.Unix(),
		SyncedAt:   time.Now().Unix(),
	}
	if err := db.UpsertSyncedNote(env.DB, sn); err != nil {
		return 0, err
	}
	return len(records), nil
}

// NeedsSync reports whether the index looks stale: nothing synced yet, no
// recorded sync time, or a last sync older than maxAge.
func NeedsSync(env *Env, maxAge time.Duration) (bool, error) {
	count, err := db.CountSyncedNotes(env.DB)
	if err != nil {
		return false, err
	}
	if count == 0 {
		return true, nil
	}
	raw, err := db.GetSetting(env.DB, LastSyncKey)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return true, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return true, nil
	}
	return time.Since(time.Unix(secs, 0)) > maxAge, nil
}

// AutoSyncIfNeeded runs a capped sync when the index is stale. Failures are
// reported on env.Out rather than returned; a stale index should not stop a
// question from being answered.
func AutoSyncIfNeeded(ctx context.Context, env *Env) {
	maxAge := time.Duration(env.Config.AutoSyncHours) * time.Hour
	stale, err := NeedsSync(env, maxAge)
	if err != nil || !stale {
		return
	}
	fmt.Fprintln(env.out(), "Syncing notes...")
	if _, err := Sync(ctx, env, SyncInput{Limit: env.Config.AutoSyncLimit}); err != nil {
		fmt.Fprintf(env.out(), "auto-sync failed: %v\n", err)
	}
}
