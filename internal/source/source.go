// Package source implements the places notes sync from: Apple Notes via
// AppleScript, a local markdown vault, and LumifyHub JSON exports. Each
// source normalizes its origin's shape into note.Note; everything
// downstream is source-agnostic.
package source

import (
	"context"

	"github.com/hpungsan/dumbledore/internal/note"
)

// Source is a sync origin. Identity of a listed note is
// (SourceType, SourceID); List must return stable SourceIDs across runs
// so incremental sync can match notes to prior state.
type Source interface {
	// Type returns the source type tag (note.SourceApple, etc).
	Type() string

	// Available reports whether the source can be used right now.
	// Sync skips unavailable sources with a warning instead of failing.
	Available() error

	// List returns up to limit notes with full bodies. limit <= 0 means
	// no cap. Notes are normalized before return.
	List(ctx context.Context, limit int) ([]note.Note, error)
}
