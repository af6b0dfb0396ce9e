// Package vector stores embedded chunks and serves similarity queries.
// Two backends are available: a SQLite-backed brute-force store (the
// default, zero extra infrastructure) and a ChromaDB collection.
package vector

import (
	"context"
	"fmt"
)

// Record is one embedded chunk in the index. Records are keyed by ID so
// re-syncing a note overwrites its previous chunks in place.
type Record struct {
	// ID is "{parent_id}#{ordinal}".
	ID string
	// ParentID is "{source_type}:{source_id}" of the owning note.
	ParentID string
	// Ordinal is the chunk's position within its note.
	Ordinal int
	// SourceType is the owning note's source.
	SourceType string
	// Title is the owning note's title.
	Title string
	// Text is the chunk text as embedded, including its note header.
	Text string
	// Vector is the embedding.
	Vector []float32
	// UpdatedAt is the unix time the record was last written, stamped
	// by the store on upsert.
	UpdatedAt int64
}

// Result is a retrieval hit. The Vector field is not populated.
type Result struct {
	Record
	// Score is similarity, higher is more similar. Zero for lookups
	// that carry no query vector.
	Score float64
}

// Filter restricts a query to a subset of records. A nil filter matches
// everything.
type Filter struct {
	// SourceTypes keeps only records from these sources when non-empty.
	SourceTypes []string
	// ExcludeSourceTypes drops records from these sources.
	ExcludeSourceTypes []string
}

// Store indexes chunk vectors and serves similarity queries.
type Store interface {
	// Upsert inserts or replaces records keyed by Record.ID.
	Upsert(ctx context.Context, records []Record) error
	// Query returns the k records most similar to the query vector,
	// ordered by descending score. Ties break on record ID.
	Query(ctx context.Context, query []float32, k int, filter *Filter) ([]Result, error)
	// Titles returns the sorted distinct note titles in the index.
	Titles(ctx context.Context) ([]string, error)
	// ChunksByTitle returns every record whose note title matches,
	// ordered by ordinal.
	ChunksByTitle(ctx context.Context, title string) ([]Result, error)
	// DeleteByParent removes every record belonging to a parent note.
	DeleteByParent(ctx context.Context, parentID string) error
	// Count reports the number of stored records.
	Count(ctx context.Context) (int, error)
	// Clear removes all records.
	Clear(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// RecordID builds the store key for a chunk.
func RecordID(parentID string, ordinal int) string {
	return fmt.Sprintf("%s#%d", parentID, ordinal)
}
