package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
)

// SQLiteStore scores vectors in process over a SQLite table. Embeddings
// are stored as JSON-encoded float32 arrays. A full scan per query is
// fine at personal-corpus scale.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite creates the vector tables if needed and returns the store.
// The store does not own the database handle.
func NewSQLite(db *sql.DB) (*SQLiteStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS vectors (
		id          TEXT PRIMARY KEY,
		parent_id   TEXT NOT NULL,
		ordinal     INTEGER NOT NULL,
		source_type TEXT NOT NULL,
		title       TEXT NOT NULL,
		body        TEXT NOT NULL,
		embedding   TEXT NOT NULL,
		updated_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_vectors_parent ON vectors(parent_id);
	CREATE INDEX IF NOT EXISTS idx_vectors_title ON vectors(title);

	CREATE TABLE IF NOT EXISTS vector_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		return nil, apperrors.NewStoreError(fmt.Errorf("init vector tables: %w", err))
	}
	return &SQLiteStore{db: db}, nil
}

// Upsert inserts or replaces records keyed by ID. The first upsert pins
// the embedding dimension; later writes with a different dimension are
// rejected so a model change cannot silently corrupt the index.
func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	dim := len(records[0].Vector)
	if dim == 0 {
		return apperrors.NewStoreError(fmt.Errorf("record %s has an empty vector", records[0].ID))
	}
	for _, r := range records {
		if len(r.Vector) != dim {
			return apperrors.NewStoreError(fmt.Errorf("record %s: dimension %d does not match batch dimension %d", r.ID, len(r.Vector), dim))
		}
	}

	pinned, err := s.Dimension(ctx)
	if err != nil {
		return err
	}
	if pinned != 0 && pinned != dim {
		return apperrors.NewStoreError(fmt.Errorf("embedding dimension changed from %d to %d; clear the index and re-sync", pinned, dim))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreError(err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, r := range records {
		emb, err := encodeVector(r.Vector)
		if err != nil {
			return apperrors.NewStoreError(fmt.Errorf("encode vector %s: %w", r.ID, err))
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO vectors (id, parent_id, ordinal, source_type, title, body, embedding, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				parent_id = excluded.parent_id,
				ordinal = excluded.ordinal,
				source_type = excluded.source_type,
				title = excluded.title,
				body = excluded.body,
				embedding = excluded.embedding,
				updated_at = excluded.updated_at`,
			r.ID, r.ParentID, r.Ordinal, r.SourceType, r.Title, r.Text, emb, now)
		if err != nil {
			return apperrors.NewStoreError(fmt.Errorf("upsert %s: %w", r.ID, err))
		}
	}

	if pinned == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO vector_meta (key, value) VALUES ('dimension', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			strconv.Itoa(dim))
		if err != nil {
			return apperrors.NewStoreError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreError(err)
	}
	return nil
}

// Query scans every matching row, scores it against the query vector,
// and returns the k best ordered by descending similarity.
func (s *SQLiteStore) Query(ctx context.Context, query []float32, k int, filter *Filter) ([]Result, error) {
	if len(query) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}

	pinned, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if pinned != 0 && pinned != len(query) {
		return nil, apperrors.NewStoreError(fmt.Errorf("query dimension %d does not match index dimension %d; clear the index and re-sync", len(query), pinned))
	}

	q := `SELECT id, parent_id, ordinal, source_type, title, body, embedding, updated_at FROM vectors`
	where, args := buildFilter(filter)
	if where != "" {
		q += " WHERE " + where
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Record
		var emb string
		if err := rows.Scan(&r.ID, &r.ParentID, &r.Ordinal, &r.SourceType, &r.Title, &r.Text, &emb, &r.UpdatedAt); err != nil {
			return nil, apperrors.NewStoreError(err)
		}
		vec, err := decodeVector(emb)
		if err != nil {
			return nil, apperrors.NewStoreError(fmt.Errorf("decode vector %s: %w", r.ID, err))
		}
		results = append(results, Result{Record: r, Score: cosineSimilarity(query, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError(err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Titles returns the sorted distinct note titles in the index.
func (s *SQLiteStore) Titles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT title FROM vectors ORDER BY title`)
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, apperrors.NewStoreError(err)
		}
		titles = append(titles, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	return titles, nil
}

// ChunksByTitle returns every record with the given note title, ordered
// by ordinal.
func (s *SQLiteStore) ChunksByTitle(ctx context.Context, title string) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, ordinal, source_type, title, body, updated_at
		FROM vectors WHERE title = ? ORDER BY parent_id, ordinal`, title)
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.ParentID, &r.Ordinal, &r.SourceType, &r.Title, &r.Text, &r.UpdatedAt); err != nil {
			return nil, apperrors.NewStoreError(err)
		}
		results = append(results, Result{Record: r})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	return results, nil
}

// DeleteByParent removes every record belonging to a parent note.
func (s *SQLiteStore) DeleteByParent(ctx context.Context, parentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE parent_id = ?`, parentID); err != nil {
		return apperrors.NewStoreError(err)
	}
	return nil
}

// Count reports the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return 0, apperrors.NewStoreError(err)
	}
	return n, nil
}

// Clear removes all records and unpins the embedding dimension.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreError(err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors`); err != nil {
		return apperrors.NewStoreError(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vector_meta`); err != nil {
		return apperrors.NewStoreError(err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreError(err)
	}
	return nil
}

// Close is a no-op; the caller owns the database handle.
func (s *SQLiteStore) Close() error { return nil }

// Dimension returns the pinned embedding dimension, or zero while the
// index is empty.
func (s *SQLiteStore) Dimension(ctx context.Context) (int, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM vector_meta WHERE key = 'dimension'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.NewStoreError(err)
	}
	dim, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.NewStoreError(fmt.Errorf("corrupt dimension value %q", v))
	}
	return dim, nil
}

// buildFilter turns a Filter into a WHERE fragment and its arguments.
func buildFilter(f *Filter) (string, []any) {
	if f == nil {
		return "", nil
	}
	var clauses []string
	var args []any
	if len(f.SourceTypes) > 0 {
		clauses = append(clauses, "source_type IN ("+placeholders(len(f.SourceTypes))+")")
		for _, st := range f.SourceTypes {
			args = append(args, st)
		}
	}
	if len(f.ExcludeSourceTypes) > 0 {
		clauses = append(clauses, "source_type NOT IN ("+placeholders(len(f.ExcludeSourceTypes))+")")
		for _, st := range f.ExcludeSourceTypes {
			args = append(args, st)
		}
	}
	return strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func encodeVector(v []float32) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeVector(s string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
