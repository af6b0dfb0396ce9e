package vector

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/hpungsan/dumbledore/internal/db"
	apperrors "github.com/hpungsan/dumbledore/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store, err := NewSQLite(database)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	return store
}

func rec(parent string, ordinal int, sourceType, title, text string, vec []float32) Record {
	return Record{
		ID:         RecordID(parent, ordinal),
		ParentID:   parent,
		Ordinal:    ordinal,
		SourceType: sourceType,
		Title:      title,
		Text:       text,
		Vector:     vec,
	}
}

func TestSQLiteUpsertAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Upsert(ctx, []Record{
		rec("markdown:a.md", 0, "markdown", "Alpha", "about dogs", []float32{1, 0, 0}),
		rec("markdown:b.md", 0, "markdown", "Beta", "about cats", []float32{0, 1, 0}),
		rec("markdown:c.md", 0, "markdown", "Gamma", "about birds", []float32{0.9, 0.1, 0}),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("count = %d, err = %v", n, err)
	}

	results, err := s.Query(ctx, []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].ParentID != "markdown:a.md" {
		t.Errorf("best match = %s", results[0].ParentID)
	}
	if results[1].ParentID != "markdown:c.md" {
		t.Errorf("second match = %s", results[1].ParentID)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("scores out of order: %f < %f", results[0].Score, results[1].Score)
	}
	if math.Abs(results[0].Score-1) > 1e-6 {
		t.Errorf("exact match score = %f, want ~1", results[0].Score)
	}
	if results[0].Title != "Alpha" || results[0].Text != "about dogs" {
		t.Errorf("result fields: %+v", results[0].Record)
	}
	if results[0].UpdatedAt == 0 {
		t.Error("UpdatedAt not stamped")
	}
}

func TestSQLiteUpsert_ReplacesByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := rec("apple:n1", 0, "apple", "Note", "old text", []float32{1, 0})
	if err := s.Upsert(ctx, []Record{old}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	updated := rec("apple:n1", 0, "apple", "Note", "new text", []float32{0, 1})
	if err := s.Upsert(ctx, []Record{updated}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	if n, _ := s.Count(ctx); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	results, err := s.Query(ctx, []float32{0, 1}, 1, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if results[0].Text != "new text" {
		t.Errorf("text = %q, want replaced text", results[0].Text)
	}
}

func TestSQLiteQuery_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Upsert(ctx, []Record{
		rec("apple:1", 0, "apple", "A", "a", []float32{1, 0}),
		rec("markdown:m.md", 0, "markdown", "M", "m", []float32{1, 0}),
		rec("conversation:conv_1", 0, "conversation", "C", "c", []float32{1, 0}),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := s.Query(ctx, []float32{1, 0}, 10, &Filter{SourceTypes: []string{"apple"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 || results[0].SourceType != "apple" {
		t.Errorf("source filter results: %+v", results)
	}

	results, err = s.Query(ctx, []float32{1, 0}, 10, &Filter{ExcludeSourceTypes: []string{"conversation"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("exclude filter returned %d results", len(results))
	}
	for _, r := range results {
		if r.SourceType == "conversation" {
			t.Errorf("conversation record leaked through exclude filter: %+v", r.Record)
		}
	}
}

func TestSQLiteDimensionPinned(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, []Record{rec("apple:1", 0, "apple", "A", "a", []float32{1, 0, 0})}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	err := s.Upsert(ctx, []Record{rec("apple:2", 0, "apple", "B", "b", []float32{1, 0})})
	if !apperrors.Is(err, apperrors.ErrStoreError) {
		t.Errorf("dimension change on upsert: got %v, want STORE_ERROR", err)
	}

	_, err = s.Query(ctx, []float32{1, 0}, 5, nil)
	if !apperrors.Is(err, apperrors.ErrStoreError) {
		t.Errorf("dimension change on query: got %v, want STORE_ERROR", err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := s.Upsert(ctx, []Record{rec("apple:2", 0, "apple", "B", "b", []float32{1, 0})}); err != nil {
		t.Errorf("upsert after clear: %v", err)
	}
}

func TestSQLiteTitles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	titles, err := s.Titles(ctx)
	if err != nil {
		t.Fatalf("titles: %v", err)
	}
	if len(titles) != 0 {
		t.Errorf("empty store titles = %v", titles)
	}

	err = s.Upsert(ctx, []Record{
		rec("markdown:z.md", 0, "markdown", "Zeta", "z0", []float32{1, 0}),
		rec("markdown:z.md", 1, "markdown", "Zeta", "z1", []float32{0, 1}),
		rec("apple:1", 0, "apple", "Alpha", "a", []float32{1, 1}),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	titles, err = s.Titles(ctx)
	if err != nil {
		t.Fatalf("titles: %v", err)
	}
	if !reflect.DeepEqual(titles, []string{"Alpha", "Zeta"}) {
		t.Errorf("titles = %v, want sorted distinct", titles)
	}
}

func TestSQLiteChunksByTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Upsert(ctx, []Record{
		rec("markdown:long.md", 2, "markdown", "Long", "part three", []float32{0, 0, 1}),
		rec("markdown:long.md", 0, "markdown", "Long", "part one", []float32{1, 0, 0}),
		rec("markdown:other.md", 0, "markdown", "Other", "other", []float32{0, 1, 0}),
		rec("markdown:long.md", 1, "markdown", "Long", "part two", []float32{0, 1, 0}),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := s.ChunksByTitle(ctx, "Long")
	if err != nil {
		t.Fatalf("chunks by title: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d chunks", len(results))
	}
	for i, r := range results {
		if r.Ordinal != i {
			t.Errorf("chunk %d: ordinal = %d", i, r.Ordinal)
		}
	}
	if results[0].Text != "part one" || results[2].Text != "part three" {
		t.Errorf("texts out of order: %q %q", results[0].Text, results[2].Text)
	}

	none, err := s.ChunksByTitle(ctx, "Missing")
	if err != nil {
		t.Fatalf("chunks by title: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("missing title returned %d chunks", len(none))
	}
}

func TestSQLiteDeleteByParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Upsert(ctx, []Record{
		rec("apple:1", 0, "apple", "A", "a0", []float32{1, 0}),
		rec("apple:1", 1, "apple", "A", "a1", []float32{0, 1}),
		rec("apple:2", 0, "apple", "B", "b0", []float32{1, 1}),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.DeleteByParent(ctx, "apple:1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	results, err := s.ChunksByTitle(ctx, "A")
	if err != nil {
		t.Fatalf("chunks by title: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("deleted parent still has %d records", len(results))
	}
}

func TestSQLiteQuery_TieBreaksOnID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Upsert(ctx, []Record{
		rec("markdown:b.md", 0, "markdown", "B", "b", []float32{1, 0}),
		rec("markdown:a.md", 0, "markdown", "A", "a", []float32{1, 0}),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := s.Query(ctx, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if results[0].ID != "markdown:a.md#0" || results[1].ID != "markdown:b.md#0" {
		t.Errorf("tie break order: %s, %s", results[0].ID, results[1].ID)
	}
}

func TestSQLiteQuery_EmptyStore(t *testing.T) {
	s := newTestStore(t)
	results, err := s.Query(context.Background(), []float32{1, 0}, 5, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty store", len(results))
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosineSimilarity = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestRecordID(t *testing.T) {
	if got := RecordID("apple:x1", 4); got != "apple:x1#4" {
		t.Errorf("RecordID = %q", got)
	}
}
