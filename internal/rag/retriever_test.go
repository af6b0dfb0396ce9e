package rag

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/dumbledore/internal/db"
	"github.com/hpungsan/dumbledore/internal/note"
	"github.com/hpungsan/dumbledore/internal/vector"
)

// fakeEmbedder maps text onto keyword counts so similarity is a plain
// function of shared vocabulary. Deterministic and offline.
type fakeEmbedder struct{}

var fakeKeywords = []string{"garden", "job", "book", "travel"}

func (fakeEmbedder) Name() string  { return "fake" }
func (fakeEmbedder) Model() string { return "fake-model" }

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		low := strings.ToLower(text)
		vec := make([]float32, len(fakeKeywords))
		for j, kw := range fakeKeywords {
			vec[j] = float32(strings.Count(low, kw))
		}
		out[i] = vec
	}
	return out, nil
}

func newTestStore(t *testing.T) (*sql.DB, *vector.SQLiteStore) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	store, err := vector.NewSQLite(database)
	require.NoError(t, err)
	return database, store
}

// seedNote upserts one record per text under a single parent.
func seedNote(t *testing.T, store vector.Store, parentID, sourceType, title string, texts ...string) {
	t.Helper()
	vecs, err := fakeEmbedder{}.Embed(context.Background(), texts)
	require.NoError(t, err)

	records := make([]vector.Record, len(texts))
	for i, text := range texts {
		records[i] = vector.Record{
			ID:         vector.RecordID(parentID, i),
			ParentID:   parentID,
			Ordinal:    i,
			SourceType: sourceType,
			Title:      title,
			Text:       text,
			Vector:     vecs[i],
		}
	}
	require.NoError(t, store.Upsert(context.Background(), records))
}

func TestRetrieve_BundleComposition(t *testing.T) {
	_, store := newTestStore(t)
	r := NewRetriever(store, fakeEmbedder{}, Config{TopK: 3, ConversationK: 2, PerNoteCap: 2})

	seedNote(t, store, "markdown:whoami", note.SourceMarkdown, "Who am I?",
		"[Note: Who am I?]\n\nEngineer. Values depth over breadth.")
	seedNote(t, store, "markdown:gplan", note.SourceMarkdown, "Garden Plan",
		"[Note: Garden Plan]\n\ngarden garden garden",
		"[Note: Garden Plan]\n\ngarden garden garden",
		"[Note: Garden Plan]\n\ngarden garden garden book")
	seedNote(t, store, "markdown:gjournal", note.SourceMarkdown, "Garden Journal",
		"[Note: Garden Journal]\n\ngarden job")
	seedNote(t, store, "markdown:jobhunt", note.SourceMarkdown, "Job Hunt",
		"[Note: Job Hunt]\n\njob job job")
	seedNote(t, store, "conversation:conv_1", note.SourceConversation, "Conversation: garden ideas",
		"[Note: Conversation: garden ideas]\n\nUser: about the garden")

	bundle, err := r.Retrieve(context.Background(), "garden")
	require.NoError(t, err)

	if bundle.Profile != "[Note: Who am I?]\n\nEngineer. Values depth over breadth." {
		t.Errorf("profile = %q", bundle.Profile)
	}

	// Per-note cap keeps two Garden Plan chunks; the third is displaced by
	// the next note even though it scores higher.
	require.Len(t, bundle.Chunks, 3)
	if bundle.Chunks[0].ParentID != "markdown:gplan" || bundle.Chunks[1].ParentID != "markdown:gplan" {
		t.Errorf("top chunks should come from Garden Plan, got %q, %q",
			bundle.Chunks[0].ParentID, bundle.Chunks[1].ParentID)
	}
	if bundle.Chunks[2].ParentID != "markdown:gjournal" {
		t.Errorf("third chunk should fall to Garden Journal, got %q", bundle.Chunks[2].ParentID)
	}
	for _, c := range bundle.Chunks {
		if c.SourceType == note.SourceConversation {
			t.Error("conversation records must not appear among note chunks")
		}
	}

	require.Len(t, bundle.Conversations, 1)
	if bundle.Conversations[0].Title != "Conversation: garden ideas" {
		t.Errorf("conversation excerpt = %q", bundle.Conversations[0].Title)
	}
}

func TestRetrieve_EmptyStore(t *testing.T) {
	_, store := newTestStore(t)
	r := NewRetriever(store, fakeEmbedder{}, Config{})

	bundle, err := r.Retrieve(context.Background(), "anything at all")
	require.NoError(t, err)

	if !bundle.Empty() {
		t.Errorf("expected empty bundle, got %+v", bundle)
	}
	if got := bundle.Format(); got != "" {
		t.Errorf("empty bundle should format to \"\", got %q", got)
	}
}

func TestProfile_JoinsChunksInOrder(t *testing.T) {
	_, store := newTestStore(t)
	r := NewRetriever(store, fakeEmbedder{}, Config{})

	seedNote(t, store, "apple:p1", note.SourceApple, "Who am I?",
		"[Note: Who am I?]\n\nFirst part.",
		"[Note: Who am I?]\n\nSecond part.")

	got, err := r.Profile(context.Background())
	require.NoError(t, err)

	want := "[Note: Who am I?]\n\nFirst part.\n\n[Note: Who am I?]\n\nSecond part."
	if got != want {
		t.Errorf("profile = %q, want %q", got, want)
	}
}

func TestProfile_AbsentIsNotAnError(t *testing.T) {
	_, store := newTestStore(t)
	r := NewRetriever(store, fakeEmbedder{}, Config{})

	got, err := r.Profile(context.Background())
	require.NoError(t, err)
	if got != "" {
		t.Errorf("expected empty profile, got %q", got)
	}
}

func TestBundleFormat(t *testing.T) {
	b := &Bundle{
		Profile: "Engineer.",
		Chunks: []vector.Result{
			{Record: vector.Record{Title: "Beta", Text: "chunk one"}, Score: 0.9},
			{Record: vector.Record{Title: "Alpha", Text: "chunk two"}, Score: 0.8},
		},
		Conversations: []vector.Result{
			{Record: vector.Record{Title: "Conversation: trip", Text: "we talked travel"}, Score: 0.7},
		},
	}

	want := "## About the User\nEngineer.\n\n" +
		"## Relevant Notes\nchunk one\n\n---\n\nchunk two\n\n" +
		"## Relevant Past Conversations\nwe talked travel\n\n" +
		"[Sources: Alpha, Beta, Conversation: trip]"
	if got := b.Format(); got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestBundleFormat_SkipsEmptySections(t *testing.T) {
	b := &Bundle{
		Chunks: []vector.Result{
			{Record: vector.Record{Title: "Solo", Text: "only chunk"}, Score: 0.5},
		},
	}

	got := b.Format()
	if strings.Contains(got, "About the User") {
		t.Error("profile section should be omitted when absent")
	}
	if strings.Contains(got, "Past Conversations") {
		t.Error("conversation section should be omitted when absent")
	}
	if !strings.HasPrefix(got, "## Relevant Notes\nonly chunk") {
		t.Errorf("got %q", got)
	}
	if !strings.HasSuffix(got, "[Sources: Solo]") {
		t.Errorf("got %q", got)
	}
}

func TestFormatSearchResults(t *testing.T) {
	results := []vector.Result{
		{Record: vector.Record{Title: "Garden Plan", Text: "tomatoes and beans"}, Score: 0.9},
		{Record: vector.Record{Title: "Job Hunt", Text: strings.Repeat("x", 250)}, Score: -0.2},
	}

	got := FormatSearchResults(results)

	if !strings.Contains(got, "**1. Garden Plan** (relevance: 90%)\ntomatoes and beans") {
		t.Errorf("first entry malformed:\n%s", got)
	}
	// Negative similarity clamps to zero.
	if !strings.Contains(got, "**2. Job Hunt** (relevance: 0%)") {
		t.Errorf("second entry malformed:\n%s", got)
	}
	if !strings.Contains(got, strings.Repeat("x", 200)+"...") {
		t.Error("long preview should truncate at 200 characters")
	}
	if strings.Contains(got, strings.Repeat("x", 201)) {
		t.Error("preview exceeded the truncation limit")
	}
}

func TestFormatSearchResults_Empty(t *testing.T) {
	if got := FormatSearchResults(nil); got != "No results found." {
		t.Errorf("got %q", got)
	}
}
