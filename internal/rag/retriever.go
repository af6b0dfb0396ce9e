// Package rag assembles retrieval context for the advisor: the profile
// note, semantically relevant note chunks, and excerpts from memorized
// conversations. It also writes conversations back into the vector store
// at end of session.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/dumbledore/internal/embed"
	"github.com/hpungsan/dumbledore/internal/note"
	"github.com/hpungsan/dumbledore/internal/vector"
)

// Retrieval defaults, all overridable through Config.
const (
	DefaultTopK          = 5
	DefaultConversationK = 2
	DefaultPerNoteCap    = 2
	DefaultProfileTitle  = "Who am I?"
)

// overshootFactor widens the store query so the per-note cap can drop
// crowding chunks and still fill topK.
const overshootFactor = 3

// Config tunes retrieval.
type Config struct {
	// TopK is the number of note chunks per bundle.
	TopK int

	// ConversationK is the number of past-conversation excerpts per bundle.
	ConversationK int

	// PerNoteCap limits chunks from any single note so one very relevant
	// note does not crowd out diversity.
	PerNoteCap int

	// ProfileTitle is the reserved title of the profile note.
	ProfileTitle string
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.ConversationK <= 0 {
		c.ConversationK = DefaultConversationK
	}
	if c.PerNoteCap <= 0 {
		c.PerNoteCap = DefaultPerNoteCap
	}
	if c.ProfileTitle == "" {
		c.ProfileTitle = DefaultProfileTitle
	}
	return c
}

// Retriever answers questions with context bundles.
type Retriever struct {
	store    vector.Store
	embedder embed.Embedder
	cfg      Config
}

// NewRetriever wires a retriever over a vector store and an embedder.
func NewRetriever(store vector.Store, embedder embed.Embedder, cfg Config) *Retriever {
	return &Retriever{store: store, embedder: embedder, cfg: cfg.withDefaults()}
}

// Bundle is the retrieved context for one question, ordered profile
// first, then note chunks by descending similarity, then conversation
// excerpts.
type Bundle struct {
	Profile       string
	Chunks        []vector.Result
	Conversations []vector.Result
}

// Empty reports whether nothing was retrieved.
func (b *Bundle) Empty() bool {
	return b.Profile == "" && len(b.Chunks) == 0 && len(b.Conversations) == 0
}

// Format renders the bundle for the LLM prompt. Sections are omitted when
// empty; an empty bundle renders as "".
func (b *Bundle) Format() string {
	var parts []string

	if b.Profile != "" {
		parts = append(parts, "## About the User\n"+b.Profile)
	}

	if len(b.Chunks) > 0 {
		texts := make([]string, len(b.Chunks))
		for i, r := range b.Chunks {
			texts[i] = r.Text
		}
		parts = append(parts, "## Relevant Notes\n"+strings.Join(texts, "\n\n---\n\n"))
	}

	if len(b.Conversations) > 0 {
		texts := make([]string, len(b.Conversations))
		for i, r := range b.Conversations {
			texts[i] = r.Text
		}
		parts = append(parts, "## Relevant Past Conversations\n"+strings.Join(texts, "\n\n---\n\n"))
	}

	if titles := b.SourceTitles(); len(titles) > 0 {
		parts = append(parts, fmt.Sprintf("[Sources: %s]", strings.Join(titles, ", ")))
	}

	return strings.Join(parts, "\n\n")
}

// SourceTitles returns the sorted distinct note titles behind the bundle.
func (b *Bundle) SourceTitles() []string {
	seen := make(map[string]bool)
	for _, r := range b.Chunks {
		seen[r.Title] = true
	}
	for _, r := range b.Conversations {
		seen[r.Title] = true
	}

	titles := make([]string, 0, len(seen))
	for t := range seen {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}

// Retrieve builds the context bundle for a question. An empty store
// yields an empty bundle, not an error.
func (r *Retriever) Retrieve(ctx context.Context, question string) (*Bundle, error) {
	profile, err := r.Profile(ctx)
	if err != nil {
		return nil, err
	}

	chunks, err := r.noteChunks(ctx, question)
	if err != nil {
		return nil, err
	}

	conversations, err := r.Search(ctx, question, r.cfg.ConversationK, &vector.Filter{
		SourceTypes: []string{note.SourceConversation},
	})
	if err != nil {
		return nil, err
	}

	return &Bundle{Profile: profile, Chunks: chunks, Conversations: conversations}, nil
}

// Profile returns the profile note text, or "" when no profile note is
// synced. Chunks are joined in ordinal order.
func (r *Retriever) Profile(ctx context.Context) (string, error) {
	chunks, err := r.store.ChunksByTitle(ctx, r.cfg.ProfileTitle)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, "\n\n"), nil
}

// Search embeds the query and runs a raw store query. Callers wanting the
// advisor's composed context should use Retrieve instead.
func (r *Retriever) Search(ctx context.Context, query string, k int, filter *vector.Filter) ([]vector.Result, error) {
	if k <= 0 {
		k = r.cfg.TopK
	}

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return r.store.Query(ctx, vecs[0], k, filter)
}

// noteChunks retrieves topK note chunks, excluding conversation records
// and capping chunks per note. The query overshoots so capped-out chunks
// are replaced by the next best notes instead of shrinking the bundle.
func (r *Retriever) noteChunks(ctx context.Context, question string) ([]vector.Result, error) {
	results, err := r.Search(ctx, question, r.cfg.TopK*overshootFactor, &vector.Filter{
		ExcludeSourceTypes: []string{note.SourceConversation},
	})
	if err != nil {
		return nil, err
	}

	perNote := make(map[string]int)
	var kept []vector.Result
	for _, res := range results {
		if len(kept) == r.cfg.TopK {
			break
		}
		if perNote[res.ParentID] >= r.cfg.PerNoteCap {
			continue
		}
		perNote[res.ParentID]++
		kept = append(kept, res)
	}
	return kept, nil
}

// FormatSearchResults renders search hits for display: rank, title,
// relevance percentage, and a preview of the chunk.
func FormatSearchResults(results []vector.Result) string {
	if len(results) == 0 {
		return "No results found."
	}

	entries := make([]string, len(results))
	for i, r := range results {
		score := r.Score
		if score < 0 {
			score = 0
		}

		preview := r.Text
		if utf8.RuneCountInString(preview) > 200 {
			preview = string([]rune(preview)[:200]) + "..."
		}

		entries[i] = fmt.Sprintf("**%d. %s** (relevance: %.0f%%)\n%s", i+1, r.Title, score*100, preview)
	}
	return strings.Join(entries, "\n\n")
}
