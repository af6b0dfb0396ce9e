package ops

import (
	"crypto/rand"
	"database/sql"
	"io"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/dumbledore/internal/config"
	"github.com/hpungsan/dumbledore/internal/embed"
	"github.com/hpungsan/dumbledore/internal/llm"
	"github.com/hpungsan/dumbledore/internal/note"
	"github.com/hpungsan/dumbledore/internal/rag"
	"github.com/hpungsan/dumbledore/internal/source"
	"github.com/hpungsan/dumbledore/internal/vector"
)

// Listing limits
const (
	DefaultNotesLimit         = 50
	MaxNotesLimit             = 500
	DefaultConversationsLimit = 10
	MaxConversationsLimit     = 100
	MaxSearchLimit            = 50
)

// Env carries the dependencies the operations share. Callers wire it once at
// startup; tests assemble one from fakes and a temp database.
type Env struct {
	DB       *sql.DB
	Store    vector.Store
	Embedder embed.Embedder
	LLM      llm.Client
	Sources  []source.Source
	Config   *config.Config

	// BaseDir is the data directory holding the database and exports.
	BaseDir string

	// Out receives progress lines from long-running operations. Nil is silent.
	Out io.Writer
}

func (e *Env) out() io.Writer {
	if e.Out == nil {
		return io.Discard
	}
	return e.Out
}

func (e *Env) chunker() *note.Chunker {
	return note.NewChunker(e.Config.ChunkBudget)
}

func (e *Env) retriever() *rag.Retriever {
	return rag.NewRetriever(e.Store, e.Embedder, rag.Config{
		TopK:          e.Config.TopK,
		ConversationK: e.Config.ConversationK,
		PerNoteCap:    e.Config.PerNoteCap,
		ProfileTitle:  e.Config.ProfileTitle,
	})
}

func (e *Env) memory() *rag.Memory {
	return rag.NewMemory(e.Store, e.Embedder, e.DB, e.chunker(), 0)
}

// sourceFor returns the wired source of the given type, or nil.
func (e *Env) sourceFor(sourceType string) source.Source {
	for _, s := range e.Sources {
		if s.Type() == sourceType {
			return s
		}
	}
	return nil
}

// ulidEntropy is shared so generated ids sort in creation order within a
// process.
var ulidEntropy = ulid.Monotonic(rand.Reader, 0)

func newULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}
