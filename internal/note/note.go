package note

import "time"

// Source types. Sync sources produce apple, markdown, and lumifyhub notes;
// conversation and style records are derived inside the pipeline.
const (
	SourceApple        = "apple"
	SourceMarkdown     = "markdown"
	SourceLumify       = "lumifyhub"
	SourceConversation = "conversation"
	SourceStyle        = "style"
)

// SyncSourceTypes lists the source types a sync pass may produce.
var SyncSourceTypes = []string{SourceApple, SourceMarkdown, SourceLumify}

// Note is the common shape every sync source normalizes to.
// Identity is (SourceType, SourceID).
type Note struct {
	// SourceType tags the origin: apple, markdown, or lumifyhub for synced
	// notes; conversation or style for derived records.
	SourceType string `json:"source_type"`

	// SourceID is the origin-assigned stable identifier.
	SourceID string `json:"source_id"`

	// Title is the note title. The reserved profile title marks the
	// profile note.
	Title string `json:"title"`

	// Body is the full note text.
	Body string `json:"body"`

	// LastModified is the origin's modification time, used for
	// incremental sync.
	LastModified time.Time `json:"last_modified"`
}

// ParentID returns the stable vector-store parent key for this note.
func (n Note) ParentID() string {
	return n.SourceType + ":" + n.SourceID
}

// Chunk is a bounded sub-segment of a note's body, the unit of embedding
// and retrieval. Chunks are derived: re-chunking after an edit replaces the
// previous set for the same parent.
type Chunk struct {
	// ParentID is the owning note's ParentID.
	ParentID string `json:"parent_id"`

	// Ordinal is the chunk's position, contiguous from 0 per note.
	Ordinal int `json:"ordinal"`

	// Text is the embedding payload: a "[Note: title]" header followed by
	// the body slice.
	Text string `json:"text"`

	// Start and End are byte offsets of the slice into the note body.
	Start int `json:"start"`
	End   int `json:"end"`
}
