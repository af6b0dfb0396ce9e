package rag

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/dumbledore/internal/db"
	"github.com/hpungsan/dumbledore/internal/embed"
	"github.com/hpungsan/dumbledore/internal/note"
	"github.com/hpungsan/dumbledore/internal/vector"
)

// DefaultMemoryThreshold is the exchange count a conversation must exceed
// to be memorized. At or below it the conversation is discarded.
const DefaultMemoryThreshold = 3

// Memory turns finished conversations into retrievable records.
type Memory struct {
	store     vector.Store
	embedder  embed.Embedder
	database  *sql.DB
	chunker   *note.Chunker
	threshold int
}

// NewMemory wires conversation memorization. threshold <= 0 uses the
// default; chunker nil uses the default chunk budget.
func NewMemory(store vector.Store, embedder embed.Embedder, database *sql.DB, chunker *note.Chunker, threshold int) *Memory {
	if chunker == nil {
		chunker = note.NewChunker(0)
	}
	if threshold <= 0 {
		threshold = DefaultMemoryThreshold
	}
	return &Memory{
		store:     store,
		embedder:  embedder,
		database:  database,
		chunker:   chunker,
		threshold: threshold,
	}
}

// Memorize decides a finished conversation's fate and returns its final
// status. More than threshold exchanges: the transcript is chunked,
// embedded, and upserted under the conversation's parent id, and the
// conversation becomes memorized. Otherwise it becomes discarded. An
// active conversation is ended first; a terminal one is left untouched.
// Re-memorization replaces the stored chunks rather than duplicating.
func (m *Memory) Memorize(ctx context.Context, conversationID string) (string, error) {
	conv, err := db.GetConversation(m.database, conversationID)
	if err != nil {
		return "", err
	}

	switch conv.Status {
	case db.StatusMemorized, db.StatusDiscarded:
		return conv.Status, nil
	case db.StatusActive:
		if err := db.EndConversation(m.database, conversationID); err != nil {
			return "", err
		}
	}

	exchanges, err := db.CountUserMessages(m.database, conversationID)
	if err != nil {
		return "", err
	}
	if exchanges <= m.threshold {
		if err := db.SetConversationStatus(m.database, conversationID, db.StatusDiscarded); err != nil {
			return "", err
		}
		return db.StatusDiscarded, nil
	}

	messages, err := db.GetMessages(m.database, conversationID)
	if err != nil {
		return "", err
	}

	convNote := ConversationNote(conversationID, conv.Topic, messages, time.Now())
	chunks := m.chunker.Chunk(convNote)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		return "", err
	}

	records := make([]vector.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vector.Record{
			ID:         vector.RecordID(c.ParentID, c.Ordinal),
			ParentID:   c.ParentID,
			Ordinal:    c.Ordinal,
			SourceType: note.SourceConversation,
			Title:      convNote.Title,
			Text:       c.Text,
			Vector:     vecs[i],
		}
	}

	if err := m.store.DeleteByParent(ctx, convNote.ParentID()); err != nil {
		return "", err
	}
	if err := m.store.Upsert(ctx, records); err != nil {
		return "", err
	}

	if err := db.SetConversationStatus(m.database, conversationID, db.StatusMemorized); err != nil {
		return "", err
	}
	return db.StatusMemorized, nil
}

// ConversationNote shapes a transcript as a note ready for chunking.
// The title carries the topic so retrieval shows where the excerpt came
// from; the body opens with the conversation date.
func ConversationNote(conversationID, topic string, messages []db.Message, now time.Time) note.Note {
	title := fmt.Sprintf("Conversation: %s", topic)
	if topic == "" {
		title = fmt.Sprintf("Conversation %s", conversationID)
	}
	return note.Normalize(note.Note{
		SourceType:   note.SourceConversation,
		SourceID:     "conv_" + conversationID,
		Title:        title,
		Body:         FormatTranscript(messages, topic, now),
		LastModified: now,
	})
}

// FormatTranscript renders messages as embedding text: a date line, the
// topic, then alternating speaker-labelled turns separated by blank lines.
func FormatTranscript(messages []db.Message, topic string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Conversation from %s]\n\n", now.Format("2006-01-02"))

	if topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n\n", topic)
	}

	for _, msg := range messages {
		role := "Dumbledore"
		if msg.Role == "user" {
			role = "User"
		}
		fmt.Fprintf(&b, "%s: %s\n\n", role, msg.Content)
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}
