package db

import (
	"database/sql"
	"time"

	"github.com/hpungsan/dumbledore/internal/errors"
)

// Conversation statuses. A conversation is created active, marked ended when
// the session closes, then lands in exactly one terminal state.
const (
	StatusActive    = "active"
	StatusEnded     = "ended"
	StatusMemorized = "memorized"
	StatusDiscarded = "discarded"
)

// SyncedNote records the sync state of one source note.
type SyncedNote struct {
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id"`
	Title      string `json:"title"`
	ChunkCount int    `json:"chunk_count"`
	ModifiedAt int64  `json:"modified_at"`
	SyncedAt   int64  `json:"synced_at"`
}

// Conversation is one chat session.
type Conversation struct {
	ID            string `json:"id"`
	Topic         string `json:"topic"`
	Status        string `json:"status"`
	StartedAt     int64  `json:"started_at"`
	EndedAt       *int64 `json:"ended_at,omitempty"`
	LastMessageAt int64  `json:"last_message_at"`
}

// Message is one turn of a conversation.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
}

// UpsertSyncedNote inserts or updates the sync record for a note.
// Keyed by (source_type, source_id) so re-sync never duplicates.
func UpsertSyncedNote(db *sql.DB, sn SyncedNote) error {
	query := `
		INSERT INTO synced_notes (source_type, source_id, title, chunk_count, modified_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_type, source_id) DO UPDATE SET
			title = excluded.title,
			chunk_count = excluded.chunk_count,
			modified_at = excluded.modified_at,
			synced_at = excluded.synced_at
	`
	_, err := db.Exec(query, sn.SourceType, sn.SourceID, sn.Title, sn.ChunkCount, sn.ModifiedAt, sn.SyncedAt)
	if err != nil {
		return errors.NewStoreError(err)
	}
	return nil
}

// GetSyncedNote returns the sync record for one note, or NOT_FOUND.
func GetSyncedNote(db *sql.DB, sourceType, sourceID string) (*SyncedNote, error) {
	query := `
		SELECT source_type, source_id, title, chunk_count, modified_at, synced_at
		FROM synced_notes
		WHERE source_type = ? AND source_id = ?
	`
	var sn SyncedNote
	err := db.QueryRow(query, sourceType, sourceID).Scan(
		&sn.SourceType, &sn.SourceID, &sn.Title, &sn.ChunkCount, &sn.ModifiedAt, &sn.SyncedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(sourceType + ":" + sourceID)
	}
	if err != nil {
		return nil, errors.NewStoreError(err)
	}
	return &sn, nil
}

// ListSyncedNotes returns all sync records ordered by title.
func ListSyncedNotes(db *sql.DB) ([]SyncedNote, error) {
	query := `
		SELECT source_type, source_id, title, chunk_count, modified_at, synced_at
		FROM synced_notes
		ORDER BY title COLLATE NOCASE
	`
	rows, err := db.Query(query)
	if err != nil {
		return nil, errors.NewStoreError(err)
	}
	defer rows.Close()

	var notes []SyncedNote
	for rows.Next() {
		var sn SyncedNote
		if err := rows.Scan(&sn.SourceType, &sn.SourceID, &sn.Title, &sn.ChunkCount, &sn.ModifiedAt, &sn.SyncedAt); err != nil {
			return nil, errors.NewStoreError(err)
		}
		notes = append(notes, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError(err)
	}
	return notes, nil
}

// DeleteSyncedNote removes the sync record for one note.
func DeleteSyncedNote(db *sql.DB, sourceType, sourceID string) error {
	_, err := db.Exec(`DELETE FROM synced_notes WHERE source_type = ? AND source_id = ?`, sourceType, sourceID)
	if err != nil {
		return errors.NewStoreError(err)
	}
	return nil
}

// ClearSyncedNotes removes all sync records.
func ClearSyncedNotes(db *sql.DB) error {
	if _, err := db.Exec(`DELETE FROM synced_notes`); err != nil {
		return errors.NewStoreError(err)
	}
	return nil
}

// CountSyncedNotes returns the number of sync records.
func CountSyncedNotes(db *sql.DB) (int, error) {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM synced_notes`).Scan(&count); err != nil {
		return 0, errors.NewStoreError(err)
	}
	return count, nil
}

// StartConversation creates a new active conversation.
func StartConversation(db *sql.DB, id, topic string) (*Conversation, error) {
	now := time.Now().Unix()
	query := `
		INSERT INTO conversations (id, topic, status, started_at, last_message_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := db.Exec(query, id, topic, StatusActive, now, now); err != nil {
		return nil, errors.NewStoreError(err)
	}
	return &Conversation{
		ID:            id,
		Topic:         topic,
		Status:        StatusActive,
		StartedAt:     now,
		LastMessageAt: now,
	}, nil
}

// GetConversation returns one conversation, or NOT_FOUND.
func GetConversation(db *sql.DB, id string) (*Conversation, error) {
	query := `
		SELECT id, topic, status, started_at, ended_at, last_message_at
		FROM conversations
		WHERE id = ?
	`
	row := db.QueryRow(query, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewStoreError(err)
	}
	return conv, nil
}

// LatestActiveConversation returns the most recent active conversation,
// or NOT_FOUND when none exists.
func LatestActiveConversation(db *sql.DB) (*Conversation, error) {
	query := `
		SELECT id, topic, status, started_at, ended_at, last_message_at
		FROM conversations
		WHERE status = ?
		ORDER BY last_message_at DESC
		LIMIT 1
	`
	row := db.QueryRow(query, StatusActive)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("active conversation")
	}
	if err != nil {
		return nil, errors.NewStoreError(err)
	}
	return conv, nil
}

// EndConversation transitions an active conversation to ended.
// Ending a non-active conversation is a no-op.
func EndConversation(db *sql.DB, id string) error {
	now := time.Now().Unix()
	query := `
		UPDATE conversations
		SET status = ?, ended_at = ?
		WHERE id = ? AND status = ?
	`
	if _, err := db.Exec(query, StatusEnded, now, id, StatusActive); err != nil {
		return errors.NewStoreError(err)
	}
	return nil
}

// SetConversationStatus moves an ended conversation to a terminal state.
// Only ended conversations transition; terminal states are final.
func SetConversationStatus(db *sql.DB, id, status string) error {
	query := `
		UPDATE conversations
		SET status = ?
		WHERE id = ? AND status = ?
	`
	result, err := db.Exec(query, status, id, StatusEnded)
	if err != nil {
		return errors.NewStoreError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewStoreError(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// AppendMessage adds a message to a conversation and bumps last_message_at.
func AppendMessage(db *sql.DB, msgID, conversationID, role, content string) error {
	now := time.Now().Unix()

	tx, err := db.Begin()
	if err != nil {
		return errors.NewStoreError(err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := tx.Exec(insert, msgID, conversationID, role, content, now); err != nil {
		return errors.NewStoreError(err)
	}

	touch := `UPDATE conversations SET last_message_at = ? WHERE id = ?`
	if _, err := tx.Exec(touch, now, conversationID); err != nil {
		return errors.NewStoreError(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStoreError(err)
	}
	return nil
}

// GetMessages returns all messages of a conversation in order.
func GetMessages(db *sql.DB, conversationID string) ([]Message, error) {
	query := `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at, id
	`
	return queryMessages(db, query, conversationID)
}

// RecentMessages returns the last limit messages of a conversation,
// oldest first.
func RecentMessages(db *sql.DB, conversationID string, limit int) ([]Message, error) {
	query := `
		SELECT id, conversation_id, role, content, created_at FROM (
			SELECT id, conversation_id, role, content, created_at
			FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at, id
	`
	return queryMessages(db, query, conversationID, limit)
}

// CountUserMessages returns the number of user-role messages in a
// conversation. One user message is one exchange.
func CountUserMessages(db *sql.DB, conversationID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND role = 'user'`
	if err := db.QueryRow(query, conversationID).Scan(&count); err != nil {
		return 0, errors.NewStoreError(err)
	}
	return count, nil
}

// ListConversations returns conversations newest first, up to limit.
// A limit of 0 returns all.
func ListConversations(db *sql.DB, limit int) ([]Conversation, error) {
	query := `
		SELECT id, topic, status, started_at, ended_at, last_message_at
		FROM conversations
		ORDER BY last_message_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewStoreError(err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var (
			c       Conversation
			endedAt sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.Topic, &c.Status, &c.StartedAt, &endedAt, &c.LastMessageAt); err != nil {
			return nil, errors.NewStoreError(err)
		}
		if endedAt.Valid {
			c.EndedAt = &endedAt.Int64
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError(err)
	}
	return convs, nil
}

// CountConversations returns the number of conversations.
func CountConversations(db *sql.DB) (int, error) {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count); err != nil {
		return 0, errors.NewStoreError(err)
	}
	return count, nil
}

// GetSetting returns a settings value, or empty string when unset.
func GetSetting(db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.NewStoreError(err)
	}
	return value, nil
}

// SetSetting upserts a settings value.
func SetSetting(db *sql.DB, key, value string) error {
	now := time.Now().Unix()
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	if _, err := db.Exec(query, key, value, now); err != nil {
		return errors.NewStoreError(err)
	}
	return nil
}

// scanConversation scans a single row into a Conversation struct.
func scanConversation(row *sql.Row) (*Conversation, error) {
	var (
		c       Conversation
		endedAt sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.Topic, &c.Status, &c.StartedAt, &endedAt, &c.LastMessageAt)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		c.EndedAt = &endedAt.Int64
	}
	return &c, nil
}

// queryMessages runs a messages query and scans the result rows.
func queryMessages(db *sql.DB, query string, args ...any) ([]Message, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewStoreError(err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, errors.NewStoreError(err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError(err)
	}
	return msgs, nil
}
