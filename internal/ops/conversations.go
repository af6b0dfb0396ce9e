package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/dumbledore/internal/db"
	apperrors "github.com/hpungsan/dumbledore/internal/errors"
)

// ConversationsInput contains parameters for the conversations listing.
type ConversationsInput struct {
	// Limit caps the rows returned. Zero means DefaultConversationsLimit.
	Limit int
}

// ConversationsOutput lists recent conversations, newest first.
type ConversationsOutput struct {
	Conversations []db.Conversation `json:"conversations"`
	Total         int               `json:"total"`
}

// Conversations returns recent conversations with their status.
func Conversations(ctx context.Context, env *Env, input ConversationsInput) (*ConversationsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultConversationsLimit
	}
	if limit > MaxConversationsLimit {
		limit = MaxConversationsLimit
	}

	convs, err := db.ListConversations(env.DB, limit)
	if err != nil {
		return nil, err
	}
	total, err := db.CountConversations(env.DB)
	if err != nil {
		return nil, err
	}
	return &ConversationsOutput{Conversations: convs, Total: total}, nil
}

// TranscriptInput addresses one conversation.
type TranscriptInput struct {
	// ConversationID is the conversation to fetch. Required.
	ConversationID string
}

// TranscriptOutput is one conversation with its full message history.
type TranscriptOutput struct {
	Conversation db.Conversation `json:"conversation"`
	Messages     []db.Message    `json:"messages"`
}

// Transcript returns a conversation and its messages in order.
func Transcript(ctx context.Context, env *Env, input TranscriptInput) (*TranscriptOutput, error) {
	id := strings.TrimSpace(input.ConversationID)
	if id == "" {
		return nil, apperrors.NewInvalidRequest("conversation id must not be empty")
	}

	conv, err := db.GetConversation(env.DB, id)
	if err != nil {
		return nil, err
	}
	msgs, err := db.GetMessages(env.DB, id)
	if err != nil {
		return nil, err
	}
	return &TranscriptOutput{Conversation: *conv, Messages: msgs}, nil
}
