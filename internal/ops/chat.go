package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpungsan/dumbledore/internal/db"
	apperrors "github.com/hpungsan/dumbledore/internal/errors"
	"github.com/hpungsan/dumbledore/internal/llm"
)

// topicMaxLen caps the conversation topic derived from the first question.
const topicMaxLen = 50

// ChatTurnInput contains one user message in a chat session.
type ChatTurnInput struct {
	// ConversationID addresses an active conversation. Empty starts a new
	// one, with the topic taken from this first message.
	ConversationID string
	// Message is the user's text. Required.
	Message string
}

// ChatTurnOutput contains the assistant's reply for one turn.
type ChatTurnOutput struct {
	ConversationID string   `json:"conversation_id"`
	Reply          string   `json:"reply"`
	Sources        []string `json:"sources,omitempty"`
}

// ChatTurn runs one exchange: persist the user message, retrieve context,
// prompt the LLM, persist the reply. The user message is saved before the
// LLM is called, so a failed turn leaves the conversation active with the
// question in place for a retry.
func ChatTurn(ctx context.Context, env *Env, input ChatTurnInput) (*ChatTurnOutput, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, apperrors.NewInvalidRequest("message must not be empty")
	}

	convID := input.ConversationID
	if convID == "" {
		convID = newULID()
		if _, err := db.StartConversation(env.DB, convID, conversationTopic(message)); err != nil {
			return nil, err
		}
	} else {
		conv, err := db.GetConversation(env.DB, convID)
		if err != nil {
			return nil, err
		}
		if conv.Status != db.StatusActive {
			return nil, apperrors.NewInvalidRequest(fmt.Sprintf("conversation %s is %s", convID, conv.Status))
		}
	}

	// History is what came before this turn, so load it before appending.
	history, err := db.RecentMessages(env.DB, convID, env.Config.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if err := db.AppendMessage(env.DB, newULID(), convID, "user", message); err != nil {
		return nil, err
	}

	bundle, err := env.retriever().Retrieve(ctx, message)
	if err != nil {
		return nil, err
	}

	turns := make([]llm.Turn, len(history))
	for i, m := range history {
		turns[i] = llm.Turn{Role: m.Role, Content: m.Content}
	}
	promptCtx := llm.AppendHistory(bundle.Format(), turns, env.Config.HistoryLimit, env.Config.HistoryMaxChars)

	reply, err := env.LLM.Complete(ctx, llm.BuildPrompt(message, promptCtx))
	if err != nil {
		return nil, err
	}

	if err := db.AppendMessage(env.DB, newULID(), convID, "assistant", reply); err != nil {
		return nil, err
	}

	return &ChatTurnOutput{
		ConversationID: convID,
		Reply:          reply,
		Sources:        bundle.SourceTitles(),
	}, nil
}

// ResumeConversation returns the most recent active conversation, or nil
// when there is nothing to resume.
func ResumeConversation(env *Env) (*db.Conversation, error) {
	conv, err := db.LatestActiveConversation(env.DB)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// FinishConversation ends a chat session and memorizes or discards it.
// Returns the conversation's final status.
func FinishConversation(ctx context.Context, env *Env, conversationID string) (string, error) {
	return env.memory().Memorize(ctx, conversationID)
}

// conversationTopic derives a topic from the first question of a session.
func conversationTopic(question string) string {
	topic := strings.Join(strings.Fields(question), " ")
	if runes := []rune(topic); len(runes) > topicMaxLen {
		topic = strings.TrimSpace(string(runes[:topicMaxLen])) + "..."
	}
	return topic
}
