package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Persona is the system prompt that frames every completion.
const Persona = `You are Dumbledore, a wise and thoughtful personal advisor. You have access to the user's personal notes and knowledge about their life, goals, projects, and values.

Your role is to:
1. Provide thoughtful, personalized advice based on what you know about them
2. Reference specific notes and past reflections when relevant
3. Challenge assumptions gently but directly when needed
4. Be concise but substantive - no fluff
5. Remember context from the conversation

Style:
- Speak naturally, not formally
- Be direct and honest, even when it's uncomfortable
- Draw connections between different areas of their life
- Ask clarifying questions when needed
- Avoid generic advice - make it specific to them

You're not just an AI assistant - you're a trusted advisor who knows them well.`

// Turn is one prior message included in a chat prompt.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// BuildPrompt assembles the persona, the retrieved context, and the user
// message into one prompt. An empty context drops the context block
// entirely rather than leaving an empty section.
func BuildPrompt(userMessage, context string) string {
	if context == "" {
		return fmt.Sprintf("%s\n\n---\n\nUser: %s", Persona, userMessage)
	}
	return fmt.Sprintf("%s\n\n---\n\n%s\n\n---\n\nUser: %s", Persona, context, userMessage)
}

// AppendHistory attaches a recent-conversation block to the retrieved
// context so the model sees the session so far. Only the last limit turns
// are included and each is truncated to maxChars. Empty history returns
// the context unchanged.
func AppendHistory(context string, turns []Turn, limit, maxChars int) string {
	if len(turns) == 0 {
		return context
	}
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	var b strings.Builder
	b.WriteString("\n\n## Recent Conversation\n")
	for _, t := range turns {
		role := "Dumbledore"
		if t.Role == "user" {
			role = "User"
		}
		content := t.Content
		if maxChars > 0 && utf8.RuneCountInString(content) > maxChars {
			content = string([]rune(content)[:maxChars]) + "..."
		}
		fmt.Fprintf(&b, "**%s:** %s\n\n", role, content)
	}

	history := b.String()
	if context == "" {
		return history
	}
	return context + "\n" + history
}
