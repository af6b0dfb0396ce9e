package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hpungsan/dumbledore/internal/db"
	apperrors "github.com/hpungsan/dumbledore/internal/errors"
	"github.com/hpungsan/dumbledore/internal/ops"
)

// exitWords end a chat session.
var exitWords = map[string]bool{"exit": true, "quit": true, "q": true, "bye": true}

// runChat drives the interactive advisor loop. The session ends on an exit
// word, EOF, or interrupt, and the conversation is then memorized or
// discarded.
func runChat(ctx context.Context, env *ops.Env, resume bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var conversationID string
	if resume {
		conv, err := ops.ResumeConversation(env)
		if err != nil {
			return outputError(err)
		}
		if conv != nil {
			conversationID = conv.ID
			fmt.Printf("Continuing conversation: %s\n", conv.Topic)
		} else {
			fmt.Println("No active conversation to continue; starting a new one.")
		}
	}

	if count, err := db.CountSyncedNotes(env.DB); err == nil && count == 0 {
		fmt.Println("No notes synced yet! Run 'dumbledore sync' so I have something to draw on.")
	}
	fmt.Println("Ask me anything. Type 'exit' to end the session.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("\nyou> ")
		if !scanner.Scan() {
			break // EOF ends the session like an exit word.
		}
		if ctx.Err() != nil {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exitWords[strings.ToLower(line)] {
			break
		}
		if strings.HasPrefix(line, "/") {
			runSlashCommand(ctx, env, line)
			continue
		}

		out, err := ops.ChatTurn(ctx, env, ops.ChatTurnInput{
			ConversationID: conversationID,
			Message:        line,
		})
		if err != nil {
			// The question is already saved; the session survives a
			// failed turn.
			if apperrors.Is(err, apperrors.ErrLLMError) {
				fmt.Println("Failed to get response. Try again.")
				continue
			}
			return outputError(err)
		}
		conversationID = out.ConversationID

		fmt.Printf("\ndumbledore> %s\n", out.Reply)
		if len(out.Sources) > 0 {
			fmt.Printf("[Sources: %s]\n", strings.Join(out.Sources, ", "))
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read error: %v\n", err)
	}

	if conversationID == "" {
		fmt.Println("\nFarewell.")
		return nil
	}

	// The session context may already be canceled by the interrupt that
	// ended the loop, so memorization runs on a fresh one.
	status, err := ops.FinishConversation(context.Background(), env, conversationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not memorize conversation: %v\n", err)
		return nil
	}
	switch status {
	case db.StatusMemorized:
		fmt.Println("\nI will remember this conversation.")
	case db.StatusDiscarded:
		fmt.Println("\nA brief chat; I will not keep it.")
	}
	fmt.Println("Farewell.")
	return nil
}

// runSlashCommand handles in-session commands. Failures are printed and the
// session continues.
func runSlashCommand(ctx context.Context, env *ops.Env, line string) {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := strings.Join(fields[1:], " ")

	switch cmd {
	case "/search":
		if args == "" {
			fmt.Println("Usage: /search <query>")
			return
		}
		out, err := ops.Search(ctx, env, ops.SearchInput{Query: args})
		if err != nil {
			fmt.Printf("search failed: %v\n", err)
			return
		}
		fmt.Println(out.Format())

	case "/notes":
		out, err := ops.Notes(ctx, env, ops.NotesInput{})
		if err != nil {
			fmt.Printf("notes failed: %v\n", err)
			return
		}
		if len(out.Notes) == 0 {
			fmt.Println("No notes synced yet.")
			return
		}
		for _, n := range out.Notes {
			fmt.Printf("  %s (%s, %d chunks)\n", n.Title, n.SourceType, n.ChunkCount)
		}
		fmt.Printf("%d notes\n", out.Total)

	case "/stats":
		out, err := ops.Stats(ctx, env)
		if err != nil {
			fmt.Printf("stats failed: %v\n", err)
			return
		}
		fmt.Printf("%d notes, %d chunks, %d conversations (%s backend)\n",
			out.Notes, out.Chunks, out.Conversations, out.VectorBackend)

	case "/help":
		fmt.Println("Commands: /search <query>, /notes, /stats. Type 'exit' to end the session.")

	default:
		fmt.Printf("Unknown command %s. Try /help.\n", cmd)
	}
}
