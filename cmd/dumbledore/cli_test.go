package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/dumbledore/internal/config"
	"github.com/hpungsan/dumbledore/internal/db"
	"github.com/hpungsan/dumbledore/internal/ops"
	"github.com/hpungsan/dumbledore/internal/source"
	"github.com/hpungsan/dumbledore/internal/vector"
)

// embedKeywords drive the test embedder: one dimension per keyword, so
// similarity is a plain function of shared vocabulary.
var embedKeywords = []string{"garden", "job", "book"}

type keywordEmbedder struct{}

func (keywordEmbedder) Name() string  { return "fake" }
func (keywordEmbedder) Model() string { return "fake-model" }

func (keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		vec := make([]float32, len(embedKeywords))
		for d, kw := range embedKeywords {
			vec[d] = float32(strings.Count(lower, kw))
		}
		vecs[i] = vec
	}
	return vecs, nil
}

type scriptedLLM struct {
	reply string
}

func (scriptedLLM) Name() string { return "fake" }

func (l scriptedLLM) Complete(_ context.Context, _ string) (string, error) {
	return l.reply, nil
}

// setupTestEnv builds an operation environment over a temp database and a
// two-note markdown vault. Nothing is synced yet.
func setupTestEnv(t *testing.T) *ops.Env {
	t.Helper()

	baseDir := t.TempDir()
	database, err := db.Init(baseDir)
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store, err := vector.NewSQLite(database)
	if err != nil {
		t.Fatalf("failed to init vector store: %v", err)
	}

	vault := t.TempDir()
	files := map[string]string{
		"garden-plan.md": "The garden layout. Garden beds and garden soil.",
		"job-search.md":  "Applying for the new job.",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(vault, name), []byte(body), 0o644); err != nil {
			t.Fatalf("failed to write vault: %v", err)
		}
	}

	return &ops.Env{
		DB:       database,
		Store:    store,
		Embedder: keywordEmbedder{},
		LLM:      scriptedLLM{reply: "Very well."},
		Sources:  []source.Source{source.NewMarkdown(vault)},
		Config:   config.DefaultConfig(),
		BaseDir:  baseDir,
	}
}

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// what was written.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	fn()

	w.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	os.Stdout = oldStdout
	return buf.String()
}

// feedStdin pipes the given text into os.Stdin for the duration of fn.
func feedStdin(t *testing.T, text string, fn func()) {
	t.Helper()

	oldStdin := os.Stdin
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdin = r

	go func() {
		_, _ = w.WriteString(text)
		w.Close()
	}()

	fn()

	os.Stdin = oldStdin
}

// TestCLISync tests the sync command.
func TestCLISync(t *testing.T) {
	env := setupTestEnv(t)
	app := newCLIApp(env)

	out := captureStdout(t, func() {
		if err := app.Run([]string{"dumbledore", "sync"}); err != nil {
			t.Errorf("sync command failed: %v", err)
		}
	})
	if !strings.Contains(out, "Synced 2 notes") {
		t.Errorf("expected sync summary, got: %s", out)
	}

	// Unchanged notes are skipped on a second run.
	out = captureStdout(t, func() {
		if err := app.Run([]string{"dumbledore", "sync"}); err != nil {
			t.Errorf("second sync failed: %v", err)
		}
	})
	if !strings.Contains(out, "Synced 0 notes") {
		t.Errorf("expected no-op resync, got: %s", out)
	}
}

// TestCLISyncUnknownSource tests sync rejecting a bad --source.
func TestCLISyncUnknownSource(t *testing.T) {
	env := setupTestEnv(t)
	app := newCLIApp(env)

	err := app.Run([]string{"dumbledore", "sync", "--source", "evernote"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "INVALID_REQUEST") {
		t.Errorf("expected INVALID_REQUEST in error, got: %v", err)
	}
}

// TestCLISearch tests the search command.
func TestCLISearch(t *testing.T) {
	env := setupTestEnv(t)
	app := newCLIApp(env)

	out := captureStdout(t, func() {
		if err := app.Run([]string{"dumbledore", "search", "--top", "3", "garden", "beds"}); err != nil {
			t.Errorf("search command failed: %v", err)
		}
	})
	if !strings.Contains(out, "Garden Plan") {
		t.Errorf("expected top result in output, got: %s", out)
	}
	if !strings.Contains(out, "relevance:") {
		t.Errorf("expected relevance scores in output, got: %s", out)
	}
}

// TestCLINotes tests the notes command.
func TestCLINotes(t *testing.T) {
	env := setupTestEnv(t)
	app := newCLIApp(env)

	out := captureStdout(t, func() {
		if err := app.Run([]string{"dumbledore", "notes"}); err != nil {
			t.Errorf("notes command failed: %v", err)
		}
	})
	if !strings.Contains(out, "No notes synced yet") {
		t.Errorf("expected empty hint, got: %s", out)
	}

	if _, err := ops.Sync(context.Background(), env, ops.SyncInput{}); err != nil {
		t.Fatalf("seed sync failed: %v", err)
	}

	out = captureStdout(t, func() {
		if err := app.Run([]string{"dumbledore", "notes"}); err != nil {
			t.Errorf("notes command failed: %v", err)
		}
	})
	if !strings.Contains(out, "Garden Plan") || !strings.Contains(out, "Job Search") {
		t.Errorf("expected note titles in output, got: %s", out)
	}
	if !strings.Contains(out, "2 notes") {
		t.Errorf("expected total in output, got: %s", out)
	}
}

// TestCLIStats tests the stats command.
func TestCLIStats(t *testing.T) {
	env := setupTestEnv(t)
	if _, err := ops.Sync(context.Background(), env, ops.SyncInput{}); err != nil {
		t.Fatalf("seed sync failed: %v", err)
	}
	app := newCLIApp(env)

	out := captureStdout(t, func() {
		if err := app.Run([]string{"dumbledore", "stats"}); err != nil {
			t.Errorf("stats command failed: %v", err)
		}
	})
	if !strings.Contains(out, "Notes:          2") {
		t.Errorf("expected note count, got: %s", out)
	}
	if !strings.Contains(out, "Vector backend: sqlite") {
		t.Errorf("expected backend line, got: %s", out)
	}
}

// TestCLIAsk tests the ask command, including the automatic sync it
// triggers on a cold index.
func TestCLIAsk(t *testing.T) {
	env := setupTestEnv(t)
	env.LLM = scriptedLLM{reply: "Plant the beans."}
	app := newCLIApp(env)

	out := captureStdout(t, func() {
		if err := app.Run([]string{"dumbledore", "ask", "Should", "I", "expand", "the", "garden?"}); err != nil {
			t.Errorf("ask command failed: %v", err)
		}
	})
	if !strings.Contains(out, "Plant the beans.") {
		t.Errorf("expected answer in output, got: %s", out)
	}
	if !strings.Contains(out, "Sources: Garden Plan") {
		t.Errorf("expected sources line, got: %s", out)
	}
}

// TestCLIAskMissingQuestion tests ask with no arguments.
func TestCLIAskMissingQuestion(t *testing.T) {
	env := setupTestEnv(t)
	app := newCLIApp(env)

	err := app.Run([]string{"dumbledore", "ask"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "question is required") {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestCLIConversations tests the conversations command.
func TestCLIConversations(t *testing.T) {
	env := setupTestEnv(t)
	app := newCLIApp(env)

	out := captureStdout(t, func() {
		if err := app.Run([]string{"dumbledore", "conversations"}); err != nil {
			t.Errorf("conversations command failed: %v", err)
		}
	})
	if !strings.Contains(out, "No conversations yet") {
		t.Errorf("expected empty hint, got: %s", out)
	}

	if _, err := ops.ChatTurn(context.Background(), env, ops.ChatTurnInput{Message: "Plan the garden with me."}); err != nil {
		t.Fatalf("seed conversation failed: %v", err)
	}

	out = captureStdout(t, func() {
		if err := app.Run([]string{"dumbledore", "conversations"}); err != nil {
			t.Errorf("conversations command failed: %v", err)
		}
	})
	if !strings.Contains(out, "Plan the garden with me.") {
		t.Errorf("expected topic in output, got: %s", out)
	}
	if !strings.Contains(out, "active") {
		t.Errorf("expected status in output, got: %s", out)
	}
}

// TestCLIClear tests the clear command.
func TestCLIClear(t *testing.T) {
	env := setupTestEnv(t)
	if _, err := ops.Sync(context.Background(), env, ops.SyncInput{}); err != nil {
		t.Fatalf("seed sync failed: %v", err)
	}
	app := newCLIApp(env)

	t.Run("declined prompt aborts", func(t *testing.T) {
		var out string
		feedStdin(t, "n\n", func() {
			out = captureStdout(t, func() {
				if err := app.Run([]string{"dumbledore", "clear"}); err != nil {
					t.Errorf("clear command failed: %v", err)
				}
			})
		})
		if !strings.Contains(out, "Aborted.") {
			t.Errorf("expected abort message, got: %s", out)
		}
		if count, _ := db.CountSyncedNotes(env.DB); count != 2 {
			t.Errorf("expected index untouched, have %d notes", count)
		}
	})

	t.Run("--yes skips prompt", func(t *testing.T) {
		out := captureStdout(t, func() {
			if err := app.Run([]string{"dumbledore", "clear", "--yes"}); err != nil {
				t.Errorf("clear command failed: %v", err)
			}
		})
		if !strings.Contains(out, "Cleared 2 notes") {
			t.Errorf("expected clear summary, got: %s", out)
		}
		if count, _ := db.CountSyncedNotes(env.DB); count != 0 {
			t.Errorf("expected empty index, have %d notes", count)
		}
	})
}

// TestCLIProfile tests the profile command without a profile note.
func TestCLIProfile(t *testing.T) {
	env := setupTestEnv(t)
	if _, err := ops.Sync(context.Background(), env, ops.SyncInput{}); err != nil {
		t.Fatalf("seed sync failed: %v", err)
	}
	app := newCLIApp(env)

	out := captureStdout(t, func() {
		if err := app.Run([]string{"dumbledore", "profile"}); err != nil {
			t.Errorf("profile command failed: %v", err)
		}
	})
	if !strings.Contains(out, "No profile note found") {
		t.Errorf("expected missing-profile hint, got: %s", out)
	}
	if !strings.Contains(out, "Who am I?") {
		t.Errorf("expected reserved title in hint, got: %s", out)
	}
}

// TestCLIStyle tests the style command.
func TestCLIStyle(t *testing.T) {
	env := setupTestEnv(t)
	env.LLM = scriptedLLM{reply: "Direct and warm."}
	if _, err := ops.Sync(context.Background(), env, ops.SyncInput{}); err != nil {
		t.Fatalf("seed sync failed: %v", err)
	}
	app := newCLIApp(env)

	out := captureStdout(t, func() {
		if err := app.Run([]string{"dumbledore", "style"}); err != nil {
			t.Errorf("style command failed: %v", err)
		}
	})
	if !strings.Contains(out, "Analyzed 2 writing samples") {
		t.Errorf("expected sample count, got: %s", out)
	}
	if !strings.Contains(out, "Direct and warm.") {
		t.Errorf("expected style profile text, got: %s", out)
	}
}

// TestCLIStyleEmptyIndex tests style failing without synced notes.
func TestCLIStyleEmptyIndex(t *testing.T) {
	env := setupTestEnv(t)
	app := newCLIApp(env)

	err := app.Run([]string{"dumbledore", "style"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "INVALID_REQUEST") {
		t.Errorf("expected INVALID_REQUEST in error, got: %v", err)
	}
}

// TestCLIExport tests the export command.
func TestCLIExport(t *testing.T) {
	env := setupTestEnv(t)
	if _, err := ops.Sync(context.Background(), env, ops.SyncInput{}); err != nil {
		t.Fatalf("seed sync failed: %v", err)
	}
	app := newCLIApp(env)

	dest := filepath.Join(t.TempDir(), "backup.json")
	out := captureStdout(t, func() {
		if err := app.Run([]string{"dumbledore", "export", "--out", dest}); err != nil {
			t.Errorf("export command failed: %v", err)
		}
	})
	if !strings.Contains(out, "Exported 2 notes and 0 conversations") {
		t.Errorf("expected export summary, got: %s", out)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("expected export file at %s: %v", dest, err)
	}
}

// TestChatSession tests a full REPL exchange through the chat command.
func TestChatSession(t *testing.T) {
	env := setupTestEnv(t)
	app := newCLIApp(env)

	var out string
	feedStdin(t, "Should I plant more garden beds?\nexit\n", func() {
		out = captureStdout(t, func() {
			if err := app.Run([]string{"dumbledore", "chat"}); err != nil {
				t.Errorf("chat command failed: %v", err)
			}
		})
	})

	if !strings.Contains(out, "dumbledore> Very well.") {
		t.Errorf("expected assistant reply, got: %s", out)
	}
	if !strings.Contains(out, "[Sources: Garden Plan]") {
		t.Errorf("expected sources line, got: %s", out)
	}
	// One exchange is below the memorization threshold.
	if !strings.Contains(out, "A brief chat; I will not keep it.") {
		t.Errorf("expected discard notice, got: %s", out)
	}
	if !strings.Contains(out, "Farewell.") {
		t.Errorf("expected farewell, got: %s", out)
	}
}

// TestChatSessionSlashCommands tests the in-session commands.
func TestChatSessionSlashCommands(t *testing.T) {
	env := setupTestEnv(t)
	if _, err := ops.Sync(context.Background(), env, ops.SyncInput{}); err != nil {
		t.Fatalf("seed sync failed: %v", err)
	}

	var out string
	feedStdin(t, "/stats\n/search garden\n/oops\nexit\n", func() {
		out = captureStdout(t, func() {
			if err := runChat(context.Background(), env, false); err != nil {
				t.Errorf("runChat failed: %v", err)
			}
		})
	})

	if !strings.Contains(out, "2 notes, 2 chunks") {
		t.Errorf("expected /stats summary, got: %s", out)
	}
	if !strings.Contains(out, "Garden Plan") {
		t.Errorf("expected /search results, got: %s", out)
	}
	if !strings.Contains(out, "Unknown command /oops") {
		t.Errorf("expected unknown-command hint, got: %s", out)
	}
	// No chat turns happened, so there is nothing to memorize.
	if !strings.Contains(out, "Farewell.") {
		t.Errorf("expected farewell, got: %s", out)
	}
}

// TestChatSessionEmptyIndexHint tests the cold-start hint.
func TestChatSessionEmptyIndexHint(t *testing.T) {
	env := setupTestEnv(t)
	env.Sources = nil // nothing to sync

	var out string
	feedStdin(t, "exit\n", func() {
		out = captureStdout(t, func() {
			if err := runChat(context.Background(), env, false); err != nil {
				t.Errorf("runChat failed: %v", err)
			}
		})
	})

	if !strings.Contains(out, "No notes synced yet!") {
		t.Errorf("expected cold-start hint, got: %s", out)
	}
}

// TestChatSessionResume tests --continue picking up the active conversation.
func TestChatSessionResume(t *testing.T) {
	env := setupTestEnv(t)
	if _, err := ops.ChatTurn(context.Background(), env, ops.ChatTurnInput{Message: "Plan the garden with me."}); err != nil {
		t.Fatalf("seed conversation failed: %v", err)
	}

	var out string
	feedStdin(t, "exit\n", func() {
		out = captureStdout(t, func() {
			if err := runChat(context.Background(), env, true); err != nil {
				t.Errorf("runChat failed: %v", err)
			}
		})
	})

	if !strings.Contains(out, "Continuing conversation: Plan the garden with me.") {
		t.Errorf("expected resume notice, got: %s", out)
	}
}

// TestIsCLIMode tests the isCLIMode function.
func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{
			name:     "no args",
			args:     []string{"dumbledore"},
			expected: false,
		},
		{
			name:     "sync command",
			args:     []string{"dumbledore", "sync"},
			expected: true,
		},
		{
			name:     "chat command",
			args:     []string{"dumbledore", "chat"},
			expected: true,
		},
		{
			name:     "web command",
			args:     []string{"dumbledore", "web"},
			expected: true,
		},
		{
			name:     "help flag",
			args:     []string{"dumbledore", "--help"},
			expected: true,
		},
		{
			name:     "version flag",
			args:     []string{"dumbledore", "--version"},
			expected: true,
		},
		{
			name:     "unknown arg defaults to MCP",
			args:     []string{"dumbledore", "--unknown"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			result := isCLIMode()

			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestIsHelpOrVersion tests the isHelpOrVersion function.
func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{
			name:     "no args",
			args:     []string{"dumbledore"},
			expected: false,
		},
		{
			name:     "help flag",
			args:     []string{"dumbledore", "--help"},
			expected: true,
		},
		{
			name:     "short version flag",
			args:     []string{"dumbledore", "-v"},
			expected: true,
		},
		{
			name:     "help subcommand",
			args:     []string{"dumbledore", "help"},
			expected: true,
		},
		{
			name:     "sync command is not help",
			args:     []string{"dumbledore", "sync"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			result := isHelpOrVersion()

			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestFormatByteSize tests the byte size formatting helper.
func TestFormatByteSize(t *testing.T) {
	tests := []struct {
		n        int64
		expected string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 << 20, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatByteSize(tt.n); got != tt.expected {
			t.Errorf("formatByteSize(%d) = %q, want %q", tt.n, got, tt.expected)
		}
	}
}
