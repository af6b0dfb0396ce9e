package llm

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
)

// fakeClaude writes a shell script standing in for the claude binary.
func fakeClaude(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary uses a shell script")
	}
	path := filepath.Join(t.TempDir(), "claude")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClaudeComplete(t *testing.T) {
	// Echo the prompt back so we can check what was passed to -p.
	bin := fakeClaude(t, `printf '%s\n' "$2"`)

	c := NewClaude(bin, 5*time.Second)
	got, err := c.Complete(context.Background(), "advise me")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "advise me" {
		t.Errorf("response = %q", got)
	}
}

func TestClaudeComplete_TrimsOutput(t *testing.T) {
	bin := fakeClaude(t, `printf '  wisdom  \n\n'`)

	got, err := NewClaude(bin, 5*time.Second).Complete(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if got != "wisdom" {
		t.Errorf("response = %q", got)
	}
}

func TestClaudeComplete_NonZeroExit(t *testing.T) {
	bin := fakeClaude(t, `echo "auth expired" >&2; exit 1`)

	_, err := NewClaude(bin, 5*time.Second).Complete(context.Background(), "q")
	if !apperrors.Is(err, apperrors.ErrLLMError) {
		t.Fatalf("expected LLM_ERROR, got %v", err)
	}
	if !strings.Contains(err.Error(), "auth expired") {
		t.Errorf("error should carry stderr: %v", err)
	}
}

func TestClaudeComplete_Timeout(t *testing.T) {
	bin := fakeClaude(t, `sleep 5`)

	_, err := NewClaude(bin, 100*time.Millisecond).Complete(context.Background(), "q")
	if !apperrors.Is(err, apperrors.ErrLLMError) {
		t.Fatalf("expected LLM_ERROR, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error should mention timeout: %v", err)
	}
}

func TestClaudeComplete_MissingBinary(t *testing.T) {
	c := NewClaude(filepath.Join(t.TempDir(), "no-such-claude"), time.Second)

	_, err := c.Complete(context.Background(), "q")
	if !apperrors.Is(err, apperrors.ErrLLMError) {
		t.Fatalf("expected LLM_ERROR, got %v", err)
	}
}

func TestNewClaude_Defaults(t *testing.T) {
	c := NewClaude("", 0)
	if c.bin != "claude" {
		t.Errorf("bin = %q", c.bin)
	}
	if c.timeout != defaultClaudeTimeout {
		t.Errorf("timeout = %v", c.timeout)
	}
	if c.Name() != "claude" {
		t.Errorf("name = %q", c.Name())
	}
}
