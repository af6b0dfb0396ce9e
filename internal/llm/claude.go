package llm

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
)

const defaultClaudeTimeout = 300 * time.Second

// ClaudeClient shells out to the claude CLI in print mode. The binary
// handles its own auth and model selection.
type ClaudeClient struct {
	bin     string
	timeout time.Duration
}

// NewClaude returns a claude CLI client. Empty bin means "claude" on
// PATH; timeout <= 0 applies the 5 minute default.
func NewClaude(bin string, timeout time.Duration) *ClaudeClient {
	if bin == "" {
		bin = "claude"
	}
	if timeout <= 0 {
		timeout = defaultClaudeTimeout
	}
	return &ClaudeClient{bin: bin, timeout: timeout}
}

func (c *ClaudeClient) Name() string { return "claude" }

// Complete runs `claude -p <prompt>` and returns trimmed stdout. The call
// is bounded by the client timeout on top of any caller deadline.
func (c *ClaudeClient) Complete(ctx context.Context, prompt string) (string, error) {
	if _, err := exec.LookPath(c.bin); err != nil {
		return "", apperrors.NewLLMError(fmt.Errorf("claude CLI not found (install: npm install -g @anthropic-ai/claude-code): %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.bin, "-p", prompt)
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperrors.NewLLMError(fmt.Errorf("claude timed out after %s", c.timeout))
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			err = fmt.Errorf("claude: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", apperrors.NewLLMError(err)
	}

	return strings.TrimSpace(string(out)), nil
}
