package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docqa/internal/domain"
)

// ChatGenerator sends a rendered prompt as a single user message.
type ChatGenerator struct {
	client  *OpenAICompatibleClient
	cfg     ChatConfig
	timeout time.Duration
}

func NewChatGenerator(client *OpenAICompatibleClient, cfg ChatConfig, timeout time.Duration) *ChatGenerator {
	return &ChatGenerator{client: client, cfg: cfg, timeout: timeout}
}

// Generate returns the model output. Any failure, including the timeout, is reported as
// domain.ErrGenerationFailed.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.cfg.BaseURL == "" || g.cfg.Model == "" {
		return "", fmt.Errorf("%w: llm is not configured", domain.ErrGenerationFailed)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	out, err := g.client.Complete(ctx, g.cfg, []ChatMessage{{Role: "user", Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}
	return strings.TrimSpace(out), nil
}
