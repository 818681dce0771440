package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// AnthropicCompletion implements ports.Completion with the Messages API.
type AnthropicCompletion struct {
	client *anthropic.Client
	model  anthropic.Model
	logger *slog.Logger
}

// NewAnthropicCompletion builds a client from apiKey and an optional baseURL.
func NewAnthropicCompletion(apiKey, baseURL, model string, logger *slog.Logger) *AnthropicCompletion {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return NewAnthropicCompletionFromClient(&client, model, logger)
}

// NewAnthropicCompletionFromClient wraps an existing client.
func NewAnthropicCompletionFromClient(client *anthropic.Client, model string, logger *slog.Logger) *AnthropicCompletion {
	m := anthropic.Model(model)
	if model == "" {
		m = anthropic.ModelClaude3_5Sonnet20241022
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicCompletion{
		client: client,
		model:  m,
		logger: logger.With("component", "anthropic_llm"),
	}
}

// Complete sends prompt as a single user message and joins the text blocks of the reply.
func (c *AnthropicCompletion) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	start := time.Now()
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", statusError("Anthropic", apiErr.StatusCode, err)
		}
		return "", callError("Anthropic", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no text content", ports.ErrInvalidResponse)
	}

	c.logger.Debug("completion generated",
		"model", string(c.model),
		"stop_reason", string(resp.StopReason),
		"took", time.Since(start),
	)
	return text, nil
}
