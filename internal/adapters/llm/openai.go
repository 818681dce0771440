package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// OpenAICompletion implements ports.Completion with the Chat Completions API.
type OpenAICompletion struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAICompletion builds a client from apiKey and an optional baseURL.
func NewOpenAICompletion(apiKey, baseURL, model string, logger *slog.Logger) *OpenAICompletion {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return NewOpenAICompletionFromClient(&client, model, logger)
}

// NewOpenAICompletionFromClient wraps an existing client.
func NewOpenAICompletionFromClient(client *openai.Client, model string, logger *slog.Logger) *OpenAICompletion {
	if model == "" {
		model = openai.ChatModelGPT3_5Turbo
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAICompletion{
		client: client,
		model:  model,
		logger: logger.With("component", "openai_llm"),
	}
}

// Complete sends prompt as a single user message.
func (c *OpenAICompletion) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:               c.model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", statusError("OpenAI", apiErr.StatusCode, err)
		}
		return "", callError("OpenAI", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ports.ErrInvalidResponse)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: empty content", ports.ErrInvalidResponse)
	}

	c.logger.Debug("completion generated",
		"model", c.model,
		"total_tokens", resp.Usage.TotalTokens,
		"took", time.Since(start),
	)
	return content, nil
}
