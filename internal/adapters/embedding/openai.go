package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// OpenAIAdapter implements ports.Embedder with the OpenAI embeddings API.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIAdapter creates an embedder for apiKey and an optional baseURL.
func NewOpenAIAdapter(apiKey, baseURL, model string, logger *slog.Logger) *OpenAIAdapter {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := openai.NewClient(opts...)
	return &OpenAIAdapter{
		client: &client,
		model:  model,
		logger: logger.With("component", "openai_embedder"),
	}
}

// Embed generates an embedding for a single text.
func (a *OpenAIAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds all texts in one request. Results follow input order.
func (a *OpenAIAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	resp, err := a.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(a.model),
	})
	if err != nil {
		a.logger.Error("openai embeddings call failed", "error", err)
		return nil, fmt.Errorf("%w: calling OpenAI: %v", ports.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ports.ErrEmbeddingUnavailable, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) || len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: malformed embedding at index %d", ports.ErrEmbeddingUnavailable, d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	for i, vec := range out {
		if vec == nil {
			return nil, fmt.Errorf("%w: missing embedding %d", ports.ErrEmbeddingUnavailable, i)
		}
	}

	a.logger.Debug("embeddings generated", "count", len(out), "took", time.Since(start))
	return out, nil
}
