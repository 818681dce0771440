// Package llm provides completion adapters implementing ports.Completion.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// OllamaLLMAdapter implements ports.Completion using the Ollama generate API.
type OllamaLLMAdapter struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// NewOllamaLLMAdapter creates a new Ollama LLM adapter.
func NewOllamaLLMAdapter(baseURL, model string, logger *slog.Logger) *OllamaLLMAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaLLMAdapter{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 300 * time.Second,
		},
		logger: logger.With("component", "ollama_llm"),
	}
}

// ollamaGenerateRequest is the Ollama generate API request.
type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
}

// ollamaGenerateResponse is the Ollama generate API response.
type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete produces text for prompt.
func (a *OllamaLLMAdapter) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	jsonData, err := json.Marshal(ollamaGenerateRequest{
		Model:  a.model,
		Prompt: prompt,
		Stream: false,
		Options: ollamaOptions{
			NumPredict:  maxTokens,
			Temperature: temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return "", callError("Ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", statusError("Ollama", resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ports.ErrInvalidResponse, err)
	}
	if strings.TrimSpace(genResp.Response) == "" {
		return "", fmt.Errorf("%w: empty response", ports.ErrInvalidResponse)
	}

	a.logger.Debug("completion generated", "model", a.model, "took", time.Since(start))
	return genResp.Response, nil
}
