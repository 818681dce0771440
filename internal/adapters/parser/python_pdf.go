// Package parser provides document parsing adapters.
// Text extraction for binary formats is delegated to an external HTTP service.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// PythonPDFParser implements ports.DocumentParser by posting PDF bytes to
// the extraction service's /parse endpoint.
type PythonPDFParser struct {
	serviceURL string
	client     *http.Client
	logger     *slog.Logger
}

// NewPythonPDFParser creates a new PDF parser that calls the extraction service.
func NewPythonPDFParser(serviceURL string, logger *slog.Logger) *PythonPDFParser {
	if serviceURL == "" {
		serviceURL = "http://localhost:8081"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PythonPDFParser{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With("component", "pdf_parser"),
	}
}

// parseResponse is the extraction service response format.
type parseResponse struct {
	Text    string `json:"text"`
	Pages   int    `json:"pages"`
	Library string `json:"library,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Parse extracts text from PDF bytes.
func (p *PythonPDFParser) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serviceURL+"/parse", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Filename", filename)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling PDF service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var result parseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("PDF parse error: %s", result.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("PDF service returned status %d", resp.StatusCode)
	}

	p.logger.Debug("pdf extracted", "file", filename, "pages", result.Pages, "library", result.Library)
	return result.Text, nil
}

// SupportedFormats returns formats this parser handles.
func (p *PythonPDFParser) SupportedFormats() []string {
	return []string{"pdf"}
}

// IsServiceHealthy checks if the extraction service is reachable.
func (p *PythonPDFParser) IsServiceHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serviceURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
