// Package loader turns files in the watched folder into documents.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// TextLoader loads plain text documents (.txt, .md).
type TextLoader struct{}

// NewTextLoader creates a new text document loader.
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

// Load reads a text document from the given path.
// The returned document has no ID; ingestion assigns one.
func (l *TextLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8", path)
	}
	return newDocument(path, string(data))
}

// SupportedExtensions returns file extensions this loader handles.
func (l *TextLoader) SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown"}
}

// PDFLoader extracts text from PDF files through a ports.DocumentParser.
type PDFLoader struct {
	parser ports.DocumentParser
	logger *slog.Logger
}

// NewPDFLoader creates a PDF loader backed by parser.
func NewPDFLoader(parser ports.DocumentParser, logger *slog.Logger) *PDFLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFLoader{
		parser: parser,
		logger: logger.With("component", "pdf_loader"),
	}
}

// Load reads the file and asks the parser for its text.
// A parse failure is returned rather than stored as placeholder content.
func (l *PDFLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	start := time.Now()
	text, err := l.parser.Parse(ctx, data, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	l.logger.Debug("pdf parsed", "path", path, "bytes", len(data), "took", time.Since(start))

	return newDocument(path, text)
}

// SupportedExtensions returns file extensions.
func (l *PDFLoader) SupportedExtensions() []string {
	return []string{".pdf"}
}

func newDocument(path, content string) (*entities.Document, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%s has no text content", path)
	}
	modTime := time.Now()
	if info, err := os.Stat(path); err == nil {
		modTime = info.ModTime()
	}
	return &entities.Document{
		Source:    filepath.Base(path),
		Path:      path,
		Content:   content,
		Metadata:  map[string]string{"filename": filepath.Base(path)},
		CreatedAt: modTime,
		UpdatedAt: modTime,
	}, nil
}
