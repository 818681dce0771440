// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions, not concrete implementations.
// Adapters implement these interfaces.
package ports

import (
	"context"
	"time"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
)

// Embedder generates vector embeddings for text.
// Failures wrap ErrEmbeddingUnavailable.
type Embedder interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorSearch finds chunks similar to a query vector.
// Results are ordered by descending score. Failures wrap ErrSearchTimeout or ErrSearchUnavailable.
type VectorSearch interface {
	Search(ctx context.Context, embedding []float32, k int) ([]entities.ContextChunk, error)
}

// VectorStore persists and queries document embeddings.
type VectorStore interface {
	VectorSearch

	// Store saves chunks with their embeddings.
	Store(ctx context.Context, chunks []entities.Chunk) error

	// Delete removes all chunks for a document.
	Delete(ctx context.Context, documentID string) error

	// Replace swaps a document's chunks for chunks in one step.
	// On error the previous chunks are left in place.
	Replace(ctx context.Context, documentID string, chunks []entities.Chunk) error

	// Clear removes all data from the store.
	Clear(ctx context.Context) error
}

// DocumentStore keeps document records for the collection.
type DocumentStore interface {
	// HasAny reports whether the collection holds at least one document.
	HasAny(ctx context.Context) (bool, error)

	SaveDocument(ctx context.Context, doc *entities.Document) error
	GetDocument(ctx context.Context, id string) (*entities.Document, error)
	ListDocuments(ctx context.Context) ([]entities.Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Completion produces text from a prompt.
// Classifiable failures wrap ErrRateLimited, ErrCompletionTimeout or ErrInvalidResponse.
type Completion interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// SessionStore holds bounded per-session conversation history.
type SessionStore interface {
	// Get returns the turns for a session, oldest first. Unknown ids yield an empty slice.
	Get(sessionID string) []entities.Turn

	// Exists reports whether the store has a record for the id.
	Exists(sessionID string) bool

	// Seed installs turns for a session the store has no record of.
	// It returns false and leaves the store unchanged if a record already exists.
	Seed(sessionID string, turns []entities.Turn) bool

	// Append adds the pair atomically and trims to the configured window.
	Append(sessionID string, user, assistant entities.Turn)

	// Clear removes all turns for the id; the id stays usable.
	Clear(sessionID string)
}

// DocumentLoader reads and parses documents from various formats.
type DocumentLoader interface {
	// Load reads a document from the given path.
	Load(ctx context.Context, path string) (*entities.Document, error)

	// SupportedExtensions returns file extensions this loader handles.
	SupportedExtensions() []string
}

// DocumentParser extracts text from binary document formats (PDF, DOCX, etc).
type DocumentParser interface {
	// Parse extracts text content from document bytes.
	Parse(ctx context.Context, data []byte, filename string) (string, error)

	// SupportedFormats returns formats this parser handles (e.g., "pdf", "docx").
	SupportedFormats() []string
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

// Observer receives request-level measurements.
type Observer interface {
	ObserveAnswer(outcome string)
	ObserveStage(stage string, d time.Duration)
	ObserveRetrieved(n int)
}

// NopObserver discards all observations.
type NopObserver struct{}

func (NopObserver) ObserveAnswer(string) {}
func (NopObserver) ObserveStage(string, time.Duration) {}
func (NopObserver) ObserveRetrieved(int) {}
