// Package usecases contains application business rules.
// Usecases orchestrate entities and depend on port interfaces only.
package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// IngestUseCase adds documents to the searchable collection.
type IngestUseCase struct {
	embedder     ports.Embedder
	vectorStore  ports.VectorStore
	documents    ports.DocumentStore
	chunkSize    int
	chunkOverlap int
	logger       *slog.Logger
}

// NewIngestUseCase creates an IngestUseCase with injected dependencies.
func NewIngestUseCase(
	embedder ports.Embedder,
	vectorStore ports.VectorStore,
	documents ports.DocumentStore,
	chunkSize, chunkOverlap int,
	logger *slog.Logger,
) *IngestUseCase {
	if chunkSize <= 0 {
		chunkSize = 500 // characters
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		embedder:     embedder,
		vectorStore:  vectorStore,
		documents:    documents,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
	}
}

// Ingest chunks, embeds and stores a document. Re-ingesting an id replaces its chunks.
func (uc *IngestUseCase) Ingest(ctx context.Context, doc *entities.Document) error {
	if strings.TrimSpace(doc.Content) == "" {
		return errors.New("document content is empty")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Source == "" {
		doc.Source = "Unknown"
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	chunks := uc.chunkDocument(doc)

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	embeddings, err := uc.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding chunks: got %d vectors for %d chunks", len(embeddings), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	if err := uc.vectorStore.Replace(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("storing chunks: %w", err)
	}
	if err := uc.documents.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("saving document: %w", err)
	}

	uc.logger.Info("document ingested", "document_id", doc.ID, "source", doc.Source, "chunks", len(chunks))
	return nil
}

// Delete removes a document and its chunks.
func (uc *IngestUseCase) Delete(ctx context.Context, documentID string) error {
	if _, err := uc.documents.GetDocument(ctx, documentID); err != nil {
		return err
	}
	if err := uc.vectorStore.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return uc.documents.DeleteDocument(ctx, documentID)
}

// SeedIfEmpty ingests docs only when the collection has no documents yet.
func (uc *IngestUseCase) SeedIfEmpty(ctx context.Context, docs []entities.Document) (int, error) {
	has, err := uc.documents.HasAny(ctx)
	if err != nil {
		return 0, err
	}
	if has {
		return 0, nil
	}
	for i := range docs {
		if err := uc.Ingest(ctx, &docs[i]); err != nil {
			return i, fmt.Errorf("seeding %q: %w", docs[i].Source, err)
		}
	}
	return len(docs), nil
}

// chunkDocument splits document content into overlapping chunks of at
// most chunkSize characters, breaking at word boundaries where possible.
func (uc *IngestUseCase) chunkDocument(doc *entities.Document) []entities.Chunk {
	content := []rune(strings.TrimSpace(doc.Content))
	if len(content) == 0 {
		return nil
	}

	var chunks []entities.Chunk
	start := 0
	index := 0

	for start < len(content) {
		end := start + uc.chunkSize
		if end > len(content) {
			end = len(content)
		}

		// Try to break at word boundary
		if end < len(content) {
			if lastSpace := lastSpaceIndex(content[start:end]); lastSpace > 0 {
				end = start + lastSpace
			}
		}

		chunkContent := strings.TrimSpace(string(content[start:end]))
		if len(chunkContent) > 0 {
			chunks = append(chunks, entities.Chunk{
				ID:         generateChunkID(doc.ID, index),
				DocumentID: doc.ID,
				Source:     doc.Source,
				Content:    chunkContent,
				Index:      index,
			})
			index++
		}

		if end >= len(content) {
			break
		}
		next := end - uc.chunkOverlap
		if next <= start {
			next = end
		}
		// keep chunks starting on a word
		for i := next; i < end-1; i++ {
			if unicode.IsSpace(content[i]) {
				next = i + 1
				break
			}
		}
		start = next
	}

	return chunks
}

func lastSpaceIndex(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

// generateChunkID creates a deterministic ID for a chunk.
func generateChunkID(docID string, index int) string {
	return fmt.Sprintf("%s-%d", docID, index)
}
