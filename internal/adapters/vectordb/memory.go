package vectordb

import (
	"context"
	"sort"
	"sync"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// InMemoryStore keeps chunks and documents in process memory.
// Used for tests and VECTOR_BACKEND=memory.
type InMemoryStore struct {
	mu        sync.RWMutex
	chunks    map[string]entities.Chunk // chunkID -> chunk
	order     []string                  // chunk ids in insertion order
	docChunks map[string][]string       // docID -> []chunkID
	documents map[string]entities.Document
}

// NewInMemoryStore creates a new in-memory vector store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		chunks:    make(map[string]entities.Chunk),
		docChunks: make(map[string][]string),
		documents: make(map[string]entities.Document),
	}
}

// Store saves chunks with their embeddings.
func (s *InMemoryStore) Store(ctx context.Context, chunks []entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.storeLocked(chunks)
	return nil
}

// Replace swaps a document's chunks under a single lock.
func (s *InMemoryStore) Replace(ctx context.Context, documentID string, chunks []entities.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(documentID)
	s.storeLocked(chunks)
	return nil
}

func (s *InMemoryStore) storeLocked(chunks []entities.Chunk) {
	for _, chunk := range chunks {
		if _, exists := s.chunks[chunk.ID]; !exists {
			s.order = append(s.order, chunk.ID)
			s.docChunks[chunk.DocumentID] = append(s.docChunks[chunk.DocumentID], chunk.ID)
		}
		s.chunks[chunk.ID] = chunk
	}
}

// Search finds the k chunks most similar to embedding.
func (s *InMemoryStore) Search(ctx context.Context, embedding []float32, k int) ([]entities.ContextChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, searchError(ctx, err)
	}

	s.mu.RLock()
	candidates := make([]entities.Chunk, 0, len(s.order))
	for _, id := range s.order {
		candidates = append(candidates, s.chunks[id])
	}
	s.mu.RUnlock()

	return topK(embedding, candidates, k), nil
}

// Delete removes all chunks for a document.
func (s *InMemoryStore) Delete(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(documentID)
	return nil
}

func (s *InMemoryStore) deleteLocked(documentID string) {
	chunkIDs, ok := s.docChunks[documentID]
	if !ok {
		return
	}

	for _, id := range chunkIDs {
		delete(s.chunks, id)
	}
	delete(s.docChunks, documentID)

	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.chunks[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
}

// Clear removes all data from the store.
func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks = make(map[string]entities.Chunk)
	s.order = nil
	s.docChunks = make(map[string][]string)
	s.documents = make(map[string]entities.Document)
	return nil
}

// HasAny reports whether at least one document is stored.
func (s *InMemoryStore) HasAny(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents) > 0, nil
}

// SaveDocument inserts or replaces a document record.
func (s *InMemoryStore) SaveDocument(ctx context.Context, doc *entities.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = *doc
	return nil
}

// GetDocument returns a document by id or ports.ErrDocumentNotFound.
func (s *InMemoryStore) GetDocument(ctx context.Context, id string) (*entities.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, ports.ErrDocumentNotFound
	}
	return &doc, nil
}

// ListDocuments returns every document, oldest first.
func (s *InMemoryStore) ListDocuments(ctx context.Context) ([]entities.Document, error) {
	s.mu.RLock()
	docs := make([]entities.Document, 0, len(s.documents))
	for _, d := range s.documents {
		docs = append(docs, d)
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

// DeleteDocument removes the document record.
func (s *InMemoryStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	return nil
}
