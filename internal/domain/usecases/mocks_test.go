package usecases

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// mockEmbedder implements ports.Embedder for testing
type mockEmbedder struct {
	embedFn func(text string) ([]float32, error)
	queries []string
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.queries = append(m.queries, text)
	if m.embedFn != nil {
		return m.embedFn(text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		emb, err := m.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		result[i] = emb
	}
	return result, nil
}

// mockVectorStore implements ports.VectorStore for testing
type mockVectorStore struct {
	chunks   []entities.Chunk
	results  []entities.ContextChunk
	searchFn func(ctx context.Context, k int) ([]entities.ContextChunk, error)
	storeFn  func(chunks []entities.Chunk) error
	lastK    int
}

func (m *mockVectorStore) Store(ctx context.Context, chunks []entities.Chunk) error {
	if m.storeFn != nil {
		return m.storeFn(chunks)
	}
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *mockVectorStore) Search(ctx context.Context, emb []float32, k int) ([]entities.ContextChunk, error) {
	m.lastK = k
	if m.searchFn != nil {
		return m.searchFn(ctx, k)
	}
	if len(m.results) > k {
		return m.results[:k], nil
	}
	return m.results, nil
}

func (m *mockVectorStore) Delete(ctx context.Context, docID string) error {
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.DocumentID != docID {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
	return nil
}

func (m *mockVectorStore) Replace(ctx context.Context, docID string, chunks []entities.Chunk) error {
	if m.storeFn != nil {
		if err := m.storeFn(chunks); err != nil {
			return err
		}
	}
	m.Delete(ctx, docID)
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *mockVectorStore) Clear(ctx context.Context) error {
	m.chunks = nil
	return nil
}

// mockDocumentStore implements ports.DocumentStore for testing
type mockDocumentStore struct {
	docs   map[string]entities.Document
	hasErr error
	hasFn  func(ctx context.Context) (bool, error)
}

func newMockDocumentStore() *mockDocumentStore {
	return &mockDocumentStore{docs: make(map[string]entities.Document)}
}

func (m *mockDocumentStore) HasAny(ctx context.Context) (bool, error) {
	if m.hasFn != nil {
		return m.hasFn(ctx)
	}
	if m.hasErr != nil {
		return false, m.hasErr
	}
	return len(m.docs) > 0, nil
}

func (m *mockDocumentStore) SaveDocument(ctx context.Context, doc *entities.Document) error {
	m.docs[doc.ID] = *doc
	return nil
}

func (m *mockDocumentStore) GetDocument(ctx context.Context, id string) (*entities.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, ports.ErrDocumentNotFound
	}
	return &d, nil
}

func (m *mockDocumentStore) ListDocuments(ctx context.Context) ([]entities.Document, error) {
	out := make([]entities.Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	return out, nil
}

func (m *mockDocumentStore) DeleteDocument(ctx context.Context, id string) error {
	delete(m.docs, id)
	return nil
}

// memSessions is a minimal ports.SessionStore with a fixed window.
type memSessions struct {
	mu      sync.Mutex
	window  int
	turns   map[string][]entities.Turn
	appends int
}

func newMemSessions(window int) *memSessions {
	return &memSessions{window: window, turns: make(map[string][]entities.Turn)}
}

func (s *memSessions) Get(id string) []entities.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.Turn(nil), s.turns[id]...)
}

func (s *memSessions) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.turns[id]
	return ok
}

func (s *memSessions) Seed(id string, turns []entities.Turn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.turns[id]; ok {
		return false
	}
	s.turns[id] = append([]entities.Turn(nil), turns...)
	return true
}

func (s *memSessions) Append(id string, user, assistant entities.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	t := append(s.turns[id], user, assistant)
	if limit := 2 * s.window; len(t) > limit {
		t = t[len(t)-limit:]
	}
	s.turns[id] = t
}

func (s *memSessions) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.turns[id]; ok {
		s.turns[id] = nil
	}
}

// MockCompletion implements ports.Completion with testify expectations.
type MockCompletion struct{ mock.Mock }

func (m *MockCompletion) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	args := m.Called(ctx, prompt, maxTokens, temperature)
	return args.String(0), args.Error(1)
}

// groundedPrompt matches prompts built for the grounded stage.
func groundedPrompt() interface{} {
	return mock.MatchedBy(func(p string) bool { return strings.Contains(p, "Context:\n[1]") })
}

// generalPrompt matches prompts built for the general stage.
func generalPrompt() interface{} {
	return mock.MatchedBy(func(p string) bool { return strings.HasPrefix(p, generalInstruction) })
}

// recordingObserver captures observations for assertions.
type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	stages   []string
}

func (o *recordingObserver) ObserveAnswer(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) ObserveStage(stage string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) ObserveRetrieved(int) {}
