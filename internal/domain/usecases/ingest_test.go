package usecases

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

func newIngest(store *mockVectorStore, docs *mockDocumentStore, size, overlap int) *IngestUseCase {
	return NewIngestUseCase(&mockEmbedder{}, store, docs, size, overlap, nil)
}

func TestIngestUseCase_ChunksDocument(t *testing.T) {
	store := &mockVectorStore{}
	docs := newMockDocumentStore()
	uc := newIngest(store, docs, 100, 20)

	doc := &entities.Document{
		ID:      "doc-1",
		Source:  "test.txt",
		Content: "This is some content that should be chunked properly.",
	}

	err := uc.Ingest(context.Background(), doc)
	require.NoError(t, err)

	require.NotEmpty(t, store.chunks)
	assert.Equal(t, "doc-1-0", store.chunks[0].ID)
	assert.Equal(t, "test.txt", store.chunks[0].Source)
	assert.NotEmpty(t, store.chunks[0].Embedding)
	assert.Contains(t, docs.docs, "doc-1")
}

func TestIngestUseCase_EmptyDocument(t *testing.T) {
	store := &mockVectorStore{}
	uc := newIngest(store, newMockDocumentStore(), 100, 20)

	err := uc.Ingest(context.Background(), &entities.Document{ID: "empty", Content: "   "})

	assert.Error(t, err)
	assert.Empty(t, store.chunks)
}

func TestIngestUseCase_LargeDocument(t *testing.T) {
	store := &mockVectorStore{}
	uc := newIngest(store, newMockDocumentStore(), 50, 10)

	doc := &entities.Document{
		ID:      "big",
		Content: strings.Repeat("word ", 40),
	}

	require.NoError(t, uc.Ingest(context.Background(), doc))
	assert.GreaterOrEqual(t, len(store.chunks), 3)
	for i, c := range store.chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, len(c.Content), 50)
		assert.False(t, strings.HasPrefix(c.Content, "ord"), "chunk %d starts mid-word", i)
	}
}

func TestIngestUseCase_NoSpacesTerminates(t *testing.T) {
	store := &mockVectorStore{}
	uc := newIngest(store, newMockDocumentStore(), 10, 5)

	doc := &entities.Document{ID: "dense", Content: strings.Repeat("x", 35)}

	require.NoError(t, uc.Ingest(context.Background(), doc))
	assert.NotEmpty(t, store.chunks)
	assert.Less(t, len(store.chunks), 10)
}

func TestIngestUseCase_MultibyteChunksStayValid(t *testing.T) {
	store := &mockVectorStore{}
	uc := newIngest(store, newMockDocumentStore(), 10, 5)

	doc := &entities.Document{ID: "cjk", Content: strings.Repeat("通貨膨胀率", 10)}

	require.NoError(t, uc.Ingest(context.Background(), doc))
	require.NotEmpty(t, store.chunks)
	assert.Less(t, len(store.chunks), 20)
	for i, c := range store.chunks {
		assert.True(t, utf8.ValidString(c.Content), "chunk %d is not valid UTF-8: %q", i, c.Content)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 10)
	}
	assert.True(t, strings.HasPrefix(store.chunks[0].Content, "通貨膨胀率通貨"))
}

func TestIngestUseCase_AssignsIDAndSource(t *testing.T) {
	docs := newMockDocumentStore()
	uc := newIngest(&mockVectorStore{}, docs, 100, 20)

	doc := &entities.Document{Content: "Inflation was 4.1% in 2023."}
	require.NoError(t, uc.Ingest(context.Background(), doc))

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "Unknown", doc.Source)
	assert.False(t, doc.CreatedAt.IsZero())
}

func TestIngestUseCase_ReingestReplacesChunks(t *testing.T) {
	store := &mockVectorStore{}
	uc := newIngest(store, newMockDocumentStore(), 100, 20)
	ctx := context.Background()

	require.NoError(t, uc.Ingest(ctx, &entities.Document{ID: "d", Content: "first version"}))
	require.NoError(t, uc.Ingest(ctx, &entities.Document{ID: "d", Content: "second version"}))

	require.Len(t, store.chunks, 1)
	assert.Equal(t, "second version", store.chunks[0].Content)
}

func TestIngestUseCase_FailedReingestKeepsPrevious(t *testing.T) {
	store := &mockVectorStore{}
	docs := newMockDocumentStore()
	uc := newIngest(store, docs, 100, 20)
	ctx := context.Background()

	require.NoError(t, uc.Ingest(ctx, &entities.Document{ID: "d", Content: "first version"}))
	store.storeFn = func([]entities.Chunk) error { return errors.New("disk full") }

	err := uc.Ingest(ctx, &entities.Document{ID: "d", Content: "second version"})

	require.Error(t, err)
	require.Len(t, store.chunks, 1)
	assert.Equal(t, "first version", store.chunks[0].Content)
	assert.Equal(t, "first version", docs.docs["d"].Content)
}

func TestIngestUseCase_EmbeddingFailure(t *testing.T) {
	embedder := &mockEmbedder{embedFn: func(string) ([]float32, error) {
		return nil, ports.ErrEmbeddingUnavailable
	}}
	docs := newMockDocumentStore()
	uc := NewIngestUseCase(embedder, &mockVectorStore{}, docs, 100, 20, nil)

	err := uc.Ingest(context.Background(), &entities.Document{ID: "d", Content: "text"})

	assert.ErrorIs(t, err, ports.ErrEmbeddingUnavailable)
	assert.Empty(t, docs.docs)
}

func TestIngestUseCase_Delete(t *testing.T) {
	store := &mockVectorStore{}
	docs := newMockDocumentStore()
	uc := newIngest(store, docs, 100, 20)
	ctx := context.Background()

	require.NoError(t, uc.Ingest(ctx, &entities.Document{ID: "doc-1", Content: "some text"}))
	require.NoError(t, uc.Delete(ctx, "doc-1"))

	assert.Empty(t, store.chunks)
	assert.Empty(t, docs.docs)

	err := uc.Delete(ctx, "doc-1")
	assert.True(t, errors.Is(err, ports.ErrDocumentNotFound))
}

func TestIngestUseCase_SeedIfEmpty(t *testing.T) {
	docs := newMockDocumentStore()
	uc := newIngest(&mockVectorStore{}, docs, 100, 20)
	ctx := context.Background()
	seed := []entities.Document{{Source: "Example", Content: "BTC(bitcoin) Price is 50$"}}

	n, err := uc.SeedIfEmpty(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = uc.SeedIfEmpty(ctx, []entities.Document{{Source: "Other", Content: "more"}})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, docs.docs, 1)
}
