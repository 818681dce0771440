package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

type stubExpander struct {
	out string
	err error
}

func (s stubExpander) Expand(context.Context, string, []entities.Turn) (string, error) {
	return s.out, s.err
}

func chunk(id string, score float64, text string) entities.ContextChunk {
	return entities.ContextChunk{ChunkID: id, DocumentID: "doc-" + id, Source: "src-" + id, Text: text, Score: score}
}

func TestCompressChunks_FiltersAndRanks(t *testing.T) {
	in := []entities.ContextChunk{
		chunk("a", 0.5, "alpha."),
		chunk("b", 0.1, "below threshold."),
		chunk("c", 0.9, "gamma."),
		chunk("d", 0.5, "delta."),
		chunk("e", 0.8, "   "),
	}

	out := compressChunks(in, 0.3, 1000, 10)

	ids := make([]string, len(out))
	for i, c := range out {
		ids[i] = c.ChunkID
	}
	assert.Equal(t, []string{"c", "a", "d"}, ids)
}

func TestCompressChunks_CapsAtK(t *testing.T) {
	in := []entities.ContextChunk{chunk("a", 0.9, "a."), chunk("b", 0.8, "b."), chunk("c", 0.7, "c.")}

	out := compressChunks(in, 0, 1000, 2)

	assert.Len(t, out, 2)
}

func TestCompressChunks_RespectsBudget(t *testing.T) {
	first := "The rate rose. Prices climbed further in the spring."
	second := "Wages lagged behind prices for most of the year."
	in := []entities.ContextChunk{chunk("a", 0.9, first), chunk("b", 0.8, second)}

	out := compressChunks(in, 0, 60, 5)

	total := 0
	for _, c := range out {
		total += utf8.RuneCountInString(c.Text)
	}
	assert.LessOrEqual(t, total, 60)
	require.Len(t, out, 2)
	assert.Equal(t, first, out[0].Text)
	assert.Equal(t, "Wages", out[1].Text)
}

func TestCompressChunks_EmptyInput(t *testing.T) {
	assert.Empty(t, compressChunks(nil, 0.3, 100, 5))
}

func TestFitText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"fits", "short text", 20, "short text"},
		{"sentence", "One sentence. Two sentences here.", 20, "One sentence."},
		{"newline", "line one\nline two continues", 14, "line one"},
		{"word", "no sentence end here at all", 12, "no sentence"},
		{"hard cut", "abcdefghijklmnop", 5, "abcde"},
		{"decimal not sentence", "Rate was 4.1 percent overall", 12, "Rate was"},
		{"multibyte", "ééééé ééééé", 7, "ééééé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fitText(tt.text, tt.limit))
		})
	}
}

func TestRetrieve_ReturnsRankedChunks(t *testing.T) {
	store := &mockVectorStore{results: []entities.ContextChunk{
		chunk("a", 0.6, "first."),
		chunk("b", 0.95, "Inflation was 4.1% in 2023."),
	}}
	o := NewRetrievalOrchestrator(&mockEmbedder{}, store, nil, RetrievalOptions{MaxChunks: 3, RelevanceThreshold: 0.3})

	out := o.Retrieve(context.Background(), "What was the 2023 inflation rate?", nil)

	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ChunkID)
	assert.Equal(t, 3, store.lastK)
}

func TestRetrieve_SearchTimeoutYieldsEmpty(t *testing.T) {
	store := &mockVectorStore{searchFn: func(context.Context, int) ([]entities.ContextChunk, error) {
		return nil, fmt.Errorf("query: %w", ports.ErrSearchTimeout)
	}}
	o := NewRetrievalOrchestrator(&mockEmbedder{}, store, nil, RetrievalOptions{})

	out := o.Retrieve(context.Background(), "anything", nil)

	assert.Empty(t, out)
}

func TestRetrieve_SearchDeadlineYieldsEmpty(t *testing.T) {
	store := &mockVectorStore{searchFn: func(ctx context.Context, _ int) ([]entities.ContextChunk, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	o := NewRetrievalOrchestrator(&mockEmbedder{}, store, nil, RetrievalOptions{SearchTimeout: 10 * time.Millisecond})

	out := o.Retrieve(context.Background(), "anything", nil)

	assert.Empty(t, out)
}

func TestRetrieve_EmbeddingFailureYieldsEmpty(t *testing.T) {
	embedder := &mockEmbedder{embedFn: func(string) ([]float32, error) {
		return nil, ports.ErrEmbeddingUnavailable
	}}
	store := &mockVectorStore{results: []entities.ContextChunk{chunk("a", 0.9, "x.")}}
	o := NewRetrievalOrchestrator(embedder, store, nil, RetrievalOptions{})

	assert.Empty(t, o.Retrieve(context.Background(), "q", nil))
}

func TestRetrieve_UsesExpandedQuery(t *testing.T) {
	embedder := &mockEmbedder{}
	o := NewRetrievalOrchestrator(embedder, &mockVectorStore{}, stubExpander{out: "inflation rate 2023"}, RetrievalOptions{})

	o.Retrieve(context.Background(), "and that?", nil)

	assert.Equal(t, []string{"inflation rate 2023"}, embedder.queries)
}

func TestRetrieve_ExpansionFailureKeepsQuestion(t *testing.T) {
	embedder := &mockEmbedder{}
	o := NewRetrievalOrchestrator(embedder, &mockVectorStore{}, stubExpander{err: errors.New("boom")}, RetrievalOptions{})

	o.Retrieve(context.Background(), "raw question", nil)

	assert.Equal(t, []string{"raw question"}, embedder.queries)
}

type blockingCompletion struct{}

func (blockingCompletion) Complete(ctx context.Context, _ string, _ int, _ float64) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRetrieve_ExpansionTimeoutBoundsSlowModel(t *testing.T) {
	embedder := &mockEmbedder{}
	store := &mockVectorStore{results: []entities.ContextChunk{chunk("a", 0.9, "Inflation was 4.1%.")}}
	o := NewRetrievalOrchestrator(embedder, store, NewCompletionExpander(blockingCompletion{}, 4), RetrievalOptions{
		ExpansionTimeout: 20 * time.Millisecond,
		EmbedTimeout:     time.Second,
		SearchTimeout:    time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	out := o.Retrieve(ctx, "inflation rate", nil)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"inflation rate"}, embedder.queries)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ChunkID)
}

func TestSearch_SurfacesErrors(t *testing.T) {
	store := &mockVectorStore{searchFn: func(context.Context, int) ([]entities.ContextChunk, error) {
		return nil, ports.ErrSearchUnavailable
	}}
	o := NewRetrievalOrchestrator(&mockEmbedder{}, store, nil, RetrievalOptions{})

	_, err := o.Search(context.Background(), "q", 3)

	assert.ErrorIs(t, err, ports.ErrSearchUnavailable)
}

func TestSearch_ClampsK(t *testing.T) {
	store := &mockVectorStore{results: []entities.ContextChunk{chunk("a", 0.9, strings.Repeat("x", 10))}}
	o := NewRetrievalOrchestrator(&mockEmbedder{}, store, nil, RetrievalOptions{MaxChunks: 4})

	out, err := o.Search(context.Background(), "q", 50)

	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, 4, store.lastK)
}
