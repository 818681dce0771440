// Package vectordb provides vector store adapters implementing
// ports.VectorStore and ports.DocumentStore.
package vectordb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// topK scores candidates against the query and keeps the best k.
// Candidates must arrive in a stable order; ties keep that order.
func topK(query []float32, candidates []entities.Chunk, k int) []entities.ContextChunk {
	results := make([]entities.ContextChunk, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, entities.ContextChunk{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Source:     c.Source,
			Text:       c.Content,
			Score:      cosineSimilarity(query, c.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// searchError maps a backend failure onto the search failure kinds.
func searchError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ports.ErrSearchTimeout, err)
	}
	return fmt.Errorf("%w: %v", ports.ErrSearchUnavailable, err)
}
