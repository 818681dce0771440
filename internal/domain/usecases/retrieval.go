package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// RetrievalOptions bounds a retrieval pass.
type RetrievalOptions struct {
	MaxChunks          int     // K
	ContextBudget      int     // B, in characters
	RelevanceThreshold float64 // candidates scoring below are dropped
	EmbedTimeout       time.Duration
	SearchTimeout      time.Duration
	ExpansionTimeout   time.Duration
	Logger             *slog.Logger
	Observer           ports.Observer
}

// RetrievalOrchestrator expands a question, searches the collection and
// compresses the hits into a bounded, ranked context.
type RetrievalOrchestrator struct {
	embedder ports.Embedder
	search   ports.VectorSearch
	expander QueryExpander
	opts     RetrievalOptions
}

// NewRetrievalOrchestrator wires the orchestrator. expander may be nil.
func NewRetrievalOrchestrator(
	embedder ports.Embedder,
	search ports.VectorSearch,
	expander QueryExpander,
	opts RetrievalOptions,
) *RetrievalOrchestrator {
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = 5
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 4000
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = 10 * time.Second
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 10 * time.Second
	}
	if opts.ExpansionTimeout <= 0 {
		opts.ExpansionTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = ports.NopObserver{}
	}
	return &RetrievalOrchestrator{
		embedder: embedder,
		search:   search,
		expander: expander,
		opts:     opts,
	}
}

// Retrieve returns context chunks for the question, best first.
// Failures of the embedder or the search degrade to an empty result.
func (o *RetrievalOrchestrator) Retrieve(ctx context.Context, question string, history []entities.Turn) []entities.ContextChunk {
	start := time.Now()
	defer func() { o.opts.Observer.ObserveStage("retrieval", time.Since(start)) }()

	query := o.expand(ctx, question, history)

	candidates, err := o.searchRaw(ctx, query, o.opts.MaxChunks)
	if err != nil {
		o.opts.Logger.Warn("retrieval degraded to no context",
			"error", err,
			"timeout", ports.IsTimeout(err),
		)
		o.opts.Observer.ObserveRetrieved(0)
		return nil
	}

	chunks := compressChunks(candidates, o.opts.RelevanceThreshold, o.opts.ContextBudget, o.opts.MaxChunks)
	o.opts.Observer.ObserveRetrieved(len(chunks))
	o.opts.Logger.Debug("retrieval finished",
		"query", query,
		"candidates", len(candidates),
		"kept", len(chunks),
	)
	return chunks
}

// Search runs an unexpanded search and reports errors instead of degrading.
func (o *RetrievalOrchestrator) Search(ctx context.Context, query string, k int) ([]entities.ContextChunk, error) {
	if k <= 0 || k > o.opts.MaxChunks {
		k = o.opts.MaxChunks
	}
	candidates, err := o.searchRaw(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return compressChunks(candidates, o.opts.RelevanceThreshold, o.opts.ContextBudget, k), nil
}

func (o *RetrievalOrchestrator) searchRaw(ctx context.Context, query string, k int) ([]entities.ContextChunk, error) {
	embedCtx, cancel := context.WithTimeout(ctx, o.opts.EmbedTimeout)
	vec, err := o.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, o.opts.SearchTimeout)
	defer cancel()
	candidates, err := o.search.Search(searchCtx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	return candidates, nil
}

// expand rewrites the question for search, keeping the raw question on any failure.
func (o *RetrievalOrchestrator) expand(ctx context.Context, question string, history []entities.Turn) string {
	if o.expander == nil {
		return question
	}
	expandCtx, cancel := context.WithTimeout(ctx, o.opts.ExpansionTimeout)
	defer cancel()
	expanded, err := o.expander.Expand(expandCtx, question, history)
	if err != nil {
		o.opts.Logger.Warn("query expansion failed, using raw question", "error", err)
		return question
	}
	if strings.TrimSpace(expanded) == "" {
		return question
	}
	return expanded
}

// compressChunks drops weak candidates, ranks the rest by score (stable on
// ties) and trims text so the total stays within budget characters.
func compressChunks(candidates []entities.ContextChunk, threshold float64, budget, k int) []entities.ContextChunk {
	kept := make([]entities.ContextChunk, 0, len(candidates))
	for _, c := range candidates {
		if c.Score < threshold || strings.TrimSpace(c.Text) == "" {
			continue
		}
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	if len(kept) > k {
		kept = kept[:k]
	}

	out := make([]entities.ContextChunk, 0, len(kept))
	remaining := budget
	for _, c := range kept {
		if remaining <= 0 {
			break
		}
		text := fitText(strings.TrimSpace(c.Text), remaining)
		if text == "" {
			break
		}
		c.Text = text
		remaining -= len([]rune(text))
		out = append(out, c)
	}
	return out
}

// fitText cuts text to at most limit runes, preferring a sentence end,
// then a word boundary, then a hard cut.
func fitText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := runes[:limit]

	for i := len(cut) - 1; i >= 0; i-- {
		switch cut[i] {
		case '\n':
			if s := strings.TrimSpace(string(cut[:i])); s != "" {
				return s
			}
		case '.', '!', '?':
			if unicode.IsSpace(runes[i+1]) {
				return strings.TrimSpace(string(cut[:i+1]))
			}
		}
	}

	for i := len(cut) - 1; i > 0; i-- {
		if unicode.IsSpace(cut[i]) {
			return strings.TrimSpace(string(cut[:i]))
		}
	}
	return string(cut)
}
