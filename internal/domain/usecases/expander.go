package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// QueryExpander rewrites a question into a search-oriented query.
type QueryExpander interface {
	Expand(ctx context.Context, question string, history []entities.Turn) (string, error)
}

const expansionMaxTokens = 100

// CompletionExpander asks the language model for an improved search query.
type CompletionExpander struct {
	llm          ports.Completion
	historyTurns int
}

// NewCompletionExpander creates an expander that looks at the last historyTurns turns.
func NewCompletionExpander(llm ports.Completion, historyTurns int) *CompletionExpander {
	if historyTurns < 0 {
		historyTurns = 0
	}
	return &CompletionExpander{llm: llm, historyTurns: historyTurns}
}

// Expand returns the first line of the model's rewrite.
func (e *CompletionExpander) Expand(ctx context.Context, question string, history []entities.Turn) (string, error) {
	var sb strings.Builder
	sb.WriteString("You generate search queries for a document knowledge base.\n")
	sb.WriteString("Rewrite the user's question as a standalone search query. Resolve pronouns using the conversation, ")
	sb.WriteString("include synonyms and keep the key concepts. Reply with the query only.\n\n")
	if recent := lastTurns(history, e.historyTurns); len(recent) > 0 {
		sb.WriteString("Conversation:\n")
		writeHistory(&sb, recent)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Original question: %s\n\nImproved search query:", question)

	out, err := e.llm.Complete(ctx, sb.String(), expansionMaxTokens, 0)
	if err != nil {
		return "", fmt.Errorf("expanding query: %w", err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	line = strings.Trim(strings.TrimSpace(line), `"`)
	if line == "" {
		return "", errors.New("expanding query: empty rewrite")
	}
	return line, nil
}

var anaphora = map[string]struct{}{
	"it": {}, "its": {}, "that": {}, "this": {}, "these": {}, "those": {},
	"they": {}, "them": {}, "their": {}, "there": {}, "he": {}, "she": {},
}

var stopwords = map[string]struct{}{
	"what": {}, "when": {}, "where": {}, "which": {}, "about": {}, "with": {},
	"from": {}, "have": {}, "does": {}, "were": {}, "been": {}, "will": {},
	"would": {}, "could": {}, "should": {}, "there": {}, "their": {}, "this": {},
	"that": {}, "these": {}, "those": {}, "they": {}, "them": {}, "than": {},
	"then": {}, "into": {}, "your": {}, "more": {}, "some": {}, "also": {},
	"just": {}, "like": {}, "tell": {}, "please": {}, "know": {}, "information": {},
}

const maxExpansionTerms = 8

// TermExpander appends salient terms from recent turns when the question
// refers back to them. It needs no model call.
type TermExpander struct {
	historyTurns int
}

// NewTermExpander creates an expander that looks at the last historyTurns turns.
func NewTermExpander(historyTurns int) *TermExpander {
	if historyTurns < 0 {
		historyTurns = 0
	}
	return &TermExpander{historyTurns: historyTurns}
}

// Expand returns the question unchanged unless it contains an anaphor.
func (e *TermExpander) Expand(_ context.Context, question string, history []entities.Turn) (string, error) {
	words := tokenize(question)
	refers := false
	for _, w := range words {
		if _, ok := anaphora[w]; ok {
			refers = true
			break
		}
	}
	if !refers {
		return question, nil
	}

	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}

	recent := lastTurns(history, e.historyTurns)
	var terms []string
	// newest turns first so the most recent subject wins
	for i := len(recent) - 1; i >= 0 && len(terms) < maxExpansionTerms; i-- {
		for _, w := range tokenize(recent[i].Text) {
			if len(w) < 4 {
				continue
			}
			if _, ok := stopwords[w]; ok {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			terms = append(terms, w)
			if len(terms) == maxExpansionTerms {
				break
			}
		}
	}
	if len(terms) == 0 {
		return question, nil
	}
	return question + " " + strings.Join(terms, " "), nil
}

func lastTurns(history []entities.Turn, n int) []entities.Turn {
	if n <= 0 {
		return nil
	}
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}

// writeHistory renders turns oldest first as "role: text".
func writeHistory(sb *strings.Builder, turns []entities.Turn) {
	for _, t := range turns {
		fmt.Fprintf(sb, "%s: %s\n", t.Role, strings.TrimSpace(t.Text))
	}
}
