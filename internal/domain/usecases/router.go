package usecases

import (
	"strings"
	"unicode"
)

// smallTalkWords covers greetings, thanks and questions about the assistant itself.
// A question made only of these words is conversational and never worth a search.
var smallTalkWords = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "hiya": {}, "yo": {}, "greetings": {},
	"good": {}, "morning": {}, "afternoon": {}, "evening": {}, "night": {},
	"thanks": {}, "thank": {}, "thx": {}, "ty": {}, "cheers": {}, "appreciate": {}, "it": {},
	"bye": {}, "goodbye": {}, "see": {}, "later": {}, "ya": {},
	"ok": {}, "okay": {}, "cool": {}, "great": {}, "nice": {}, "awesome": {}, "sure": {}, "yes": {}, "no": {},
	"how": {}, "are": {}, "you": {}, "doing": {}, "who": {}, "your": {}, "name": {}, "to": {}, "meet": {},
	"a": {}, "lot": {}, "so": {}, "much": {}, "very": {}, "there": {}, "again": {},
}

// maxSmallTalkWords bounds how long a purely conversational message can be.
const maxSmallTalkWords = 6

// QueryRouter decides whether a question is worth a retrieval attempt.
// It is pure: no I/O, no state changes, same answer for the same input.
type QueryRouter struct {
	keywords []string
}

// NewQueryRouter creates a router. Domain keywords always force retrieval.
func NewQueryRouter(domainKeywords []string) *QueryRouter {
	kw := make([]string, 0, len(domainKeywords))
	for _, k := range domainKeywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			kw = append(kw, k)
		}
	}
	return &QueryRouter{keywords: kw}
}

// ShouldRetrieve returns false when there is no collection to search or the
// question is plain small talk. Anything inconclusive attempts retrieval.
func (r *QueryRouter) ShouldRetrieve(question string, hasDocuments bool) bool {
	if !hasDocuments {
		return false
	}

	lower := strings.ToLower(question)
	for _, k := range r.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}

	words := tokenize(lower)
	if len(words) == 0 || len(words) > maxSmallTalkWords {
		return true
	}
	for _, w := range words {
		if _, ok := smallTalkWords[w]; !ok {
			return true
		}
	}
	return false
}

// tokenize splits text into lowercase words, dropping punctuation.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
