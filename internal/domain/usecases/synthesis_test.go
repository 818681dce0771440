package usecases

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

var fedChunk = entities.ContextChunk{
	ChunkID:    "c1",
	DocumentID: "fed-2023",
	Source:     "Fed Report 2023",
	Text:       "Inflation was 4.1% in 2023.",
	Score:      0.91,
}

func newSynth(llm ports.Completion) *AnswerSynthesizer {
	return NewAnswerSynthesizer(llm, SynthesisOptions{MaxTokens: 500, Temperature: 0.3})
}

// sourcesIffGrounded checks that sources appear exactly when retrieval was used and sufficient.
func sourcesIffGrounded(t *testing.T, rec *entities.AnswerRecord) {
	t.Helper()
	assert.Equal(t, rec.UsedRetrieval && rec.Sufficient, len(rec.Sources) > 0)
}

func TestSynthesize_GroundedSufficient(t *testing.T) {
	llm := &MockCompletion{}
	llm.On("Complete", mock.Anything, groundedPrompt(), 500, 0.3).
		Return(`{"answer": "It was 4.1% [1].", "sufficient": true, "citations": [1]}`, nil).Once()

	rec, err := newSynth(llm).Synthesize(context.Background(), "What was the 2023 inflation rate?", nil, []entities.ContextChunk{fedChunk})

	require.NoError(t, err)
	assert.Equal(t, "It was 4.1% [1].", rec.Answer)
	assert.True(t, rec.UsedRetrieval)
	assert.True(t, rec.Sufficient)
	require.Len(t, rec.Sources, 1)
	assert.Equal(t, "Fed Report 2023", rec.Sources[0].Label)
	sourcesIffGrounded(t, rec)
	llm.AssertExpectations(t)
}

func TestSynthesize_InsufficientFallsBack(t *testing.T) {
	llm := &MockCompletion{}
	llm.On("Complete", mock.Anything, groundedPrompt(), 500, 0.3).
		Return(`{"answer": "The context does not say.", "sufficient": false, "citations": []}`, nil).Once()
	llm.On("Complete", mock.Anything, generalPrompt(), 500, 0.3).
		Return("Inflation is a general rise in prices.", nil).Once()

	rec, err := newSynth(llm).Synthesize(context.Background(), "What is inflation?", nil, []entities.ContextChunk{fedChunk})

	require.NoError(t, err)
	assert.Equal(t, "Inflation is a general rise in prices.", rec.Answer)
	assert.True(t, rec.UsedRetrieval)
	assert.False(t, rec.Sufficient)
	assert.Empty(t, rec.Sources)
	sourcesIffGrounded(t, rec)
	llm.AssertExpectations(t)
}

func TestSynthesize_NoContextGoesGeneral(t *testing.T) {
	llm := &MockCompletion{}
	llm.On("Complete", mock.Anything, generalPrompt(), 500, 0.3).Return("General answer.", nil).Once()

	rec, err := newSynth(llm).Synthesize(context.Background(), "What is inflation?", nil, nil)

	require.NoError(t, err)
	assert.False(t, rec.UsedRetrieval)
	assert.False(t, rec.Sufficient)
	assert.Empty(t, rec.Sources)
	llm.AssertExpectations(t)
	llm.AssertNumberOfCalls(t, "Complete", 1)
}

func TestSynthesize_GroundedFailureFallsBack(t *testing.T) {
	for name, groundedErr := range map[string]error{
		"rate limited": ports.ErrRateLimited,
		"timeout":      ports.ErrCompletionTimeout,
	} {
		t.Run(name, func(t *testing.T) {
			llm := &MockCompletion{}
			llm.On("Complete", mock.Anything, groundedPrompt(), mock.Anything, mock.Anything).Return("", groundedErr).Once()
			llm.On("Complete", mock.Anything, generalPrompt(), mock.Anything, mock.Anything).Return("General.", nil).Once()

			rec, err := newSynth(llm).Synthesize(context.Background(), "q", nil, []entities.ContextChunk{fedChunk})

			require.NoError(t, err)
			assert.Equal(t, "General.", rec.Answer)
			assert.True(t, rec.UsedRetrieval)
			assert.Empty(t, rec.Sources)
		})
	}
}

func TestSynthesize_MalformedGroundedReplyIsInsufficient(t *testing.T) {
	for _, reply := range []string{
		"Inflation was 4.1%.",
		`{"answer": "It was 4.1%."}`,
		`{"answer": "", "sufficient": true}`,
		`{"answer": "x", "sufficient": "yes"}`,
	} {
		llm := &MockCompletion{}
		llm.On("Complete", mock.Anything, groundedPrompt(), mock.Anything, mock.Anything).Return(reply, nil).Once()
		llm.On("Complete", mock.Anything, generalPrompt(), mock.Anything, mock.Anything).Return("General.", nil).Once()

		rec, err := newSynth(llm).Synthesize(context.Background(), "q", nil, []entities.ContextChunk{fedChunk})

		require.NoError(t, err, reply)
		assert.False(t, rec.Sufficient, reply)
		assert.Empty(t, rec.Sources, reply)
	}
}

func TestSynthesize_GeneralFailurePropagates(t *testing.T) {
	llm := &MockCompletion{}
	llm.On("Complete", mock.Anything, generalPrompt(), mock.Anything, mock.Anything).Return("", ports.ErrRateLimited)

	_, err := newSynth(llm).Synthesize(context.Background(), "q", nil, nil)

	assert.ErrorIs(t, err, ports.ErrRateLimited)
}

func TestSynthesize_EmptyGeneralAnswerIsInvalid(t *testing.T) {
	llm := &MockCompletion{}
	llm.On("Complete", mock.Anything, generalPrompt(), mock.Anything, mock.Anything).Return("   ", nil)

	_, err := newSynth(llm).Synthesize(context.Background(), "q", nil, nil)

	assert.ErrorIs(t, err, ports.ErrInvalidResponse)
}

func TestSynthesize_CallTimeoutIsClassified(t *testing.T) {
	llm := &MockCompletion{}
	llm.On("Complete", mock.Anything, generalPrompt(), mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.DeadlineExceeded)

	s := NewAnswerSynthesizer(llm, SynthesisOptions{Timeout: 10 * time.Millisecond})
	_, err := s.Synthesize(context.Background(), "q", nil, nil)

	assert.ErrorIs(t, err, ports.ErrCompletionTimeout)
}

func TestSynthesize_CancelledDuringGroundedStage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	llm := &MockCompletion{}
	llm.On("Complete", mock.Anything, groundedPrompt(), mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return("", context.Canceled)

	_, err := newSynth(llm).Synthesize(ctx, "q", nil, []entities.ContextChunk{fedChunk})

	assert.True(t, errors.Is(err, context.Canceled))
	llm.AssertNumberOfCalls(t, "Complete", 1)
}

func TestBuildGroundedPrompt(t *testing.T) {
	h := []entities.Turn{
		{Role: entities.RoleUser, Text: "Hi"},
		{Role: entities.RoleAssistant, Text: "Hello!"},
	}
	second := fedChunk
	second.Source = "IMF Outlook"

	p := buildGroundedPrompt("What was inflation?", h, []entities.ContextChunk{fedChunk, second})

	assert.Contains(t, p, "[1] (source: Fed Report 2023)\nInflation was 4.1% in 2023.")
	assert.Contains(t, p, "[2] (source: IMF Outlook)")
	assert.Contains(t, p, "user: Hi\nassistant: Hello!\n")
	assert.Less(t, strings.Index(p, "user: Hi"), strings.Index(p, "Question: What was inflation?"))
	assert.True(t, strings.HasSuffix(p, "JSON:"))
}

func TestBuildGeneralPrompt_NoContext(t *testing.T) {
	p := buildGeneralPrompt("What is inflation?", nil)

	assert.NotContains(t, p, "Context:")
	assert.NotContains(t, p, "Conversation so far")
	assert.True(t, strings.HasSuffix(p, "Question: What is inflation?\n\nAnswer:"))
}

func TestParseGroundedReply_ToleratesFences(t *testing.T) {
	out := "```json\n{\"answer\": \"Yes.\", \"sufficient\": true, \"citations\": [2]}\n```"

	reply, err := parseGroundedReply(out)

	require.NoError(t, err)
	assert.Equal(t, "Yes.", reply.Answer)
	assert.True(t, *reply.Sufficient)
	assert.Equal(t, []int{2}, reply.Citations)
}

func TestCiteSources(t *testing.T) {
	a := entities.ContextChunk{DocumentID: "d1", Source: "A", Score: 0.9}
	a2 := entities.ContextChunk{DocumentID: "d1", Source: "A", Score: 0.7}
	b := entities.ContextChunk{DocumentID: "d2", Source: "B", Score: 0.8}
	chunks := []entities.ContextChunk{a, a2, b}

	t.Run("cited passages only", func(t *testing.T) {
		got := citeSources(chunks, []int{3})
		require.Len(t, got, 1)
		assert.Equal(t, "B", got[0].Label)
	})
	t.Run("dedupes by document", func(t *testing.T) {
		got := citeSources(chunks, []int{1, 2})
		require.Len(t, got, 1)
		assert.Equal(t, 0.9, got[0].Score)
	})
	t.Run("out of range falls back to all", func(t *testing.T) {
		got := citeSources(chunks, []int{0, 9})
		assert.Len(t, got, 2)
	})
}
