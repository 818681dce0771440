package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// SynthesisOptions are passed through unchanged to every completion call.
type SynthesisOptions struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Logger      *slog.Logger
	Observer    ports.Observer
}

type synthesisState int

const (
	stateNotAttempted synthesisState = iota
	stateGrounded
	stateFallback
	stateDone
)

func (s synthesisState) String() string {
	switch s {
	case stateNotAttempted:
		return "not_attempted"
	case stateGrounded:
		return "grounded"
	case stateFallback:
		return "fallback"
	case stateDone:
		return "done"
	}
	return "unknown"
}

const groundedInstruction = `You are an assistant that answers questions using a private document collection.
Use only the numbered context passages below. Cite the passages you rely on by their numbers.
Reply with a single JSON object and nothing else:
{"answer": "<your answer>", "sufficient": <true if the context fully supports the answer, otherwise false>, "citations": [<passage numbers>]}
If the context does not contain the information, set "sufficient" to false.`

const generalInstruction = `You are a helpful assistant. Answer the question clearly and concisely from your general knowledge.
Take the conversation so far into account.`

// groundedReply is the structured output requested from the grounded stage.
type groundedReply struct {
	Answer     string `json:"answer"`
	Sufficient *bool  `json:"sufficient"`
	Citations  []int  `json:"citations"`
}

// AnswerSynthesizer turns a question, history and optional context into an answer.
// It tries a grounded answer first and falls back to a general one.
type AnswerSynthesizer struct {
	llm  ports.Completion
	opts SynthesisOptions
}

// NewAnswerSynthesizer creates a synthesizer with defaults for unset options.
func NewAnswerSynthesizer(llm ports.Completion, opts SynthesisOptions) *AnswerSynthesizer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 500
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = ports.NopObserver{}
	}
	return &AnswerSynthesizer{llm: llm, opts: opts}
}

// Synthesize runs the grounded stage when context is present and the general
// stage otherwise or when the grounded answer is not sufficient.
// Grounded-stage failures are absorbed; general-stage failures are returned.
func (s *AnswerSynthesizer) Synthesize(
	ctx context.Context,
	question string,
	history []entities.Turn,
	chunks []entities.ContextChunk,
) (*entities.AnswerRecord, error) {
	rec := &entities.AnswerRecord{}
	state := stateNotAttempted

	for state != stateDone {
		switch state {
		case stateNotAttempted:
			if len(chunks) == 0 {
				state = stateFallback
			} else {
				state = stateGrounded
			}

		case stateGrounded:
			rec.UsedRetrieval = true
			reply, err := s.grounded(ctx, question, history, chunks)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				s.opts.Logger.Warn("grounded answer failed, falling back", "error", err)
				state = stateFallback
				continue
			}
			if !*reply.Sufficient {
				s.opts.Logger.Debug("grounded answer judged insufficient")
				state = stateFallback
				continue
			}
			rec.Answer = strings.TrimSpace(reply.Answer)
			rec.Sufficient = true
			rec.Sources = citeSources(chunks, reply.Citations)
			state = stateDone

		case stateFallback:
			answer, err := s.general(ctx, question, history)
			if err != nil {
				return nil, err
			}
			rec.Answer = answer
			rec.Sufficient = false
			rec.Sources = nil
			state = stateDone
		}
	}
	return rec, nil
}

func (s *AnswerSynthesizer) grounded(
	ctx context.Context,
	question string,
	history []entities.Turn,
	chunks []entities.ContextChunk,
) (*groundedReply, error) {
	start := time.Now()
	defer func() { s.opts.Observer.ObserveStage(stateGrounded.String(), time.Since(start)) }()

	out, err := s.complete(ctx, buildGroundedPrompt(question, history, chunks))
	if err != nil {
		return nil, err
	}
	return parseGroundedReply(out)
}

func (s *AnswerSynthesizer) general(ctx context.Context, question string, history []entities.Turn) (string, error) {
	start := time.Now()
	defer func() { s.opts.Observer.ObserveStage(stateFallback.String(), time.Since(start)) }()

	out, err := s.complete(ctx, buildGeneralPrompt(question, history))
	if err != nil {
		return "", fmt.Errorf("general answer: %w", err)
	}
	answer := strings.TrimSpace(out)
	if answer == "" {
		return "", fmt.Errorf("general answer: %w", ports.ErrInvalidResponse)
	}
	return answer, nil
}

func (s *AnswerSynthesizer) complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	out, err := s.llm.Complete(callCtx, prompt, s.opts.MaxTokens, s.opts.Temperature)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%w: %v", ports.ErrCompletionTimeout, err)
		}
		return "", err
	}
	return out, nil
}

func buildGroundedPrompt(question string, history []entities.Turn, chunks []entities.ContextChunk) string {
	var sb strings.Builder
	sb.WriteString(groundedInstruction)
	sb.WriteString("\n\nContext:\n")
	for i, c := range chunks {
		fmt.Fprintf(&sb, "[%d] (source: %s)\n%s\n\n", i+1, c.Source, c.Text)
	}
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		writeHistory(&sb, history)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Question: %s\n\nJSON:", question)
	return sb.String()
}

func buildGeneralPrompt(question string, history []entities.Turn) string {
	var sb strings.Builder
	sb.WriteString(generalInstruction)
	sb.WriteString("\n\n")
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		writeHistory(&sb, history)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Question: %s\n\nAnswer:", question)
	return sb.String()
}

// parseGroundedReply extracts the JSON object from the model output.
// Code fences and surrounding prose are tolerated; a missing sufficiency
// field or empty answer is an invalid response.
func parseGroundedReply(out string) (*groundedReply, error) {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in grounded reply", ports.ErrInvalidResponse)
	}

	var reply groundedReply
	if err := json.Unmarshal([]byte(out[start:end+1]), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInvalidResponse, err)
	}
	if reply.Sufficient == nil {
		return nil, fmt.Errorf("%w: missing sufficient field", ports.ErrInvalidResponse)
	}
	if strings.TrimSpace(reply.Answer) == "" {
		return nil, fmt.Errorf("%w: empty answer", ports.ErrInvalidResponse)
	}
	return &reply, nil
}

// citeSources maps 1-based citation numbers to chunk sources, one per document.
// When no citation points at a passage every supplied passage is cited.
func citeSources(chunks []entities.ContextChunk, citations []int) []entities.Source {
	var picked []entities.ContextChunk
	for _, n := range citations {
		if n >= 1 && n <= len(chunks) {
			picked = append(picked, chunks[n-1])
		}
	}
	if len(picked) == 0 {
		picked = chunks
	}

	seen := make(map[string]struct{}, len(picked))
	sources := make([]entities.Source, 0, len(picked))
	for _, c := range picked {
		key := c.DocumentID
		if key == "" {
			key = c.Source
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		sources = append(sources, entities.Source{
			DocumentID: c.DocumentID,
			Label:      c.Source,
			Score:      c.Score,
		})
	}
	return sources
}
