package usecases

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// FallbackAnswer is returned when no answer could be produced.
const FallbackAnswer = "I'm sorry, I couldn't generate an answer right now. Please try again later."

// Answer outcomes reported to the observer.
const (
	OutcomeGrounded = "grounded"
	OutcomeFallback = "fallback"
	OutcomeGeneral  = "general"
	OutcomeFailed   = "failed"
)

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question is empty")

// ResponseAssembler coordinates one chat request from routing to memory commit.
type ResponseAssembler struct {
	router      *QueryRouter
	retriever   *RetrievalOrchestrator
	synthesizer *AnswerSynthesizer
	sessions    ports.SessionStore
	documents   ports.DocumentStore
	logger      *slog.Logger
	observer    ports.Observer

	// NewSessionID generates ids for requests that carry none.
	NewSessionID func() string

	// DocumentCheckTimeout bounds the HasAny call made before routing.
	DocumentCheckTimeout time.Duration
}

// NewResponseAssembler creates an assembler with injected collaborators.
func NewResponseAssembler(
	router *QueryRouter,
	retriever *RetrievalOrchestrator,
	synthesizer *AnswerSynthesizer,
	sessions ports.SessionStore,
	documents ports.DocumentStore,
	logger *slog.Logger,
	observer ports.Observer,
) *ResponseAssembler {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = ports.NopObserver{}
	}
	return &ResponseAssembler{
		router:       router,
		retriever:    retriever,
		synthesizer:  synthesizer,
		sessions:     sessions,
		documents:    documents,
		logger:       logger,
		observer:     observer,
		NewSessionID: uuid.NewString,

		DocumentCheckTimeout: documentCheckTimeout(retriever),
	}
}

func documentCheckTimeout(retriever *RetrievalOrchestrator) time.Duration {
	if retriever == nil {
		return 10 * time.Second
	}
	return retriever.opts.SearchTimeout
}

// Handle answers question within the session and commits the exchange.
// Memory is only written after a successful synthesis. Synthesis failures
// yield FallbackAnswer with a nil error; a cancelled ctx is returned as error.
func (a *ResponseAssembler) Handle(
	ctx context.Context,
	sessionID, question string,
	clientHistory []entities.Turn,
) (*entities.AnswerRecord, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if sessionID == "" {
		sessionID = a.NewSessionID()
	}
	logger := a.logger.With("session_id", sessionID)

	if len(clientHistory) > 0 && !a.sessions.Exists(sessionID) {
		if seed := sanitizeHistory(clientHistory); len(seed) > 0 && a.sessions.Seed(sessionID, seed) {
			logger.Info("session seeded from client history", "turns", len(seed))
		}
	}
	history := a.sessions.Get(sessionID)

	checkCtx, cancel := context.WithTimeout(ctx, a.DocumentCheckTimeout)
	hasDocs, err := a.documents.HasAny(checkCtx)
	cancel()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		logger.Warn("document check failed, attempting retrieval", "error", err)
		hasDocs = true
	}

	var chunks []entities.ContextChunk
	if a.router.ShouldRetrieve(question, hasDocs) {
		chunks = a.retriever.Retrieve(ctx, question, history)
	}

	rec, err := a.synthesizer.Synthesize(ctx, question, history, chunks)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("request cancelled before commit", "error", ctx.Err())
			return nil, ctx.Err()
		}
		logger.Error("answer synthesis failed", "error", err)
		a.observer.ObserveAnswer(OutcomeFailed)
		return &entities.AnswerRecord{
			SessionID: sessionID,
			Answer:    FallbackAnswer,
		}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	a.sessions.Append(sessionID,
		entities.Turn{Role: entities.RoleUser, Text: question, CreatedAt: now},
		entities.Turn{Role: entities.RoleAssistant, Text: rec.Answer, Sources: rec.Sources, CreatedAt: now},
	)

	rec.SessionID = sessionID
	a.observer.ObserveAnswer(outcomeOf(rec))
	logger.Info("answer produced",
		"used_retrieval", rec.UsedRetrieval,
		"sufficient", rec.Sufficient,
		"sources", len(rec.Sources),
	)
	return rec, nil
}

// ClearSession drops the stored history for id. Unknown ids are fine.
func (a *ResponseAssembler) ClearSession(sessionID string) {
	a.sessions.Clear(sessionID)
}

func outcomeOf(rec *entities.AnswerRecord) string {
	switch {
	case rec.Sufficient:
		return OutcomeGrounded
	case rec.UsedRetrieval:
		return OutcomeFallback
	default:
		return OutcomeGeneral
	}
}

// sanitizeHistory keeps well-formed turns only.
func sanitizeHistory(turns []entities.Turn) []entities.Turn {
	out := make([]entities.Turn, 0, len(turns))
	for _, t := range turns {
		if !t.Role.Valid() || strings.TrimSpace(t.Text) == "" {
			continue
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now()
		}
		t.Sources = nil
		out = append(out, t)
	}
	return out
}
