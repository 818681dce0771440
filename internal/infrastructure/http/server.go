// Package http exposes the answer engine over a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/usecases"
	"github.com/0xcro3dile/hybridrag-go/internal/infrastructure/logging"
	"github.com/0xcro3dile/hybridrag-go/internal/infrastructure/metrics"
)

// ChatService answers questions within a session.
type ChatService interface {
	Handle(ctx context.Context, sessionID, question string, clientHistory []entities.Turn) (*entities.AnswerRecord, error)
	ClearSession(sessionID string)
}

// DocumentIngester adds and removes documents.
type DocumentIngester interface {
	Ingest(ctx context.Context, doc *entities.Document) error
	Delete(ctx context.Context, documentID string) error
}

// Searcher runs a plain similarity search.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]entities.ContextChunk, error)
}

// SessionCounter reports how many sessions are held.
type SessionCounter interface {
	Count() int
}

// Deps are the collaborators behind the API. Sessions and Metrics may be nil.
type Deps struct {
	Chat      ChatService
	Ingest    DocumentIngester
	Search    Searcher
	Documents ports.DocumentStore
	Sessions  SessionCounter
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Server is the HTTP front end for chat, documents and search.
type Server struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a server.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, logger: logger.With("component", "http")}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}

	r.Post("/api/chat", s.handleChat)
	r.Delete("/api/session/{id}", s.handleClearSession)
	r.Post("/api/search", s.handleSearch)
	r.Post("/api/feedback", s.handleFeedback)

	r.Route("/api/documents", func(r chi.Router) {
		r.Get("/", s.handleListDocuments)
		r.Post("/", s.handleCreateDocument)
		r.Get("/{id}", s.handleGetDocument)
		r.Delete("/{id}", s.handleDeleteDocument)
	})

	return r
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("graceful shutdown failed", "error", err)
		_ = server.Close()
		return err
	}
	return nil
}

type turnPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	SessionID   string        `json:"session_id"`
	Question    string        `json:"question"`
	ChatHistory []turnPayload `json:"chat_history"`
}

type sourcePayload struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

type chatResponse struct {
	SessionID     string          `json:"session_id"`
	Answer        string          `json:"answer"`
	Sources       []sourcePayload `json:"sources"`
	UsedRetrieval bool            `json:"used_retrieval"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		respondError(w, http.StatusBadRequest, "empty_question", "question is required")
		return
	}

	history := make([]entities.Turn, 0, len(req.ChatHistory))
	for _, t := range req.ChatHistory {
		history = append(history, entities.Turn{
			Role: entities.Role(strings.ToLower(strings.TrimSpace(t.Role))),
			Text: t.Content,
		})
	}

	rec, err := s.deps.Chat.Handle(r.Context(), strings.TrimSpace(req.SessionID), req.Question, history)
	if err != nil {
		switch {
		case errors.Is(err, usecases.ErrEmptyQuestion):
			respondError(w, http.StatusBadRequest, "empty_question", err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
		default:
			logging.FromContext(r.Context(), s.logger).Info("chat request aborted", "error", err)
			respondError(w, http.StatusServiceUnavailable, "aborted", "request was cancelled")
		}
		return
	}
	s.updateSessionGauge()

	resp := chatResponse{
		SessionID:     rec.SessionID,
		Answer:        rec.Answer,
		Sources:       make([]sourcePayload, 0, len(rec.Sources)),
		UsedRetrieval: rec.UsedRetrieval,
	}
	for _, src := range rec.Sources {
		resp.Sources = append(resp.Sources, sourcePayload{ID: src.DocumentID, Source: src.Label})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id != "" {
		s.deps.Chat.ClearSession(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResult struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, "empty_query", "query is required")
		return
	}

	chunks, err := s.deps.Search.Search(r.Context(), req.Query, req.MaxResults)
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Warn("search failed", "error", err)
		status := http.StatusServiceUnavailable
		if ports.IsTimeout(err) {
			status = http.StatusGatewayTimeout
		}
		respondError(w, status, "search_failed", err.Error())
		return
	}

	results := make([]searchResult, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, searchResult{
			ID:         c.ChunkID,
			DocumentID: c.DocumentID,
			Source:     c.Source,
			Text:       c.Text,
			Score:      c.Score,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

type feedbackRequest struct {
	Question string          `json:"question"`
	Answer   string          `json:"answer"`
	Feedback string          `json:"feedback"`
	Sources  []sourcePayload `json:"sources"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Feedback) == "" {
		respondError(w, http.StatusBadRequest, "empty_feedback", "feedback is required")
		return
	}

	rating := feedbackRating(req.Feedback)
	logging.FromContext(r.Context(), s.logger).Info("feedback received",
		"rating", rating,
		"feedback", req.Feedback,
		"question", req.Question,
		"answer", req.Answer,
		"sources", len(req.Sources),
	)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveFeedback(rating)
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

type documentRequest struct {
	Content  string            `json:"content"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata"`
}

type documentPayload struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Path      string            `json:"path,omitempty"`
	Content   string            `json:"content,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func toDocumentPayload(doc entities.Document, withContent bool) documentPayload {
	p := documentPayload{
		ID:        doc.ID,
		Source:    doc.Source,
		Path:      doc.Path,
		Metadata:  doc.Metadata,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if withContent {
		p.Content = doc.Content
	}
	return p
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "empty_content", "content is required")
		return
	}

	doc := &entities.Document{
		Source:   strings.TrimSpace(req.Source),
		Content:  req.Content,
		Metadata: req.Metadata,
	}
	if err := s.deps.Ingest.Ingest(r.Context(), doc); err != nil {
		logging.FromContext(r.Context(), s.logger).Error("document ingest failed", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, ports.ErrEmbeddingUnavailable) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, "ingest_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": doc.ID})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Documents.ListDocuments(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	out := make([]documentPayload, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentPayload(d, false))
	}
	respondJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Documents.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ports.ErrDocumentNotFound) {
		respondError(w, http.StatusNotFound, "document_not_found", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "get_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toDocumentPayload(*doc, true))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Ingest.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ports.ErrDocumentNotFound) {
		respondError(w, http.StatusNotFound, "document_not_found", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "delete_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	hasDocs, err := s.deps.Documents.HasAny(r.Context())
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "documents": hasDocs})
}

func (s *Server) updateSessionGauge() {
	if s.deps.Metrics != nil && s.deps.Sessions != nil {
		s.deps.Metrics.SetActiveSessions(s.deps.Sessions.Count())
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		logging.FromContext(ctx, s.logger).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start),
		)
	})
}

// feedbackRating folds free-form feedback into a bounded label set.
func feedbackRating(feedback string) string {
	switch strings.ToLower(strings.TrimSpace(feedback)) {
	case "positive", "good", "up", "thumbs_up", "helpful", "yes", "+1":
		return "positive"
	case "negative", "bad", "down", "thumbs_down", "unhelpful", "no", "-1":
		return "negative"
	}
	return "other"
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
