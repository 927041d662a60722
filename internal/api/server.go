// Package api exposes the HTTP facade: synchronous content operations,
// semantic search, and the enqueue-and-poll job surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ai-content-pipeline/internal/ai"
	"ai-content-pipeline/internal/content"
	"ai-content-pipeline/internal/models"
	"ai-content-pipeline/internal/queue"
	"ai-content-pipeline/internal/ratelimit"
	"ai-content-pipeline/internal/search"
	"ai-content-pipeline/internal/store"
	"ai-content-pipeline/internal/telemetry"
)

// Search limit bounds owned by this request-validation layer.
const (
	minSearchLimit = 1
	maxSearchLimit = 50
)

// JobStore is the slice of the Postgres store the facade needs.
type JobStore interface {
	CreateJob(ctx context.Context, queueName, jobName string, payload json.RawMessage) (models.Job, error)
	GetJobInQueue(ctx context.Context, queueName, id string) (models.Job, error)
	MarkFailed(ctx context.Context, id string, reason string) error
}

// Enqueuer pushes created jobs onto their queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName, jobID string) error
}

// Server wires the HTTP handlers.
type Server struct {
	content  *content.Service
	searcher *search.Searcher
	store    JobStore
	enqueue  Enqueuer
	limiter  *ratelimit.TokenBucket
	logger   *slog.Logger
}

// New constructs the facade. limiter may be nil to disable rate limiting.
func New(svc *content.Service, searcher *search.Searcher, st JobStore, q Enqueuer, limiter *ratelimit.TokenBucket) *Server {
	return &Server{
		content:  svc,
		searcher: searcher,
		store:    st,
		enqueue:  q,
		limiter:  limiter,
		logger:   slog.Default().With("component", "api"),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimited)
		r.Post("/generate", s.handleGenerate)
		r.Post("/generate/stream", s.handleGenerateStream)
		r.Post("/summarize", s.handleSummarize)
		r.Post("/seo", s.handleSEO)
		r.Post("/tags", s.handleTags)
		r.Post("/queues/{queue}/jobs", s.handleEnqueue)
	})

	r.Post("/search", s.handleSearch)
	r.Get("/queues/{queue}/jobs/{id}", s.handleJobStatus)
	return r
}

type generateRequest struct {
	Topic   string `json:"topic"`
	Outline string `json:"outline"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Topic == "" {
		http.Error(w, "topic is required", http.StatusBadRequest)
		return
	}
	article, err := s.content.GenerateArticle(r.Context(), req.Topic, req.Outline)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": article})
}

// handleGenerateStream forwards fragments to the client as the provider
// produces them, flushing after each one.
func (s *Server) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Topic == "" {
		http.Error(w, "topic is required", http.StatusBadRequest)
		return
	}

	stream, err := s.content.GenerateArticleStream(r.Context(), req.Topic, req.Outline)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	flusher, _ := w.(http.Flusher)

	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			// Headers are already sent; the truncated body plus the closed
			// connection is the only error signal left.
			s.logger.Warn("stream aborted mid-flight", "err", err)
			return
		}
		if _, err := io.WriteString(w, fragment); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

type textRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	summary, err := s.content.Summarize(r.Context(), req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (s *Server) handleSEO(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.content.GenerateSEO(r.Context(), req.Content))
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	tags, err := s.content.GenerateTags(r.Context(), req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tags": tags})
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	if req.Limit == 0 {
		req.Limit = search.DefaultLimit
	}
	if req.Limit < minSearchLimit || req.Limit > maxSearchLimit {
		http.Error(w, "limit must be between 1 and 50", http.StatusBadRequest)
		return
	}

	matches, err := s.searcher.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": matches})
}

type enqueueRequest struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	queueName := chi.URLParam(r, "queue")
	if !models.KnownQueue(queueName) {
		http.Error(w, "unknown queue", http.StatusNotFound)
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !jobAllowedInQueue(queueName, req.Name) {
		http.Error(w, "job name not accepted by this queue", http.StatusBadRequest)
		return
	}
	if req.Payload == nil {
		req.Payload = json.RawMessage("{}")
	}
	if err := models.ValidatePayload(req.Name, req.Payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := s.store.CreateJob(r.Context(), queueName, req.Name, req.Payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.enqueue.Enqueue(r.Context(), queueName, job.ID); err != nil {
		_ = s.store.MarkFailed(r.Context(), job.ID, "enqueue failed: "+err.Error())
		http.Error(w, "enqueue failed", http.StatusInternalServerError)
		return
	}
	telemetry.EnqueueCounter.Inc()

	writeJSON(w, http.StatusAccepted, job)
}

// handleJobStatus is an idempotent read; it never mutates the job.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	queueName := chi.URLParam(r, "queue")
	id := chi.URLParam(r, "id")

	job, err := s.store.GetJobInQueue(r.Context(), queueName, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job.StatusView())
}

func jobAllowedInQueue(queueName, jobName string) bool {
	for _, name := range models.JobsForQueue(queueName) {
		if name == jobName {
			return true
		}
	}
	return false
}

// rateLimited guards AI-backed endpoints per client identity.
func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		allowed, _, err := s.limiter.Allow(r.Context(), "rl:"+clientKey(r))
		if err != nil {
			// The limiter failing open beats taking the whole API down with it.
			s.logger.Error("rate limiter unavailable", "err", err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if v := r.Header.Get("X-Client-ID"); v != "" {
		return v
	}
	return r.RemoteAddr
}

// writeError maps domain errors to HTTP statuses. Provider failures become
// 502 without leaking the raw upstream payload.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var perr *ai.ProviderError
	switch {
	case errors.As(err, &perr):
		s.logger.Error("provider failure", "provider", perr.Provider, "status", perr.Status, "msg", perr.Message)
		http.Error(w, "upstream AI provider failed", http.StatusBadGateway)
	case errors.Is(err, models.ErrJobNotFound), errors.Is(err, models.ErrUnknownQueue):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrInvalidPayload), errors.Is(err, models.ErrDimensionMismatch):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("internal error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// Ensure the concrete queue satisfies the facade contract.
var _ Enqueuer = (*queue.RedisQueue)(nil)
var _ JobStore = (*store.Store)(nil)
