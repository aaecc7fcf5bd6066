// Package server exposes the orchestrator to a UI over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/abhisek/gquiz/internal/balance"
	"github.com/abhisek/gquiz/internal/logging"
	"github.com/abhisek/gquiz/internal/orchestrator"
	"github.com/abhisek/gquiz/internal/quota"
	"github.com/abhisek/gquiz/internal/selection"
)

// Error codes returned in ErrorResponse.Error.
const (
	ErrCodeInvalidRequest    = "invalid_request"
	ErrCodeOnlineUnavailable = "online_unavailable"
	ErrCodeNotServed         = "not_served"
	ErrCodeSessionNotFound   = "session_not_found"
	ErrCodeBankEmpty         = "bank_empty"
	ErrCodeCanceled          = "canceled"
	ErrCodeInternal          = "internal_error"
)

const defaultMaxSessions = 1024

// Orchestrator is the serving side the handlers drive.
type Orchestrator interface {
	NewSession(rng *rand.Rand, mode orchestrator.Mode) (*orchestrator.Session, error)
	Next(ctx context.Context, s *orchestrator.Session) (orchestrator.Served, error)
	Answer(ctx context.Context, s *orchestrator.Session, questionID string, choice int) (orchestrator.Graded, error)
	Quota() quota.Status
}

// Options configures a Server.
type Options struct {
	// Bank backs the session-less chapter view.
	Bank balance.Corpus

	// Gatherer is served on /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer

	// MaxSessions caps live sessions; the oldest is dropped first.
	MaxSessions int

	Logger *zerolog.Logger
}

// Server holds the live sessions and the handlers over them.
type Server struct {
	orch        Orchestrator
	bank        balance.Corpus
	gatherer    prometheus.Gatherer
	maxSessions int
	logger      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*orchestrator.Session
}

// New creates a Server.
func New(orch Orchestrator, opts Options) *Server {
	s := &Server{
		orch:        orch,
		bank:        opts.Bank,
		gatherer:    opts.Gatherer,
		maxSessions: opts.MaxSessions,
		logger:      zerolog.Nop(),
		sessions:    make(map[string]*orchestrator.Session),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.maxSessions <= 0 {
		s.maxSessions = defaultMaxSessions
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("component", "server").Logger()
	}
	return s
}

// NewHTTPServer wires the API routes, health and metrics.
func NewHTTPServer(addr string, s *Server) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /v1/sessions", s.createSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.endSession)
	mux.HandleFunc("GET /v1/sessions/{id}/next", s.next)
	mux.HandleFunc("POST /v1/sessions/{id}/answers", s.answer)
	mux.HandleFunc("GET /v1/quota", s.quota)
	mux.HandleFunc("GET /v1/chapters", s.chapters)

	return s.withLogging(mux)
}

// sessionRequest is the optional body of POST /v1/sessions.
type sessionRequest struct {
	Mode string `json:"mode"`
}

type sessionResponse struct {
	ID        string            `json:"id"`
	Mode      orchestrator.Mode `json:"mode"`
	CreatedAt time.Time         `json:"createdAt"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "malformed session request")
		return
	}
	mode, err := orchestrator.ParseMode(req.Mode)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	sess, err := s.orch.NewSession(nil, mode)
	if errors.Is(err, orchestrator.ErrOnlineUnavailable) {
		respondError(w, http.StatusServiceUnavailable, ErrCodeOnlineUnavailable, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	s.mu.Lock()
	if len(s.sessions) >= s.maxSessions {
		s.evictOldestLocked()
	}
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	logger := logging.FromContext(r.Context())
	logger.Info().Str("session", sess.ID).Str("mode", string(sess.Mode)).Msg("session started")
	respondJSON(w, http.StatusCreated, sessionResponse{ID: sess.ID, Mode: sess.Mode, CreatedAt: sess.CreatedAt})
}

func (s *Server) evictOldestLocked() {
	var oldest *orchestrator.Session
	for _, sess := range s.sessions {
		if oldest == nil || sess.CreatedAt.Before(oldest.CreatedAt) {
			oldest = sess
		}
	}
	if oldest != nil {
		delete(s.sessions, oldest.ID)
		s.logger.Debug().Str("session", oldest.ID).Msg("session evicted")
	}
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		respondError(w, http.StatusNotFound, ErrCodeSessionNotFound, "no such session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) session(id string) (*orchestrator.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) next(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		respondError(w, http.StatusNotFound, ErrCodeSessionNotFound, "no such session")
		return
	}

	served, err := s.orch.Next(r.Context(), sess)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, served)
	case errors.Is(err, selection.ErrBankExhausted):
		respondError(w, http.StatusServiceUnavailable, ErrCodeBankEmpty, "the question bank is empty")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, ErrCodeCanceled, "request ended before a question was ready")
	default:
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("next question failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "could not serve a question")
	}
}

type answerRequest struct {
	QuestionID string `json:"questionId"`

	// Choice is the 0-based index of the chosen answer.
	Choice *int `json:"choice"`
}

type answerResponse struct {
	orchestrator.Graded
	Score orchestrator.Score `json:"score"`
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r.PathValue("id"))
	if !ok {
		respondError(w, http.StatusNotFound, ErrCodeSessionNotFound, "no such session")
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID == "" || req.Choice == nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "questionId and choice are required")
		return
	}

	g, err := s.orch.Answer(r.Context(), sess, req.QuestionID, *req.Choice)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, answerResponse{Graded: g, Score: sess.Score()})
	case errors.Is(err, orchestrator.ErrNotServed):
		respondError(w, http.StatusConflict, ErrCodeNotServed, err.Error())
	case errors.Is(err, orchestrator.ErrInvalidChoice):
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	default:
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("answer failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "could not record the answer")
	}
}

func (s *Server) quota(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.orch.Quota())
}

// chapters returns the session's chapter weights when ?session= names a
// live session, otherwise bank-only weights sorted by chapter.
func (s *Server) chapters(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("session"); id != "" {
		sess, ok := s.session(id)
		if !ok {
			respondError(w, http.StatusNotFound, ErrCodeSessionNotFound, "no such session")
			return
		}
		respondJSON(w, http.StatusOK, sess.Chapters())
		return
	}

	stats := []balance.ChapterStat{}
	if s.bank != nil {
		stats = balance.New(s.bank).Ranked()
		sort.Slice(stats, func(i, j int) bool { return stats[i].Chapter < stats[j].Chapter })
	}
	respondJSON(w, http.StatusOK, stats)
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: code, Message: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := s.logger.With().
			Str("request_id", uuid.NewString()).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(logging.IntoContext(r.Context(), logger)))

		logger.Debug().
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}
