// Package http implements the read-only REST API of the bot: leaderboards,
// rank cards, health checks and the Prometheus endpoint.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/realm-weaver/weaver-bot/internal/application/query"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

const headerRequestID = "X-Request-ID"

// Config holds listener settings. Zero Addr and ShutdownTimeout fall back
// to DefaultConfig.
type Config struct {
	Addr string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig listens on :8080. The API only serves small JSON documents,
// so every timeout is short.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     90 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Dependencies are the handlers and probes the routes call. Nil query
// handlers make their routes answer 501.
type Dependencies struct {
	GetLeaderboardHandler *query.GetLeaderboardHandler
	GetRankHandler        *query.GetRankHandler

	// Metrics is mounted on /metrics when set.
	Metrics http.Handler

	// Checks are run by /healthz, keyed by name.
	Checks map[string]HealthCheck

	Logger *logger.Logger
}

// Server serves the API until its context ends.
type Server struct {
	cfg   Config
	deps  Dependencies
	log   *logger.Logger
	mux   *http.ServeMux
	srv   *http.Server
	since atomic.Int64 // unix nanos of Run, 0 before
}

// NewServer registers the routes. Nothing listens until Run.
func NewServer(cfg Config, deps Dependencies) *Server {
	d := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = d.Addr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = d.ShutdownTimeout
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.With(logger.Component("http")),
		mux:  http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/guilds/{guild}/leaderboard", s.handleGetLeaderboard)
	s.mux.HandleFunc("GET /api/v1/guilds/{guild}/members/{user}/rank", s.handleGetRank)
	if deps.Metrics != nil {
		s.mux.Handle("GET /metrics", deps.Metrics)
	}

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the mux wrapped in recovery, access logging and request
// tagging, outermost first.
func (s *Server) Handler() http.Handler {
	return s.recoverPanics(s.logAccess(s.tagRequest(s.mux)))
}

// Run listens until ctx is cancelled, then drains in-flight requests for at
// most ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	s.since.Store(time.Now().UnixNano())

	served := make(chan error, 1)
	go func() {
		s.log.Info("http listening", logger.String("address", s.cfg.Addr))
		err := s.srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		served <- err
	}()

	select {
	case err := <-served:
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	s.log.Info("http draining", logger.Duration("timeout", s.cfg.ShutdownTimeout))
	if err := s.srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-served
}

// Uptime is the time since Run started, or zero before that.
func (s *Server) Uptime() time.Duration {
	start := s.since.Load()
	if start == 0 {
		return 0
	}
	return time.Since(time.Unix(0, start))
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

type requestIDKey struct{}

// tagRequest reuses an incoming X-Request-ID or mints one, and puts a
// request-scoped logger on the context.
func (s *Server) tagRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = logger.WithContext(ctx, s.log.WithRequestID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) logAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(sr, r)

		s.log.Debug("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", sr.code()),
			logger.Latency(time.Since(start)),
			logger.String("request_id", w.Header().Get(headerRequestID)),
		)
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.log.Error("http handler panicked",
				logger.Any("panic", rec),
				logger.String("path", r.URL.Path),
				logger.String("stack", string(debug.Stack())),
			)
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "Something went wrong")
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) code() int {
	if sr.status == 0 {
		return http.StatusOK
	}
	return sr.status
}

func getRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSES
// ══════════════════════════════════════════════════════════════════════════════

// envelope wraps every JSON body. Data is set on success, Error otherwise.
type envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *apiError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func send(w http.ResponseWriter, status int, body envelope) {
	body.Timestamp = time.Now().UTC()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	send(w, status, envelope{
		Success:   status < 300,
		Data:      data,
		RequestID: getRequestID(r.Context()),
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	send(w, status, envelope{
		Error:     &apiError{Code: code, Message: message},
		RequestID: w.Header().Get(headerRequestID),
	})
}
