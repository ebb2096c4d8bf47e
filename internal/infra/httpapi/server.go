// Package httpapi serves the dashboard surface: tracker records, the latest
// raw report, device state, manual controls and session visibility.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"smart-tracker/internal/application"
	"smart-tracker/internal/domain"
	"smart-tracker/internal/metrics"
)

const maxBodyBytes = 1 << 20

// SessionController is the part of the session the HTTP surface drives.
type SessionController interface {
	Snapshot() domain.Snapshot
	Status() application.SessionStatus
	Control(ctx context.Context, c domain.Control) (domain.ControlResult, error)
	SetVisible(ctx context.Context, visible bool) error
}

type Config struct {
	Addr               string
	RateLimitPerMinute int
	AccessLog          io.Writer
}

type Server struct {
	cfg     Config
	records application.RecordStore
	latest  application.LatestCache
	session SessionController
	limiter *RateLimiter
	logger  *slog.Logger
	now     func() time.Time
	handler http.Handler

	mu     sync.Mutex
	server *http.Server
}

func NewServer(
	cfg Config,
	records application.RecordStore,
	latest application.LatestCache,
	session SessionController,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:     cfg,
		records: records,
		latest:  latest,
		session: session,
		limiter: NewRateLimiter(cfg.RateLimitPerMinute, time.Minute),
		logger:  logger,
		now:     time.Now,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	limited := s.limiter.Middleware

	r.Handle("/api/tracker", limited(http.HandlerFunc(s.handlePostTracker))).Methods(http.MethodPost)
	r.HandleFunc("/api/tracker", s.handleListTracker).Methods(http.MethodGet)
	r.HandleFunc("/api/tracker", s.handleOptions).Methods(http.MethodOptions)

	r.HandleFunc("/api/latest", s.handleLatest).Methods(http.MethodGet)
	r.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	r.Handle("/api/controls/{control}", limited(http.HandlerFunc(s.handleControl))).Methods(http.MethodPost)
	r.HandleFunc("/api/controls/{control}", s.handleOptions).Methods(http.MethodOptions)
	r.Handle("/api/session/visibility", limited(http.HandlerFunc(s.handleVisibility))).Methods(http.MethodPost)
	r.HandleFunc("/api/session/visibility", s.handleOptions).Methods(http.MethodOptions)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	var h http.Handler = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.IgnoreOptions(),
	)(r)

	if s.cfg.AccessLog != nil {
		h = handlers.LoggingHandler(s.cfg.AccessLog, h)
	}
	return h
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return nil
	}

	s.server = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srv := s.server
	go func() {
		s.logger.Info("HTTP API starting", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := s.server.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}
	s.server = nil
	return nil
}
