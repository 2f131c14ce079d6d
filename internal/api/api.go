// Package api provides the HTTP server for BotRouter.
//
// It exposes the chat endpoint backed by the decision engine, plus welcome,
// statistics, cache invalidation and health endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/BotRouter/internal/decision"
	"github.com/BTreeMap/BotRouter/internal/models"
)

// Default server settings.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultHealthTimeout   = 5 * time.Second
	// MaxRequestBodyBytes bounds decoded request bodies.
	MaxRequestBodyBytes = 1 << 20
)

// Engine answers chat requests.
type Engine interface {
	Respond(ctx context.Context, req models.ChatRequest) models.ChatResponse
	IsReady(ctx context.Context) bool
	Statistics() decision.Statistics
	ResetStatistics()
}

// WelcomeSource returns the welcome message for a user.
type WelcomeSource interface {
	WelcomeMessage(ctx context.Context, userID int64) string
}

// Pinger checks the backing store.
type Pinger interface {
	Ping() error
}

// CacheClearer drops one named cache.
type CacheClearer struct {
	Name  string
	Clear func(ctx context.Context)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr            string
	ShutdownTimeout time.Duration
	Clearers        []CacheClearer
}

// Option defines a functional option for configuring the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ShutdownTimeout = d }
}

// WithCacheClearer registers a cache dropped by POST /api/cache/clear.
func WithCacheClearer(name string, fn func(ctx context.Context)) Option {
	return func(o *Opts) { o.Clearers = append(o.Clearers, CacheClearer{Name: name, Clear: fn}) }
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	engine  Engine
	welcome WelcomeSource
	st      Pinger
	opts    Opts
	now     func() time.Time
	handler http.Handler
}

// NewServer creates a Server. welcome and st may be nil.
func NewServer(engine Engine, welcome WelcomeSource, st Pinger, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, ShutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{engine: engine, welcome: welcome, st: st, opts: cfg, now: time.Now}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/message", s.messageHandler)
	mux.HandleFunc("/api/welcome", s.welcomeHandler)
	mux.HandleFunc("/api/stats", s.statsHandler)
	mux.HandleFunc("/api/stats/reset", s.resetStatsHandler)
	mux.HandleFunc("/api/cache/clear", s.clearCacheHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: BotRouter API listening", "addr", s.opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve HTTP: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down", "timeout", s.opts.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}
