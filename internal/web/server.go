// Package web serves the dashboard view and its interactions over a local
// HTTP API.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/dashboard"
)

// Options are the optional collaborators of the API server.
type Options struct {
	// Refresh requests an immediate poll.
	Refresh func()

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Server is the local dashboard API.
type Server struct {
	addr       string
	board      *dashboard.Board
	opts       Options
	httpServer *http.Server
}

// NewServer creates a new API server.
func NewServer(host string, port int, board *dashboard.Board, opts Options) *Server {
	return &Server{
		addr:  fmt.Sprintf("%s:%d", host, port),
		board: board,
		opts:  opts,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/status/dismiss", s.handleDismiss)
	mux.HandleFunc("DELETE /api/notices/{id}", s.handleClearNotice)

	mux.HandleFunc("POST /api/relays/{id}/state", s.handleToggle)
	mux.HandleFunc("PUT /api/relays/{id}/name", s.handleRename)
	mux.HandleFunc("PUT /api/settings/system-name", s.handleSystemName)

	mux.HandleFunc("PATCH /api/relays/{id}/rules/{ruleId}", s.handleEditRule)
	mux.HandleFunc("POST /api/relays/{id}/rules/{ruleId}/delete", s.handleRequestDelete)
	mux.HandleFunc("POST /api/relays/{id}/rules/{ruleId}/cancel", s.handleCancelDelete)
	mux.HandleFunc("POST /api/relays/{id}/rules/{ruleId}/confirm", s.handleConfirmDelete)

	mux.HandleFunc("PUT /api/relays/{id}/draft", s.handleSetDraft)
	mux.HandleFunc("POST /api/relays/{id}/draft/submit", s.handleSubmitDraft)

	mux.HandleFunc("POST /api/clock/adjust", s.handleAdjustClock)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		if !s.board.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "waiting for first poll"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics)
	}

	return accessLog(mux)
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting dashboard API server")

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Dashboard API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
