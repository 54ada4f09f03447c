package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/config"
	"github.com/dokzlo13/relayboard/internal/dashboard"
	"github.com/dokzlo13/relayboard/internal/metrics"
	"github.com/dokzlo13/relayboard/internal/web"
)

// WebService wraps the dashboard API server.
type WebService struct {
	cfg    *config.Config
	server *web.Server
	done   chan struct{}
}

// NewWebService creates a new WebService.
func NewWebService(cfg *config.Config, board *dashboard.Board, polls *PollService, m *metrics.Metrics) *WebService {
	server := web.NewServer(cfg.HTTP.Host, cfg.HTTP.Port, board, web.Options{
		Refresh: polls.TriggerNow,
		Metrics: m.Handler(),
	})
	return &WebService{
		cfg:    cfg,
		server: server,
	}
}

// Server returns the API server.
func (s *WebService) Server() *web.Server {
	return s.server
}

// Start begins the API server if enabled.
func (s *WebService) Start(ctx context.Context) {
	if !s.cfg.HTTP.Enabled {
		log.Debug().Msg("Dashboard API server disabled")
		return
	}

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("Dashboard API server error")
		}
	}()
}

// Wait blocks until a started server has returned.
func (s *WebService) Wait() {
	if s.done != nil {
		<-s.done
	}
}
