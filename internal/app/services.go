package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/config"
	"github.com/dokzlo13/relayboard/internal/dashboard"
	"github.com/dokzlo13/relayboard/internal/db"
	"github.com/dokzlo13/relayboard/internal/eventbus"
	"github.com/dokzlo13/relayboard/internal/ledger"
	"github.com/dokzlo13/relayboard/internal/metrics"
	"github.com/dokzlo13/relayboard/internal/remote"
	"github.com/dokzlo13/relayboard/internal/storage"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB        *db.DB
	Ledger    *ledger.Ledger
	Store     *storage.Store
	Snapshots *storage.Snapshots
	Bus       *eventbus.Bus
	Metrics   *metrics.Metrics

	// Device and the rendered board
	Client *remote.Client
	Board  *dashboard.Board

	// Background services
	Poll      *PollService
	Retention *RetentionService
	Mirror    *MirrorService
	Web       *WebService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Ledger = ledger.New(database.DB)
	s.Store = storage.NewStore(database.DB)
	s.Snapshots = storage.NewSnapshots(s.Store)
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	// Prometheus is always on; statsd only when an address is configured
	s.Metrics = metrics.New(cfg.Metrics.Namespace)
	sink, err := metrics.NewStatsd(cfg.Metrics.StatsdAddr, cfg.Metrics.Namespace, cfg.Metrics.Tags)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("statsd: %w", err)
	}
	if sink != nil {
		s.Metrics.SetSink(sink)
	}

	s.Client, err = remote.NewClient(remote.Config{
		BaseURL:      cfg.Device.BaseURL,
		Timeout:      cfg.Device.Timeout.Duration(),
		Schema:       cfg.Device.Schema,
		RateLimitRPS: cfg.Device.RateLimitRPS,
		Recorder:     s.Ledger,
		Observer:     s.Metrics,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Board = dashboard.New(s.Client, dashboard.Options{
		Debounce:  cfg.Edit.Debounce.Duration(),
		Bus:       s.Bus,
		Snapshots: s.Snapshots,
		Observer:  s.Metrics,
	})

	s.Poll = NewPollService(cfg, s.Board, s.Metrics)
	s.Retention = NewRetentionService(cfg, s.Ledger)
	s.Mirror = NewMirrorService(cfg, s.Bus)
	s.Web = NewWebService(cfg, s.Board, s.Poll, s.Metrics)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	// Render the last known view before the first poll lands
	if err := s.Board.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to restore last known view")
	}

	// The mirror subscribes before polls start so no relay event is missed
	s.Mirror.Start(ctx)

	if err := s.Poll.Start(ctx); err != nil {
		return err
	}

	go func() {
		if err := s.Board.LoadSettings(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to load device settings")
		}
	}()

	s.Retention.Start(ctx)
	s.Web.Start(ctx)

	return nil
}

// ClearState drops every persisted snapshot.
func (s *Services) ClearState() error {
	return s.Store.Clear(context.Background(), "")
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	if s.Web != nil {
		s.Web.Wait()
	}
	if s.Poll != nil {
		s.Poll.Stop()
	}
	if s.Board != nil {
		// Pending edits and renames are sent before the device goes away
		s.Board.Close()
	}
	if s.Mirror != nil {
		s.Mirror.Stop("shutdown")
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.Metrics != nil {
		if err := s.Metrics.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close metrics sink")
		}
	}
	if s.Client != nil {
		s.Client.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
