package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/config"
)

// App owns the daemon: the wired services and the context that keeps them
// running until a signal or Stop.
type App struct {
	cfg      *config.Config
	services *Services

	runCtx   context.Context
	stopRun  context.CancelFunc
	stopOnce sync.Once
	stopErr  error
}

// New wires every service from cfg. Nothing talks to the device until Start.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, services: services}, nil
}

// Services returns the wired services.
func (a *App) Services() *Services {
	return a.services
}

// Start restores the last view and begins polling and serving. A failed start
// leaves the run context cancelled.
func (a *App) Start(ctx context.Context) error {
	a.runCtx, a.stopRun = context.WithCancel(ctx)
	if err := a.services.Start(a.runCtx); err != nil {
		a.stopRun()
		return err
	}
	log.Info().Str("device", a.cfg.Device.BaseURL).Str("schema", a.cfg.Device.Schema).Msg("Dashboard running")
	return nil
}

// Stop cancels the run context, sends pending edits and releases the device,
// the broker and the database. Later calls return the first result.
func (a *App) Stop() error {
	a.stopOnce.Do(func() {
		log.Info().Msg("Stopping dashboard")
		if a.stopRun != nil {
			a.stopRun()
		}
		a.stopErr = a.services.Stop()
	})
	return a.stopErr
}

// Wait returns once the run context is done.
func (a *App) Wait() {
	if a.runCtx == nil {
		return
	}
	<-a.runCtx.Done()
}

// ClearState forgets the persisted view. The next start shows an empty board
// until the first poll succeeds.
func (a *App) ClearState() error {
	return a.services.ClearState()
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(signals)
		log.Warn().Stringer("signal", <-signals).Msg("Signal received, stopping")
		cancel()
	}()
	return ctx
}
