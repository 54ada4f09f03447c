package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/config"
	"github.com/dokzlo13/relayboard/internal/dashboard"
	"github.com/dokzlo13/relayboard/internal/metrics"
	"github.com/dokzlo13/relayboard/internal/poll"
)

// Poller names, also used as metric labels.
const (
	RelaysPoller = "relays"
	ClockPoller  = "clock"
)

// PollService drives the board refresh and, when configured, the device clock.
type PollService struct {
	Relays *poll.Scheduler
	Clock  *poll.Scheduler // nil when clock polling is disabled
}

// NewPollService creates the schedulers. Nothing runs until Start.
func NewPollService(cfg *config.Config, board *dashboard.Board, m *metrics.Metrics) *PollService {
	backoff := poll.BackoffConfig{
		Enabled:    cfg.Poll.GetBackoffEnabled(),
		MinBackoff: cfg.Poll.MinBackoff.Duration(),
		MaxBackoff: cfg.Poll.MaxBackoff.Duration(),
		Multiplier: cfg.Poll.Multiplier,
	}

	s := &PollService{}
	s.Relays = poll.New(RelaysPoller, poll.Config{Interval: cfg.Poll.Interval.Duration(), Backoff: backoff}, board.Refresh)
	s.Relays.OnResult(func(r poll.Result) { m.ObservePoll(RelaysPoller, r) })

	if cfg.Poll.ClockInterval > 0 {
		s.Clock = poll.New(ClockPoller, poll.Config{Interval: cfg.Poll.ClockInterval.Duration(), Backoff: backoff}, board.RefreshClock)
		s.Clock.OnResult(func(r poll.Result) { m.ObservePoll(ClockPoller, r) })
	}
	return s
}

// Start launches the schedulers. The first relay poll runs immediately.
func (s *PollService) Start(ctx context.Context) error {
	if err := s.Relays.Start(ctx); err != nil {
		return err
	}
	if s.Clock == nil {
		log.Debug().Msg("Clock polling disabled")
		return nil
	}
	if err := s.Clock.Start(ctx); err != nil {
		s.Relays.Stop()
		return err
	}
	return nil
}

// TriggerNow requests an immediate relay poll.
func (s *PollService) TriggerNow() {
	s.Relays.TriggerNow()
}

// Stop halts the schedulers and waits for in-flight polls.
func (s *PollService) Stop() {
	s.Relays.Stop()
	if s.Clock != nil {
		s.Clock.Stop()
	}
}
