package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/config"
	"github.com/dokzlo13/relayboard/internal/ledger"
)

// RetentionService periodically trims the mutation ledger.
type RetentionService struct {
	ledger    *ledger.Ledger
	interval  time.Duration
	retention time.Duration
}

// NewRetentionService creates a new RetentionService.
func NewRetentionService(cfg *config.Config, l *ledger.Ledger) *RetentionService {
	return &RetentionService{
		ledger:    l,
		interval:  cfg.Ledger.CleanupInterval.Duration(),
		retention: cfg.Ledger.Retention.Duration(),
	}
}

// Start runs the cleanup loop until ctx is done.
func (s *RetentionService) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *RetentionService) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup(ctx)
		}
	}
}

// Cleanup deletes ledger entries older than the retention period.
func (s *RetentionService) Cleanup(ctx context.Context) {
	deleted, err := s.ledger.DeleteOlderThan(ctx, s.retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", s.retention).Msg("Cleaned up old ledger entries")
	}
}
