package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"avatar-therapy-chat/internal/domain/ports/repository"
	"avatar-therapy-chat/internal/infra/metrics"
)

// RetentionWorker deletes message rows past the retention window.
type RetentionWorker struct {
	interval      time.Duration
	retentionDays int
	messages      repository.MessageRepository
	log           *zerolog.Logger
}

func NewRetentionWorker(interval time.Duration, retentionDays int, messages repository.MessageRepository, logger *zerolog.Logger) *RetentionWorker {
	l := logger.With().Str("component", "RetentionWorker").Logger()
	return &RetentionWorker{interval: interval, retentionDays: retentionDays, messages: messages, log: &l}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info().Int("retention_days", w.retentionDays).Msg("Starting retention worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping retention worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.messages.CleanupExpired(ctx, w.retentionDays)
			if err != nil {
				w.log.Error().Err(err).Msg("retention sweep error")
				continue
			}
			if n > 0 {
				metrics.IncMessagesPurged(n)
				w.log.Info().Int64("count", n).Msg("expired messages purged")
			}
		}
	}
}
