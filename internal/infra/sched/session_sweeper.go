package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"avatar-therapy-chat/internal/domain/model"
	"avatar-therapy-chat/internal/domain/ports/repository"
	"avatar-therapy-chat/internal/infra/metrics"
)

// SessionSweeper closes sessions the client abandoned without an explicit
// end. The per-message path handles limits for live sessions; this covers
// rows whose user simply went away.
type SessionSweeper struct {
	interval time.Duration
	sessions repository.SessionRepository
	log      *zerolog.Logger
}

func NewSessionSweeper(interval time.Duration, sessions repository.SessionRepository, logger *zerolog.Logger) *SessionSweeper {
	l := logger.With().Str("component", "SessionSweeper").Logger()
	return &SessionSweeper{interval: interval, sessions: sessions, log: &l}
}

func (w *SessionSweeper) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting session sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	idleAfter := time.Duration(model.SessionMaxMinutes) * time.Minute
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping session sweeper")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.sessions.EndStale(ctx, idleAfter)
			if err != nil {
				w.log.Error().Err(err).Msg("session sweep error")
				continue
			}
			if n > 0 {
				metrics.IncSessionsSwept(n)
				w.log.Info().Int64("count", n).Msg("stale sessions closed")
			}
		}
	}
}
