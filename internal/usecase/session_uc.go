// File: internal/usecase/session_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"avatar-therapy-chat/internal/domain"
	"avatar-therapy-chat/internal/domain/model"
	"avatar-therapy-chat/internal/domain/ports/repository"
	"avatar-therapy-chat/internal/infra/metrics"
)

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

// SessionUseCase owns the session state machine: one bounded, billable span
// per (user, conversation, avatar) tuple at a time, charged exactly once.
type SessionUseCase interface {
	// ProcessMessage ensures an active session for the tuple and advances it
	// by one user message, performing the at-most-once session charge.
	ProcessMessage(ctx context.Context, userID, conversationID, avatarID string) (*model.TherapySession, model.SessionUsage, error)
	// EndSession closes a session. Idempotent: ending an ended session
	// reports success without touching anything.
	EndSession(ctx context.Context, sessionID string, force bool) (bool, error)
	ActiveSession(ctx context.Context, userID, conversationID, avatarID string) (*model.TherapySession, error)
}

type sessionUC struct {
	sessions       repository.SessionRepository
	ledger         repository.LedgerRepository
	txm            repository.TransactionManager
	costPerSession int
	devMode        bool
	log            *zerolog.Logger
	now            func() time.Time
}

func NewSessionUseCase(sessions repository.SessionRepository, ledger repository.LedgerRepository, txm repository.TransactionManager, costPerSession int, devMode bool, logger *zerolog.Logger) *sessionUC {
	if costPerSession <= 0 {
		costPerSession = 1
	}
	return &sessionUC{
		sessions:       sessions,
		ledger:         ledger,
		txm:            txm,
		costPerSession: costPerSession,
		devMode:        devMode,
		log:            logger,
		now:            time.Now,
	}
}

func (u *sessionUC) ProcessMessage(ctx context.Context, userID, conversationID, avatarID string) (*model.TherapySession, model.SessionUsage, error) {
	if userID == "" || conversationID == "" || avatarID == "" {
		return nil, model.SessionUsage{}, domain.ErrInvalidArgument
	}
	now := u.now()

	s, err := u.ensureSession(ctx, userID, conversationID, avatarID, now)
	if err != nil {
		return nil, model.SessionUsage{}, err
	}

	// At-most-once billing, attempted before the message is recorded so an
	// insufficient balance blocks the send instead of stranding a half-turn.
	if !s.CreditCharged && !u.devMode {
		charged, err := u.ledger.ChargeSessionOnce(ctx, s.ID, userID, u.costPerSession)
		switch {
		case errors.Is(err, domain.ErrInsufficientCredits):
			return nil, model.SessionUsage{}, err
		case err != nil:
			// Transient ledger failure: message delivery is not blocked on
			// billing. The flag stays false, so the next message retries.
			u.log.Warn().Err(err).Str("session_id", s.ID).Msg("session charge failed, will retry")
		case charged:
			s.MarkCharged()
		default:
			// Another writer already charged this session.
			s.CreditCharged = true
		}
	} else if u.devMode {
		s.MarkCharged()
	}

	if err := s.RecordMessage(now); err != nil {
		return nil, model.SessionUsage{}, err
	}
	if err := u.sessions.RecordMessage(ctx, nil, s); err != nil {
		return nil, model.SessionUsage{}, err
	}
	metrics.IncSessionMessage()

	if warn, wt := s.Warning(now); warn {
		metrics.IncSessionWarning(string(wt))
	}

	// Hard limits close the session after the message that reached them.
	if s.ShouldEnd(now) {
		trigger := "duration"
		if s.MessageCount >= model.SessionMaxMessages {
			trigger = "messages"
		}
		s.End(now)
		if err := u.sessions.End(ctx, nil, s); err != nil {
			u.log.Error().Err(err).Str("session_id", s.ID).Msg("session close failed")
		} else {
			metrics.ObserveSessionEnd(trigger, s.DurationMinutes(now))
		}
	}

	return s, s.Usage(now), nil
}

func (u *sessionUC) EndSession(ctx context.Context, sessionID string, force bool) (bool, error) {
	if sessionID == "" {
		return false, domain.ErrInvalidArgument
	}
	s, err := u.sessions.FindByID(ctx, nil, sessionID)
	if err != nil {
		return false, err
	}
	now := u.now()
	if !s.End(now) {
		return true, nil // already ended
	}
	if err := u.sessions.End(ctx, nil, s); err != nil {
		return false, err
	}
	trigger := "explicit"
	if force {
		trigger = "force"
	}
	metrics.ObserveSessionEnd(trigger, s.DurationMinutes(now))
	return true, nil
}

func (u *sessionUC) ActiveSession(ctx context.Context, userID, conversationID, avatarID string) (*model.TherapySession, error) {
	return u.sessions.FindActive(ctx, nil, userID, conversationID, avatarID)
}

// ensureSession resumes the tuple's active session or opens a fresh one,
// closing a stale session that has outlived its clock limit in between.
func (u *sessionUC) ensureSession(ctx context.Context, userID, conversationID, avatarID string, now time.Time) (*model.TherapySession, error) {
	var stale *model.TherapySession
	s, err := u.sessions.FindActive(ctx, nil, userID, conversationID, avatarID)
	if err == nil {
		if !s.ShouldEnd(now) {
			return s, nil
		}
		s.End(now)
		stale = s
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	fresh, err := model.NewTherapySession(uuid.NewString(), userID, conversationID, avatarID)
	if err != nil {
		return nil, err
	}
	fresh.StartTime = now
	fresh.LastActivity = now

	// Closing the expired session and opening its replacement commit
	// together, so the tuple never observes two active rows.
	err = u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if stale != nil {
			if err := u.sessions.End(ctx, tx, stale); err != nil {
				return err
			}
		}
		return u.sessions.Save(ctx, tx, fresh)
	})
	if err != nil {
		return nil, err
	}
	if stale != nil {
		metrics.ObserveSessionEnd("duration", stale.DurationMinutes(now))
	}
	metrics.IncSessionStarted()
	u.log.Info().Str("session_id", fresh.ID).Str("user_id", userID).Msg("session started")
	return fresh, nil
}
