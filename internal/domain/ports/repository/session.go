package repository

import (
	"context"
	"time"

	"avatar-therapy-chat/internal/domain/model"
)

// -----------------------------
// Therapy Sessions
// -----------------------------

type SessionRepository interface {
	Save(ctx context.Context, qx any, session *model.TherapySession) error
	FindByID(ctx context.Context, qx any, id string) (*model.TherapySession, error)
	// FindActive resolves the open session for a (user, conversation, avatar)
	// tuple, or domain.ErrNotFound.
	FindActive(ctx context.Context, qx any, userID, conversationID, avatarID string) (*model.TherapySession, error)
	FindAllByUser(ctx context.Context, qx any, userID string) ([]*model.TherapySession, error)
	// RecordMessage persists a count/last-activity bump for an active session.
	RecordMessage(ctx context.Context, qx any, session *model.TherapySession) error
	// End closes the session row; ending an already-ended row is a no-op.
	End(ctx context.Context, qx any, session *model.TherapySession) error
	// EndStale closes active sessions whose last activity is older than
	// idleAfter and returns how many were closed.
	EndStale(ctx context.Context, idleAfter time.Duration) (int64, error)
}
