package repository

import (
	"context"

	"avatar-therapy-chat/internal/domain/model"
)

// -----------------------------
// Messages
// -----------------------------

type MessageRepository interface {
	// Save persists one message; content is enveloped at rest.
	Save(ctx context.Context, qx any, m *model.Message) error
	// History returns the conversation's messages in send order, decoded.
	History(ctx context.Context, qx any, conversationID string, limit int) ([]model.Message, error)
	// CleanupOldMessages deletes messages older than the retention for a user.
	CleanupOldMessages(ctx context.Context, userID string, retentionDays int) (int64, error)
	// CleanupExpired deletes messages past retention across all users.
	CleanupExpired(ctx context.Context, retentionDays int) (int64, error)
}
