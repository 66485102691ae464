// File: internal/infra/db/postgres/postgres_message_repo.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"avatar-therapy-chat/internal/domain/model"
	"avatar-therapy-chat/internal/domain/ports/repository"
	"avatar-therapy-chat/internal/infra/security"
)

var _ repository.MessageRepository = (*MessageRepo)(nil)

// MessageRepo stores messages with the confidentiality envelope applied at
// rest. Content leaves this repo as plaintext only; decode is total, so a
// corrupt row yields the placeholder instead of an error.
type MessageRepo struct {
	pool  *pgxpool.Pool
	codec security.MessageCodec
}

func NewMessageRepo(pool *pgxpool.Pool, codec security.MessageCodec) *MessageRepo {
	return &MessageRepo{pool: pool, codec: codec}
}

func (r *MessageRepo) Save(ctx context.Context, qx any, m *model.Message) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO messages (id, conversation_id, session_id, role, content, has_images, tokens, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,COALESCE($8,NOW()));`
	_, err = ex.Exec(ctx, q, m.ID, m.ConversationID, m.SessionID, m.Role,
		r.codec.Encode(m.Content), m.HasImages, m.Tokens, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (r *MessageRepo) History(ctx context.Context, qx any, conversationID string, limit int) ([]model.Message, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	// Newest N, then reversed back to send order. Interleaved inserts from
	// other clients merge by append, never by index.
	const q = `
SELECT id, conversation_id, session_id, role, content, has_images, tokens, created_at
  FROM (SELECT * FROM messages WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT $2) t
 ORDER BY created_at ASC;`
	rows, err := ex.Query(ctx, q, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	var out []model.Message
	for rows.Next() {
		var m model.Message
		var stored string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SessionID, &m.Role,
			&stored, &m.HasImages, &m.Tokens, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Content = r.codec.Decode(stored)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MessageRepo) CleanupOldMessages(ctx context.Context, userID string, retentionDays int) (int64, error) {
	const q = `
DELETE FROM messages
 WHERE session_id IN (SELECT id FROM therapy_sessions WHERE user_id = $1)
   AND created_at < NOW() - ($2::int * INTERVAL '1 day');`
	tag, err := r.pool.Exec(ctx, q, userID, retentionDays)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *MessageRepo) CleanupExpired(ctx context.Context, retentionDays int) (int64, error) {
	const q = `
DELETE FROM messages
 WHERE created_at < NOW() - ($1::int * INTERVAL '1 day');`
	tag, err := r.pool.Exec(ctx, q, retentionDays)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
