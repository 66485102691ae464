// File: internal/infra/db/postgres/postgres_session_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"avatar-therapy-chat/internal/domain"
	"avatar-therapy-chat/internal/domain/model"
	"avatar-therapy-chat/internal/domain/ports/repository"
	red "avatar-therapy-chat/internal/infra/redis"
)

var _ repository.SessionRepository = (*SessionRepo)(nil)

// SessionRepo persists therapy sessions. The active-session row is the
// authority; Redis holds a best-effort copy for the per-message hot path.
type SessionRepo struct {
	pool  *pgxpool.Pool
	cache *red.SessionCache
}

func NewSessionRepo(pool *pgxpool.Pool, cache *red.SessionCache) *SessionRepo {
	return &SessionRepo{pool: pool, cache: cache}
}

func (r *SessionRepo) Save(ctx context.Context, qx any, s *model.TherapySession) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	const q = `
INSERT INTO therapy_sessions
  (id, user_id, conversation_id, avatar_id, session_type, start_time, last_activity,
   end_time, message_count, duration_minutes, credit_charged, is_active, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  last_activity   = EXCLUDED.last_activity,
  end_time        = EXCLUDED.end_time,
  message_count   = GREATEST(therapy_sessions.message_count, EXCLUDED.message_count),
  duration_minutes = EXCLUDED.duration_minutes,
  credit_charged  = therapy_sessions.credit_charged OR EXCLUDED.credit_charged,
  is_active       = therapy_sessions.is_active AND EXCLUDED.is_active,
  metadata        = EXCLUDED.metadata;`
	_, err = ex.Exec(ctx, q,
		s.ID, s.UserID, s.ConversationID, s.AvatarID, s.SessionType,
		s.StartTime, s.LastActivity, s.EndTime, s.MessageCount,
		s.DurationMinutes(time.Now()), s.CreditCharged, s.IsActive, meta)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if r.cache != nil && s.IsActive {
		_ = r.cache.Store(ctx, s)
	}
	return nil
}

func (r *SessionRepo) FindByID(ctx context.Context, qx any, id string) (*model.TherapySession, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, user_id, conversation_id, avatar_id, session_type, start_time,
       last_activity, end_time, message_count, credit_charged, is_active, metadata
  FROM therapy_sessions WHERE id = $1;`
	return scanSession(ex.QueryRow(ctx, q, id))
}

func (r *SessionRepo) FindActive(ctx context.Context, qx any, userID, conversationID, avatarID string) (*model.TherapySession, error) {
	if r.cache != nil && qx == nil {
		if s, err := r.cache.Get(ctx, userID, conversationID, avatarID); err == nil && s != nil && s.IsActive {
			return s, nil
		}
	}
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, user_id, conversation_id, avatar_id, session_type, start_time,
       last_activity, end_time, message_count, credit_charged, is_active, metadata
  FROM therapy_sessions
 WHERE user_id = $1 AND conversation_id = $2 AND avatar_id = $3 AND is_active
 ORDER BY start_time DESC LIMIT 1;`
	s, err := scanSession(ex.QueryRow(ctx, q, userID, conversationID, avatarID))
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		_ = r.cache.Store(ctx, s)
	}
	return s, nil
}

func (r *SessionRepo) FindAllByUser(ctx context.Context, qx any, userID string) ([]*model.TherapySession, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, user_id, conversation_id, avatar_id, session_type, start_time,
       last_activity, end_time, message_count, credit_charged, is_active, metadata
  FROM therapy_sessions WHERE user_id = $1 ORDER BY start_time DESC;`
	rows, err := ex.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.TherapySession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordMessage bumps the counter and activity timestamp for an active row.
// The GREATEST guard keeps message_count monotone even if a stale client
// replays an older snapshot.
func (r *SessionRepo) RecordMessage(ctx context.Context, qx any, s *model.TherapySession) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `
UPDATE therapy_sessions
   SET message_count = GREATEST(message_count, $2),
       last_activity = $3
 WHERE id = $1 AND is_active;`
	tag, err := ex.Exec(ctx, q, s.ID, s.MessageCount, s.LastActivity)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionEnded
	}
	if r.cache != nil {
		_ = r.cache.Store(ctx, s)
	}
	return nil
}

// End closes the row. Ending an already-ended session affects zero rows and
// returns nil: the operation is idempotent.
func (r *SessionRepo) End(ctx context.Context, qx any, s *model.TherapySession) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `
UPDATE therapy_sessions
   SET is_active = FALSE,
       end_time = $2,
       duration_minutes = $3
 WHERE id = $1 AND is_active;`
	end := time.Now()
	if s.EndTime != nil {
		end = *s.EndTime
	}
	if _, err := ex.Exec(ctx, q, s.ID, end, s.DurationMinutes(end)); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if r.cache != nil {
		_ = r.cache.Delete(ctx, s.UserID, s.ConversationID, s.AvatarID)
	}
	return nil
}

// EndStale closes abandoned rows in bulk. Cached copies expire on their own
// TTL rather than being deleted one by one here.
func (r *SessionRepo) EndStale(ctx context.Context, idleAfter time.Duration) (int64, error) {
	const q = `
UPDATE therapy_sessions
   SET is_active = FALSE,
       end_time = last_activity,
       duration_minutes = GREATEST(0, EXTRACT(EPOCH FROM (last_activity - start_time)) / 60)::int
 WHERE is_active
   AND last_activity < NOW() - ($1::bigint * INTERVAL '1 second');`
	tag, err := r.pool.Exec(ctx, q, int64(idleAfter.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("end stale sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*model.TherapySession, error) {
	var s model.TherapySession
	var meta []byte
	err := row.Scan(&s.ID, &s.UserID, &s.ConversationID, &s.AvatarID, &s.SessionType,
		&s.StartTime, &s.LastActivity, &s.EndTime, &s.MessageCount,
		&s.CreditCharged, &s.IsActive, &meta)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			s.Metadata = map[string]string{}
		}
	}
	return &s, nil
}
