package redis

import (
	"context"
	"encoding/json"
	"time"

	"avatar-therapy-chat/internal/domain/model"
)

// SessionCache keeps the latest state of active therapy sessions so the hot
// path (one read per message) can skip Postgres. Best-effort: callers treat
// misses and errors identically.
type SessionCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewSessionCache(client RedisClient, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, ttl: ttl}
}

func sessionKey(userID, conversationID, avatarID string) string {
	return "therapy_session:" + userID + ":" + conversationID + ":" + avatarID
}

func (c *SessionCache) Store(ctx context.Context, s *model.TherapySession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKey(s.UserID, s.ConversationID, s.AvatarID), data, c.ttl)
}

func (c *SessionCache) Get(ctx context.Context, userID, conversationID, avatarID string) (*model.TherapySession, error) {
	data, err := c.client.Get(ctx, sessionKey(userID, conversationID, avatarID))
	if err != nil {
		return nil, err
	}
	var s model.TherapySession
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *SessionCache) Delete(ctx context.Context, userID, conversationID, avatarID string) error {
	return c.client.Del(ctx, sessionKey(userID, conversationID, avatarID))
}

func (c *SessionCache) Extend(ctx context.Context, userID, conversationID, avatarID string) error {
	return c.client.Expire(ctx, sessionKey(userID, conversationID, avatarID), c.ttl)
}
