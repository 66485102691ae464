package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"avatar-therapy-chat/internal/domain/model"
	"avatar-therapy-chat/internal/domain/ports/repository"
	"avatar-therapy-chat/internal/infra/metrics"
	red "avatar-therapy-chat/internal/infra/redis"
)

var _ repository.AvatarRepository = (*avatarRepoCacheDecorator)(nil)

// avatarRepoCacheDecorator adds a Redis read-through layer plus in-flight
// request deduplication: concurrent misses for the same avatar share one
// database fetch. The dedup state is an instance field, not package state,
// so independent decorators (and tests) never share it.
type avatarRepoCacheDecorator struct {
	inner repository.AvatarRepository
	cache red.RedisClient
	ttl   time.Duration

	mu       sync.Mutex
	inflight map[string]*avatarFetch
}

type avatarFetch struct {
	done   chan struct{}
	avatar *model.Avatar
	err    error
}

func NewAvatarRepoCacheDecorator(inner repository.AvatarRepository, cache red.RedisClient) repository.AvatarRepository {
	return &avatarRepoCacheDecorator{
		inner:    inner,
		cache:    cache,
		ttl:      1 * time.Hour,
		inflight: make(map[string]*avatarFetch),
	}
}

func (d *avatarRepoCacheDecorator) FindByID(ctx context.Context, qx any, id string) (*model.Avatar, error) {
	key := fmt.Sprintf("avatar:%s", id)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var a model.Avatar
		if json.Unmarshal([]byte(val), &a) == nil {
			metrics.IncCacheRequest("avatar", "hit")
			return &a, nil
		}
	}
	metrics.IncCacheRequest("avatar", "miss")

	d.mu.Lock()
	if f, ok := d.inflight[id]; ok {
		d.mu.Unlock()
		select {
		case <-f.done:
			return f.avatar, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &avatarFetch{done: make(chan struct{})}
	d.inflight[id] = f
	d.mu.Unlock()

	f.avatar, f.err = d.inner.FindByID(ctx, qx, id)
	if f.err == nil && f.avatar != nil {
		if b, err := json.Marshal(f.avatar); err == nil {
			_ = d.cache.Set(ctx, key, b, d.ttl)
		}
	}

	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
	close(f.done)
	return f.avatar, f.err
}

func (d *avatarRepoCacheDecorator) ListActive(ctx context.Context, qx any) ([]*model.Avatar, error) {
	const key = "avatars:active"
	if val, err := d.cache.Get(ctx, key); err == nil {
		var as []*model.Avatar
		if json.Unmarshal([]byte(val), &as) == nil {
			metrics.IncCacheRequest("avatar_list", "hit")
			return as, nil
		}
	}
	metrics.IncCacheRequest("avatar_list", "miss")
	as, err := d.inner.ListActive(ctx, qx)
	if err != nil {
		return nil, err
	}
	if len(as) > 0 {
		if b, err := json.Marshal(as); err == nil {
			_ = d.cache.Set(ctx, key, b, d.ttl)
		}
	}
	return as, nil
}

// Writes invalidate both the per-avatar key and the active list.
func (d *avatarRepoCacheDecorator) Save(ctx context.Context, qx any, a *model.Avatar) error {
	_ = d.cache.Del(ctx, fmt.Sprintf("avatar:%s", a.ID), "avatars:active")
	return d.inner.Save(ctx, qx, a)
}
