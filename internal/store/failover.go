package store

import (
	"context"
	"log/slog"
	"time"
)

// Failover wraps a primary (networked) store with a local fallback. Every
// operation tries the primary first; on backend error it logs a warning and
// repeats the operation against the fallback so the caller never sees a hard
// failure. State written during an outage lives only in the fallback — that
// is acceptable: all orchestrator state is short-TTL and advisory.
type Failover struct {
	primary  Store
	fallback Store
}

func NewFailover(primary, fallback Store) *Failover {
	return &Failover{primary: primary, fallback: fallback}
}

func (f *Failover) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := f.primary.Set(ctx, key, value, ttl); err != nil {
		slog.Warn("store: primary set failed, using fallback", "key", key, "error", err)
		return f.fallback.Set(ctx, key, value, ttl)
	}
	return nil
}

func (f *Failover) Get(ctx context.Context, key string) (string, bool, error) {
	val, ok, err := f.primary.Get(ctx, key)
	if err != nil {
		slog.Warn("store: primary get failed, using fallback", "key", key, "error", err)
		return f.fallback.Get(ctx, key)
	}
	return val, ok, nil
}

func (f *Failover) ZAdd(ctx context.Context, key, member string, score float64) error {
	if err := f.primary.ZAdd(ctx, key, member, score); err != nil {
		slog.Warn("store: primary zadd failed, using fallback", "key", key, "error", err)
		return f.fallback.ZAdd(ctx, key, member, score)
	}
	return nil
}

func (f *Failover) ZRangeWithScores(ctx context.Context, key string) ([]Member, error) {
	members, err := f.primary.ZRangeWithScores(ctx, key)
	if err != nil {
		slog.Warn("store: primary zrange failed, using fallback", "key", key, "error", err)
		return f.fallback.ZRangeWithScores(ctx, key)
	}
	return members, nil
}

func (f *Failover) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := f.primary.Expire(ctx, key, ttl); err != nil {
		slog.Warn("store: primary expire failed, using fallback", "key", key, "error", err)
		return f.fallback.Expire(ctx, key, ttl)
	}
	return nil
}

func (f *Failover) Delete(ctx context.Context, keys ...string) error {
	if err := f.primary.Delete(ctx, keys...); err != nil {
		slog.Warn("store: primary delete failed, using fallback", "error", err)
		return f.fallback.Delete(ctx, keys...)
	}
	// Mirror deletes into the fallback so stale entries from a past outage
	// cannot shadow a clear.
	f.fallback.Delete(ctx, keys...)
	return nil
}

func (f *Failover) DeleteByPrefix(ctx context.Context, prefix string) error {
	if err := f.primary.DeleteByPrefix(ctx, prefix); err != nil {
		slog.Warn("store: primary delete-by-prefix failed, using fallback", "prefix", prefix, "error", err)
		return f.fallback.DeleteByPrefix(ctx, prefix)
	}
	f.fallback.DeleteByPrefix(ctx, prefix)
	return nil
}

func (f *Failover) Close() error {
	f.fallback.Close()
	return f.primary.Close()
}
