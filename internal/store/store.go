package store

import (
	"context"
	"time"
)

// Member is one entry of a scored set: the member name plus its score.
// For typing sets the score is an expiry timestamp in unix milliseconds.
type Member struct {
	Member string
	Score  float64
}

// Store is the expiring key-value abstraction shared by all orchestrator
// state. Two backends exist: Redis (shared across instances) and an
// in-process map (fallback / standalone). Both are lazy-expiry: scored-set
// entries are never guaranteed to be physically removed when they expire,
// so readers MUST filter by score themselves. Physical presence of an
// expired entry is not an error.
type Store interface {
	// Set writes a value with a TTL. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// ZAdd inserts or updates a member of a scored set.
	ZAdd(ctx context.Context, key, member string, score float64) error
	// ZRangeWithScores returns all members of a scored set, ascending by score.
	// Expired members may still be present; callers filter by score.
	ZRangeWithScores(ctx context.Context, key string) ([]Member, error)
	// Expire refreshes the TTL of an existing key (sets or scored sets).
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// DeleteByPrefix removes every key starting with prefix.
	DeleteByPrefix(ctx context.Context, prefix string) error
	// Close releases backend resources.
	Close() error
}
