// Package cache provides the derived-value cache port and its backends.
// Values are stored as strings (typically JSON or decimal text) under
// structured keys; callers own serialization.
package cache

import (
	"context"
	"time"
)

// Cache is the get/set/invalidate port injected into the quiz engine.
// A miss is reported via the bool, not an error.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
