package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys for a limited time so the same piece of
// work is not started twice within that window.
type IdempotencyStore interface {
	// MarkProcessed claims key for ttl. It returns false when the key is
	// already claimed and has not expired.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Close() error
}
