package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// ReplayGuard remembers keys for a bounded time so that one-shot tokens,
// such as signed requests, cannot be used twice.
type ReplayGuard interface {
	// Claim records key for ttl. It returns false if the key was already
	// claimed and has not expired.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Lease is a held distributed lock.
type Lease interface {
	// Extend pushes the expiry out by ttl. It returns ErrLockLost if the lock
	// expired and was taken by someone else.
	Extend(ctx context.Context, ttl time.Duration) error
	// Release gives up the lock. Safe to call more than once.
	Release()
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
