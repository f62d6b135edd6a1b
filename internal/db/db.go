// Package db defines the key-value store contracts used by cache layers.
package db

import (
	"context"
	"time"
)

// Store is the database facade. Consumers depend on the narrow sub-interfaces.
type Store interface {
	Pinger
	KVStore
	CounterStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// CounterStore provides atomic counters with expiry.
type CounterStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}
