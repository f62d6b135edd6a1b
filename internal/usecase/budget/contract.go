package budget

import "context"

// Store persists budget counters. IncrBy may be called repeatedly for the same key.
type Store interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}
