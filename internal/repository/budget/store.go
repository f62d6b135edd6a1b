// Package budget persists token budget counters in Redis/Valkey.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/docqa/internal/db"
)

// TTLs for counter keys. A counter outlives its period so late reads still work.
const (
	DefaultDailyTTL   = 48 * time.Hour
	DefaultMonthlyTTL = 62 * 24 * time.Hour
)

// store is the consumer interface for budget operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store implements budget.Store with INCRBY + EXPIRE NX.
type Store struct {
	store    store
	dailyTTL time.Duration
	monthTTL time.Duration
}

// New creates a budget store. Non-positive TTLs fall back to the defaults.
func New(s store, dailyTTL, monthTTL time.Duration) *Store {
	if dailyTTL <= 0 {
		dailyTTL = DefaultDailyTTL
	}
	if monthTTL <= 0 {
		monthTTL = DefaultMonthlyTTL
	}
	return &Store{store: s, dailyTTL: dailyTTL, monthTTL: monthTTL}
}

// IncrBy increments the counter and sets its TTL once.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	if err := s.store.IncrBy(ctx, key, val); err != nil {
		return fmt.Errorf("budget incr %s: %w", key, err)
	}
	if err := s.store.Expire(ctx, key, s.ttlForKey(key), true); err != nil {
		return fmt.Errorf("budget expire %s: %w", key, err)
	}
	return nil
}

// Get returns the counter value, 0 for a missing key.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("budget get %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget get %s: parse %q: %w", key, data, err)
	}
	return val, nil
}

// keys look like docqa:budget:{provider}:daily:{date} or :monthly:{month}
func (s *Store) ttlForKey(key string) time.Duration {
	if strings.Contains(key, ":daily:") {
		return s.dailyTTL
	}
	return s.monthTTL
}
