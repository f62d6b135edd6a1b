// Package budget enforces daily and monthly provider token limits.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Action defines behavior when the token budget is exceeded.
type Action string

const (
	// ActionWarn logs a warning but allows the request.
	ActionWarn Action = "warn"
	// ActionReject blocks the request.
	ActionReject Action = "reject"
)

const (
	keyPrefix    = "docqa:budget:"
	storeTimeout = 2 * time.Second
)

// Tracker is an in-memory token budget with optional write-behind persistence.
// Check never leaves the process; Record updates memory first, then the store.
type Tracker struct {
	mu             sync.Mutex
	dailyUsed      int64
	monthlyUsed    int64
	dailyLimit     int64
	monthlyLimit   int64
	action         Action
	provider       string
	lastDayReset   time.Time
	lastMonthReset time.Time
	store          Store
	now            func() time.Time
	logger         *zap.Logger
}

// NewTracker creates a tracker. A zero limit means unlimited for that period.
func NewTracker(provider string, dailyLimit, monthlyLimit int64, action Action, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		dailyLimit:   dailyLimit,
		monthlyLimit: monthlyLimit,
		action:       action,
		provider:     provider,
		now:          time.Now,
		logger:       logger,
	}
	t.resetClock()
	return t
}

// WithClock replaces time.Now. Tests only.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
	t.resetClock()
	return t
}

func (t *Tracker) resetClock() {
	now := t.now().UTC()
	t.lastDayReset = truncateToDay(now)
	t.lastMonthReset = truncateToMonth(now)
}

// WithStore attaches a persistence store and loads the current counters.
func (t *Tracker) WithStore(ctx context.Context, s Store) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.store = s
	now := t.now().UTC()
	if val, err := s.Get(ctx, t.dailyKey(now)); err == nil {
		t.dailyUsed = val
	} else {
		t.logger.Warn("Failed to load daily budget from store", zap.Error(err))
	}
	if val, err := s.Get(ctx, t.monthlyKey(now)); err == nil {
		t.monthlyUsed = val
	} else {
		t.logger.Warn("Failed to load monthly budget from store", zap.Error(err))
	}

	t.logger.Info("Budget loaded from store",
		zap.String("provider", t.provider),
		zap.Int64("daily_used", t.dailyUsed),
		zap.Int64("monthly_used", t.monthlyUsed),
	)
	return t
}

func (t *Tracker) dailyKey(now time.Time) string {
	return fmt.Sprintf("%s%s:daily:%s", keyPrefix, t.provider, now.Format("2006-01-02"))
}

func (t *Tracker) monthlyKey(now time.Time) string {
	return fmt.Sprintf("%s%s:monthly:%s", keyPrefix, t.provider, now.Format("2006-01"))
}

// Check reports whether a new provider call is allowed.
func (t *Tracker) Check(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()

	dailyExceeded := t.dailyLimit > 0 && t.dailyUsed >= t.dailyLimit
	monthlyExceeded := t.monthlyLimit > 0 && t.monthlyUsed >= t.monthlyLimit
	if !dailyExceeded && !monthlyExceeded {
		return nil
	}

	if t.action == ActionReject {
		return domain.ErrTokenBudgetExceeded
	}

	t.logger.Warn("Token budget exceeded",
		zap.String("provider", t.provider),
		zap.Int64("daily_used", t.dailyUsed),
		zap.Int64("daily_limit", t.dailyLimit),
		zap.Int64("monthly_used", t.monthlyUsed),
		zap.Int64("monthly_limit", t.monthlyLimit),
	)
	return nil
}

// Record adds consumed tokens. Store failures are logged, never returned.
func (t *Tracker) Record(tokens int64) {
	if tokens <= 0 {
		return
	}

	t.mu.Lock()
	t.resetIfNeeded()
	t.dailyUsed += tokens
	t.monthlyUsed += tokens
	s := t.store
	now := t.now().UTC()
	t.mu.Unlock()

	if s == nil {
		return
	}

	// запись в store не должна тормозить запрос клиента
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	dailyKey, monthlyKey := t.dailyKey(now), t.monthlyKey(now)
	if err := s.IncrBy(ctx, dailyKey, tokens); err != nil {
		t.logger.Warn("Failed to persist daily budget", zap.String("key", dailyKey), zap.Error(err))
	}
	if err := s.IncrBy(ctx, monthlyKey, tokens); err != nil {
		t.logger.Warn("Failed to persist monthly budget", zap.String("key", monthlyKey), zap.Error(err))
	}
}

// DailyLimit returns the daily token cap, 0 if unlimited.
func (t *Tracker) DailyLimit() int64 { return t.dailyLimit }

// MonthlyLimit returns the monthly token cap, 0 if unlimited.
func (t *Tracker) MonthlyLimit() int64 { return t.monthlyLimit }

// DailyUsed returns tokens consumed today (UTC).
func (t *Tracker) DailyUsed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.dailyUsed
}

// MonthlyUsed returns tokens consumed this month (UTC).
func (t *Tracker) MonthlyUsed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.monthlyUsed
}

// Provider returns the provider label the counters are kept for.
func (t *Tracker) Provider() string { return t.provider }

// resetIfNeeded zeroes counters when the day or month rolls over.
func (t *Tracker) resetIfNeeded() {
	now := t.now().UTC()
	today := truncateToDay(now)
	thisMonth := truncateToMonth(now)

	if today.After(t.lastDayReset) {
		t.dailyUsed = 0
		t.lastDayReset = today
	}
	if thisMonth.After(t.lastMonthReset) {
		t.monthlyUsed = 0
		t.lastMonthReset = thisMonth
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
