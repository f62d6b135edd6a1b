package usage

import (
	"context"
	"testing"
	"time"

	domusage "github.com/kailas-cloud/docqa/internal/domain/usage"
)

// --- Mock ---

type mockBudgetReader struct {
	dailyLimit   int64
	monthlyLimit int64
	dailyUsed    int64
	monthlyUsed  int64
}

func (m *mockBudgetReader) Provider() string    { return "openai" }
func (m *mockBudgetReader) DailyLimit() int64   { return m.dailyLimit }
func (m *mockBudgetReader) MonthlyLimit() int64 { return m.monthlyLimit }
func (m *mockBudgetReader) DailyUsed() int64    { return m.dailyUsed }
func (m *mockBudgetReader) MonthlyUsed() int64  { return m.monthlyUsed }

var fixedNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

// --- Tests ---

func TestGetReport_DailyPeriod(t *testing.T) {
	br := &mockBudgetReader{dailyLimit: 10000, dailyUsed: 3000, monthlyLimit: 100000, monthlyUsed: 50000}
	r := New(br).WithClock(func() time.Time { return fixedNow }).GetReport(context.Background(), domusage.PeriodDay)

	if r.Period != domusage.PeriodDay || r.Provider != "openai" {
		t.Errorf("period/provider = %q/%q", r.Period, r.Provider)
	}
	dayStart := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if r.PeriodStart != dayStart.UnixMilli() || r.PeriodEnd != dayStart.Add(24*time.Hour).UnixMilli() {
		t.Errorf("period = [%d, %d)", r.PeriodStart, r.PeriodEnd)
	}
	want := domusage.Budget{Limit: 10000, Used: 3000, Remaining: 7000}
	if r.Budget != want {
		t.Errorf("budget = %+v, want %+v", r.Budget, want)
	}
}

func TestGetReport_MonthlyPeriod(t *testing.T) {
	br := &mockBudgetReader{monthlyLimit: 100000, monthlyUsed: 100000}
	r := New(br).WithClock(func() time.Time { return fixedNow }).GetReport(context.Background(), domusage.PeriodMonth)

	monthStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if r.PeriodStart != monthStart.UnixMilli() {
		t.Errorf("start = %d, want %d", r.PeriodStart, monthStart.UnixMilli())
	}
	if r.PeriodEnd != time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("end = %d", r.PeriodEnd)
	}
	if !r.Budget.Exhausted || r.Budget.Remaining != 0 {
		t.Errorf("budget = %+v, want exhausted", r.Budget)
	}
}

func TestGetReport_NilReader(t *testing.T) {
	r := New(nil).WithClock(func() time.Time { return fixedNow }).GetReport(context.Background(), domusage.PeriodDay)

	if r.Budget.Limit != 0 || r.Budget.Remaining != -1 || r.Budget.Exhausted {
		t.Errorf("unlimited budget = %+v", r.Budget)
	}
	if r.Provider != "" {
		t.Errorf("provider = %q", r.Provider)
	}
}

func TestGetReport_UnknownPeriodFallsBackToDay(t *testing.T) {
	r := New(nil).GetReport(context.Background(), domusage.Period("week"))
	if r.Period != domusage.PeriodDay {
		t.Errorf("period = %q, want day", r.Period)
	}
}
