// Package usage reports provider token consumption against the configured budget.
package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/docqa/internal/domain/usage"
)

// Service handles usage reporting.
type Service struct {
	br  BudgetReader
	now func() time.Time
}

// New creates a Service. br can be nil (unlimited mode, nothing tracked).
func New(br BudgetReader) *Service {
	return &Service{br: br, now: time.Now}
}

// WithClock replaces time.Now. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetReport builds a usage report for the given period (UTC boundaries).
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	now := s.now().UTC()

	var (
		start, end  time.Time
		limit, used int64
	)
	switch period {
	case domusage.PeriodMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
		if s.br != nil {
			limit, used = s.br.MonthlyLimit(), s.br.MonthlyUsed()
		}
	default:
		period = domusage.PeriodDay
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.Add(24 * time.Hour)
		if s.br != nil {
			limit, used = s.br.DailyLimit(), s.br.DailyUsed()
		}
	}

	var provider string
	if s.br != nil {
		provider = s.br.Provider()
	}
	return domusage.Report{
		Period:      period,
		Provider:    provider,
		PeriodStart: start.UnixMilli(),
		PeriodEnd:   end.UnixMilli(),
		Budget:      domusage.NewBudget(limit, used),
	}
}
