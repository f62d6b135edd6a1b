// Package usage describes provider token consumption reports.
package usage

import "fmt"

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod maps "", "day" and "month" to a Period.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodMonth:
		return PeriodMonth, nil
	default:
		return "", fmt.Errorf("unknown usage period %q", s)
	}
}

// Budget is a snapshot of the token budget for one period.
// Limit 0 means unlimited; Remaining is then -1.
type Budget struct {
	Limit     int64
	Used      int64
	Remaining int64
	Exhausted bool
}

// NewBudget derives Remaining and Exhausted from limit and used.
func NewBudget(limit, used int64) Budget {
	if limit <= 0 {
		return Budget{Used: used, Remaining: -1}
	}
	remaining := max(limit-used, 0)
	return Budget{Limit: limit, Used: used, Remaining: remaining, Exhausted: remaining == 0}
}

// Report is provider token usage for a period.
type Report struct {
	Period      Period
	Provider    string
	PeriodStart int64 // unix millis
	PeriodEnd   int64 // unix millis, also when the budget resets
	Budget      Budget
}
