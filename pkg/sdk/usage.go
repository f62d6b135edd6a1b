package docqa

import (
	"context"
	"fmt"

	domusage "github.com/kailas-cloud/docqa/internal/domain/usage"
)

// UsagePeriod selects the budget window.
type UsagePeriod string

// Usage period constants.
const (
	UsageDay   UsagePeriod = "day"
	UsageMonth UsagePeriod = "month"
)

// UsageReport describes token consumption for a period.
// Limit 0 and Remaining -1 mean unlimited.
type UsageReport struct {
	Period      UsagePeriod
	PeriodStart int64 // unix millis
	PeriodEnd   int64 // unix millis, when the budget resets
	TokensUsed  int64
	Limit       int64
	Remaining   int64
	Exhausted   bool
}

// usageUseCase is the internal interface for usage reporting.
type usageUseCase interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}

// Usage reports tokens consumed by this client in the given period.
// Without WithTokenBudget nothing is tracked and TokensUsed stays 0.
func (c *Client) Usage(ctx context.Context, period UsagePeriod) (UsageReport, error) {
	p, err := domusage.ParsePeriod(string(period))
	if err != nil {
		return UsageReport{}, fmt.Errorf("usage: %w", err)
	}
	r := c.usageSvc.GetReport(ctx, p)
	return UsageReport{
		Period:      UsagePeriod(r.Period),
		PeriodStart: r.PeriodStart,
		PeriodEnd:   r.PeriodEnd,
		TokensUsed:  r.Budget.Used,
		Limit:       r.Budget.Limit,
		Remaining:   r.Budget.Remaining,
		Exhausted:   r.Budget.Exhausted,
	}, nil
}
