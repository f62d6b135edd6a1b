package docqa

import (
	"context"

	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
)

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component → "ok"/"error"
}

// Health checks the index directory, the cache and the providers.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	}
}

// healthUseCase is the internal interface for health checks.
type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

// healthProbe is implemented by providers that can report their availability.
type healthProbe interface {
	HealthCheck(ctx context.Context) error
}

// providerProbe returns p as a health.ProviderChecker, nil when it cannot report health.
func providerProbe(p any) healthuc.ProviderChecker {
	if hp, ok := p.(healthProbe); ok {
		return hp
	}
	return nil
}
