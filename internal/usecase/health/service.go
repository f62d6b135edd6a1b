package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates the index cannot be persisted.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names used as Report.Checks keys.
const (
	ComponentIndex      = "index"
	ComponentCache      = "cache"
	ComponentEmbedding  = "embedding"
	ComponentGeneration = "generation"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	index      IndexChecker
	cache      DBPinger
	embedding  ProviderChecker
	generation ProviderChecker
}

// New creates a Service. cache, embedding and generation can be nil.
func New(index IndexChecker, cache DBPinger, embedding, generation ProviderChecker) *Service {
	return &Service{index: index, cache: cache, embedding: embedding, generation: generation}
}

// Check runs health checks against all components.
// A failing index makes the service Unhealthy, any other failure Degraded.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks[ComponentIndex] = result(s.index.CheckWritable(ctx))
	if s.cache != nil {
		checks[ComponentCache] = result(s.cache.Ping(ctx))
	}
	if s.embedding != nil {
		checks[ComponentEmbedding] = result(s.embedding.HealthCheck(ctx))
	}
	if s.generation != nil {
		checks[ComponentGeneration] = result(s.generation.HealthCheck(ctx))
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks[ComponentIndex] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
