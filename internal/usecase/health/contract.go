package health

import "context"

// IndexChecker verifies the index directory accepts writes.
type IndexChecker interface {
	CheckWritable(ctx context.Context) error
}

// DBPinger checks cache store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks embedding or generation provider availability.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
