package biz

import "context"

// StorageHealth pings the configured storage backends.
// Implemented by *data.Data.
type StorageHealth interface {
	Healthy(ctx context.Context) map[string]bool
}

// HealthReport summarises storage reachability and breaker state.
type HealthReport struct {
	// Degraded is set when a configured backend does not answer. Requests are
	// still served; rate limit lookups fall back to "not at limit".
	Degraded     bool
	Storage      map[string]bool
	OpenCircuits []string
}

// HealthUsecase backs the health endpoint.
type HealthUsecase struct {
	storage StorageHealth
	router  *ProviderRouter
}

// NewHealthUsecase creates a HealthUsecase.
func NewHealthUsecase(storage StorageHealth, router *ProviderRouter) *HealthUsecase {
	return &HealthUsecase{storage: storage, router: router}
}

// Check pings storage and lists providers whose circuit is open.
func (uc *HealthUsecase) Check(ctx context.Context) *HealthReport {
	report := &HealthReport{Storage: map[string]bool{}}
	if uc.storage != nil {
		report.Storage = uc.storage.Healthy(ctx)
	}
	for _, ok := range report.Storage {
		if !ok {
			report.Degraded = true
		}
	}
	for _, p := range uc.router.Providers() {
		if p.Executor.Breaker().State() == CircuitOpen {
			report.OpenCircuits = append(report.OpenCircuits, p.Identity())
		}
	}
	return report
}
