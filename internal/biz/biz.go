// Package biz contains the request pipeline: circuit breaking, retries,
// rate limit tracking, media assembly and provider fallback.
// Repository and transport interfaces are declared here and implemented in data.
package biz

import (
	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewEventBus,
	NewRequestRegistry,
	NewRateLimitTracker,
	NewMediaPartAssembler,
	NewProviderRouter,
	NewAnalysisUsecase,
	NewHealthUsecase,
)
