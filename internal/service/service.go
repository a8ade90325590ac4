// Package service exposes the analysis pipeline over HTTP.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewAnalysisService, NewHealthService)
