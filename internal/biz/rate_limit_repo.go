package biz

import (
	"context"
)

// RateLimitRepo persists the day a provider last exhausted its quota.
// Following Kratos v2 DDD architecture, interfaces are defined in biz layer.
// Implementations live in the data layer (Redis, MySQL, in-memory).
//
// Days are formatted as YYYY-MM-DD in the tracker's reference timezone, so
// lexical comparison orders them chronologically.
type RateLimitRepo interface {
	// GetHitDate returns the stored day, found=false when no record exists.
	GetHitDate(ctx context.Context, provider string) (day string, found bool, err error)
	// SetHitDate stores day for provider, replacing any previous record.
	SetHitDate(ctx context.Context, provider, day string) error
	// ClearHitDate deletes the record only if it still holds day.
	// A concurrent write of a newer day is left untouched.
	ClearHitDate(ctx context.Context, provider, day string) (cleared bool, err error)
	// DeleteHitDate removes the record unconditionally.
	DeleteHitDate(ctx context.Context, provider string) error
}
