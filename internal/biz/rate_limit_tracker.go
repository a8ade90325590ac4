package biz

import (
	"context"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // reference timezone must resolve in minimal containers

	"PuckRelay/internal/conf"
	"PuckRelay/internal/model"
	plog "PuckRelay/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	dayLayout = "2006-01-02"

	// DefaultReferenceTimezone is where Gemini resets daily quotas.
	DefaultReferenceTimezone = "America/Los_Angeles"
)

// RateLimitStatus is what the tracker knows about one provider.
type RateLimitStatus struct {
	AtLimit bool
	HitDate string
}

// RateLimitTracker remembers which providers hit their daily quota today.
// A record from an earlier day is treated as expired and cleared on read.
//
// Storage failures degrade gracefully: reads report "not at limit" so a
// broken store never blocks traffic to the primary provider.
type RateLimitTracker struct {
	mu     sync.Mutex
	repo   RateLimitRepo
	loc    *time.Location
	now    func() time.Time
	events *EventBus
	log    *plog.LogHelper
}

// NewRateLimitTracker creates a tracker using the configured reference timezone.
func NewRateLimitTracker(repo RateLimitRepo, c *conf.Data, events *EventBus, logger log.Logger) (*RateLimitTracker, error) {
	tz := DefaultReferenceTimezone
	if c != nil && c.RateLimit != nil && c.RateLimit.ReferenceTimezone != "" {
		tz = c.RateLimit.ReferenceTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference timezone %q: %w", tz, err)
	}
	return &RateLimitTracker{
		repo:   repo,
		loc:    loc,
		now:    time.Now,
		events: events,
		log:    plog.NewLogHelper(logger),
	}, nil
}

// Location returns the reference timezone.
func (t *RateLimitTracker) Location() *time.Location {
	return t.loc
}

func (t *RateLimitTracker) today() string {
	return t.now().In(t.loc).Format(dayLayout)
}

// IsAtLimit reports whether provider hit its quota earlier today.
func (t *RateLimitTracker) IsAtLimit(ctx context.Context, provider string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked(ctx, provider).AtLimit
}

// Status is IsAtLimit plus the stored hit date.
func (t *RateLimitTracker) Status(ctx context.Context, provider string) RateLimitStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked(ctx, provider)
}

func (t *RateLimitTracker) statusLocked(ctx context.Context, provider string) RateLimitStatus {
	day, found, err := t.repo.GetHitDate(ctx, provider)
	if err != nil {
		t.log.Warnw("msg", "rate limit lookup failed, treating provider as available",
			"provider", provider, "error", err)
		return RateLimitStatus{}
	}
	if !found {
		return RateLimitStatus{}
	}

	today := t.today()
	if day >= today {
		return RateLimitStatus{AtLimit: true, HitDate: day}
	}

	cleared, err := t.repo.ClearHitDate(ctx, provider, day)
	if err != nil {
		t.log.Warnw("msg", "failed to clear stale rate limit record",
			"provider", provider, "hit_date", day, "error", err)
	} else if cleared {
		t.log.RateLimit("rate limit expired for new day",
			"provider", provider, "hit_date", day, "today", today)
	}
	return RateLimitStatus{}
}

// RecordRateLimitHit marks provider as exhausted for today. Recording the
// same day twice is a no-op.
func (t *RateLimitTracker) RecordRateLimitHit(ctx context.Context, provider string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.today()
	day, found, err := t.repo.GetHitDate(ctx, provider)
	if err != nil {
		t.log.Warnw("msg", "rate limit lookup failed before write", "provider", provider, "error", err)
	} else if found && day == today {
		return nil
	}

	if err := t.repo.SetHitDate(ctx, provider, today); err != nil {
		return fmt.Errorf("failed to record rate limit hit for %s: %w", provider, err)
	}
	t.events.Publish(ctx, model.EventRateLimitRecorded, provider, map[string]any{"hit_date": today})
	return nil
}

// Reset forgets any rate limit record for provider.
func (t *RateLimitTracker) Reset(ctx context.Context, provider string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.repo.DeleteHitDate(ctx, provider); err != nil {
		return fmt.Errorf("failed to reset rate limit for %s: %w", provider, err)
	}
	t.log.RateLimit("rate limit reset", "provider", provider)
	return nil
}

// Sweep evaluates every provider so stale records are cleared without
// waiting for traffic. It returns the providers still at limit.
func (t *RateLimitTracker) Sweep(ctx context.Context, providers []string) []string {
	var limited []string
	for _, p := range providers {
		if ctx.Err() != nil {
			break
		}
		if t.IsAtLimit(ctx, p) {
			limited = append(limited, p)
		}
	}
	return limited
}
