package biz

import (
	"context"
	"strconv"
	"strings"

	"PuckRelay/internal/model"
	plog "PuckRelay/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// AnalysisUsecase is the entry point used by the service layer.
type AnalysisUsecase struct {
	router   *ProviderRouter
	tracker  *RateLimitTracker
	registry *RequestRegistry
	events   *EventBus
	log      *plog.LogHelper
}

// NewAnalysisUsecase creates an AnalysisUsecase.
func NewAnalysisUsecase(router *ProviderRouter, tracker *RateLimitTracker, registry *RequestRegistry, events *EventBus, logger log.Logger) *AnalysisUsecase {
	return &AnalysisUsecase{
		router:   router,
		tracker:  tracker,
		registry: registry,
		events:   events,
		log:      plog.NewLogHelper(logger),
	}
}

// Analyze asks the selected provider for a text answer about the media.
func (uc *AnalysisUsecase) Analyze(ctx context.Context, payload *AnalysisPayload) (*GenerateResult, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}
	payload.Kind = ResponseText
	return uc.router.ExecuteWithFallback(ctx, payload)
}

// GenerateImage asks the selected provider for an image.
func (uc *AnalysisUsecase) GenerateImage(ctx context.Context, payload *AnalysisPayload) (*GenerateResult, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}
	payload.Kind = ResponseImage
	return uc.router.ExecuteWithFallback(ctx, payload)
}

// ProviderStatuses reports every configured provider.
func (uc *AnalysisUsecase) ProviderStatuses(ctx context.Context) []ProviderStatus {
	return uc.router.Statuses(ctx)
}

// ResetRateLimit clears a provider's rate limit record.
func (uc *AnalysisUsecase) ResetRateLimit(ctx context.Context, provider string) error {
	return uc.router.ResetRateLimit(ctx, provider)
}

// CancelAll aborts every in-flight request.
func (uc *AnalysisUsecase) CancelAll(ctx context.Context) int {
	n := uc.registry.CancelAll()
	uc.events.Publish(ctx, model.EventRequestsCancelled, "", map[string]any{"cancelled": n})
	return n
}

// SweepRateLimits clears stale rate limit records of every provider.
func (uc *AnalysisUsecase) SweepRateLimits(ctx context.Context) []string {
	limited := uc.tracker.Sweep(ctx, uc.router.Identities())
	uc.log.Scheduler("rate limit sweep finished", "still_limited", strings.Join(limited, ","))
	return limited
}

func validatePayload(payload *AnalysisPayload) error {
	if payload == nil || strings.TrimSpace(payload.Prompt) == "" {
		return errors.BadRequest("EMPTY_PROMPT", "prompt must not be empty")
	}
	for i, m := range payload.Media {
		if len(m.Data) == 0 {
			return errors.BadRequest("EMPTY_MEDIA", "media item is empty").
				WithMetadata(map[string]string{"index": strconv.Itoa(i)})
		}
	}
	return nil
}
