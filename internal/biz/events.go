package biz

import (
	"context"
	"sync"
	"time"

	"PuckRelay/internal/model"
	plog "PuckRelay/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// EventObserver receives pipeline events. Implementations must not block.
type EventObserver interface {
	OnEvent(ctx context.Context, ev *model.PipelineEvent)
}

// EventBus fans pipeline events out to registered observers.
type EventBus struct {
	mu        sync.RWMutex
	observers []EventObserver
	now       func() time.Time
}

// NewEventBus creates an event bus with a LogObserver attached.
func NewEventBus(logger log.Logger) *EventBus {
	b := &EventBus{now: time.Now}
	b.Register(NewLogObserver(logger))
	return b
}

// Register adds an observer.
func (b *EventBus) Register(o EventObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Publish delivers an event synchronously to every observer.
func (b *EventBus) Publish(ctx context.Context, eventType, provider string, attrs map[string]any) {
	if b == nil {
		return
	}
	ev := &model.PipelineEvent{
		Type:       eventType,
		RequestID:  plog.GetRequestID(ctx),
		Provider:   provider,
		OccurredAt: b.now(),
		Attributes: attrs,
	}

	b.mu.RLock()
	observers := make([]EventObserver, len(b.observers))
	copy(observers, b.observers)
	b.mu.RUnlock()

	for _, o := range observers {
		o.OnEvent(ctx, ev)
	}
}

// LogObserver writes pipeline events to the structured log.
type LogObserver struct {
	log *plog.LogHelper
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger log.Logger) *LogObserver {
	return &LogObserver{log: plog.NewLogHelper(logger)}
}

func (o *LogObserver) OnEvent(ctx context.Context, ev *model.PipelineEvent) {
	kvs := make([]interface{}, 0, 2*len(ev.Attributes)+4)
	kvs = append(kvs, "event", ev.Type, "provider", ev.Provider)
	for k, v := range ev.Attributes {
		kvs = append(kvs, k, v)
	}

	switch ev.Type {
	case model.EventRetryScheduled:
		o.log.Retry(ctx, "retry scheduled", kvs...)
	case model.EventUploadStarted, model.EventUploadFinished:
		o.log.Upload(ctx, "media upload", kvs...)
	case model.EventFallback:
		o.log.Fallback(ctx, "falling back to secondary provider", kvs...)
	case model.EventBreakerStateChanged:
		o.log.Breaker("circuit breaker state changed", kvs...)
	case model.EventRateLimitRecorded:
		o.log.RateLimit("rate limit hit recorded", kvs...)
	case model.EventRequestsCancelled:
		o.log.Cancel(ctx, "in-flight requests cancelled", kvs...)
	default:
		o.log.API(ctx, "pipeline event", kvs...)
	}
}
