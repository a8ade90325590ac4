package model

import "time"

// Pipeline event type constants
const (
	EventAttemptStarted      = "ATTEMPT_STARTED"
	EventRetryScheduled      = "RETRY_SCHEDULED"
	EventWatchdogFired       = "WATCHDOG_FIRED"
	EventBreakerStateChanged = "BREAKER_STATE_CHANGED"
	EventUploadStarted       = "UPLOAD_STARTED"
	EventUploadFinished      = "UPLOAD_FINISHED"
	EventFallback            = "FALLBACK"
	EventRateLimitRecorded   = "RATE_LIMIT_RECORDED"
	EventRequestsCancelled   = "REQUESTS_CANCELLED"
)

// PipelineEvent is a progress notification emitted while a request moves
// through the pipeline.
type PipelineEvent struct {
	Type       string
	RequestID  string
	Provider   string
	OccurredAt time.Time
	// Attributes holds type specific details, e.g. attempt, from/to state, uri.
	Attributes map[string]any
}
