package data

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"PuckRelay/internal/biz"
	"PuckRelay/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

const eventAuditBuffer = 1000

// auditedEvents are persisted; the high volume progress events are only logged.
var auditedEvents = map[string]bool{
	model.EventBreakerStateChanged: true,
	model.EventFallback:            true,
	model.EventRateLimitRecorded:   true,
	model.EventRequestsCancelled:   true,
}

// PipelineEventLog is the GORM model for pipeline_event_logs table
type PipelineEventLog struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	EventType  string    `gorm:"column:event_type;type:varchar(50);not null;index"`
	Provider   string    `gorm:"column:provider;type:varchar(64);not null"`
	RequestID  string    `gorm:"column:request_id;type:varchar(64);not null"`
	Details    string    `gorm:"column:details;type:json"` // JSON string
	OccurredAt time.Time `gorm:"column:occurred_at;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (PipelineEventLog) TableName() string {
	return "pipeline_event_logs"
}

// EventAuditor persists notable pipeline events to MySQL.
// It registers itself on the event bus and writes asynchronously so
// publishers never wait on the database.
type EventAuditor struct {
	db      *gorm.DB
	logChan chan *PipelineEventLog
	logger  *log.Helper

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewEventAuditor creates the auditor. With a nil db it is a no-op and is not
// registered on the bus.
func NewEventAuditor(db *gorm.DB, bus *biz.EventBus, logger log.Logger) *EventAuditor {
	a := &EventAuditor{
		db:     db,
		logger: log.NewHelper(logger),
		done:   make(chan struct{}),
	}
	if db == nil {
		close(a.done)
		return a
	}

	// Buffer size 1000 to prevent blocking
	a.logChan = make(chan *PipelineEventLog, eventAuditBuffer)
	go a.start()

	if bus != nil {
		bus.Register(a)
	}
	return a
}

// start processes audit events from channel
func (a *EventAuditor) start() {
	defer close(a.done)
	for event := range a.logChan {
		if err := a.db.WithContext(context.Background()).Create(event).Error; err != nil {
			a.logger.Errorw("msg", "failed to write pipeline event",
				"event", event.EventType,
				"provider", event.Provider,
				"error", err)
		}
	}
}

// OnEvent implements biz.EventObserver.
func (a *EventAuditor) OnEvent(_ context.Context, ev *model.PipelineEvent) {
	if a.logChan == nil || !auditedEvents[ev.Type] {
		return
	}

	details := "{}"
	if len(ev.Attributes) > 0 {
		b, err := json.Marshal(ev.Attributes)
		if err != nil {
			a.logger.Errorw("msg", "failed to marshal event details", "event", ev.Type, "error", err)
			return
		}
		details = string(b)
	}

	row := &PipelineEventLog{
		EventType:  ev.Type,
		Provider:   ev.Provider,
		RequestID:  ev.RequestID,
		Details:    details,
		OccurredAt: ev.OccurredAt,
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}

	// Send to channel (non-blocking)
	select {
	case a.logChan <- row:
	default:
		a.logger.Warnw("msg", "event audit channel full, dropping event",
			"event", ev.Type,
			"provider", ev.Provider)
	}
}

// Close stops accepting events and waits for queued rows to be written.
func (a *EventAuditor) Close() {
	a.mu.Lock()
	if !a.closed && a.logChan != nil {
		close(a.logChan)
	}
	a.closed = true
	a.mu.Unlock()
	<-a.done
}
