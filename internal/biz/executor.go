package biz

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"PuckRelay/internal/conf"
	"PuckRelay/internal/model"
	"PuckRelay/pkg/genai"
	plog "PuckRelay/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	// DefaultMaxRetries is also the ceiling: a logical request makes at most two physical attempts.
	DefaultMaxRetries    = 1
	DefaultRetryDelay    = 2 * time.Second
	DefaultTextTimeout   = 60 * time.Second
	DefaultMediaTimeout  = 300 * time.Second
	DefaultWatchdogGrace = 15 * time.Second
)

var (
	errAttemptTimeout = errors.New("attempt timeout")
	errWatchdog       = errors.New("watchdog fired")
)

// RequestExecutor sends generateContent requests to one provider with a
// per-attempt timeout, a watchdog, bounded retries and a circuit breaker.
type RequestExecutor struct {
	provider  ProviderConfig
	transport ProviderTransport
	breaker   *CircuitBreaker
	registry  *RequestRegistry
	events    *EventBus
	log       *plog.LogHelper

	maxRetries    int
	retryDelay    time.Duration
	textTimeout   time.Duration
	mediaTimeout  time.Duration
	watchdogGrace time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRequestExecutor creates an executor for one provider.
func NewRequestExecutor(endpoint *ProviderEndpoint, c *conf.Pipeline, breaker *CircuitBreaker, registry *RequestRegistry, events *EventBus, logger log.Logger) *RequestExecutor {
	e := &RequestExecutor{
		provider:      endpoint.Config,
		transport:     endpoint.Transport,
		breaker:       breaker,
		registry:      registry,
		events:        events,
		log:           plog.NewLogHelper(logger),
		maxRetries:    DefaultMaxRetries,
		retryDelay:    DefaultRetryDelay,
		textTimeout:   DefaultTextTimeout,
		mediaTimeout:  DefaultMediaTimeout,
		watchdogGrace: DefaultWatchdogGrace,
		sleep:         sleepContext,
	}
	if c != nil {
		e.maxRetries = min(max(c.MaxRetries, 0), DefaultMaxRetries)
		e.retryDelay = c.RetryDelay
		if c.TextTimeout > 0 {
			e.textTimeout = c.TextTimeout
		}
		if c.MediaTimeout > 0 {
			e.mediaTimeout = c.MediaTimeout
		}
		e.watchdogGrace = c.WatchdogGrace
	}
	if e.registry == nil {
		e.registry = NewRequestRegistry()
	}
	return e
}

// Provider returns the provider identity.
func (e *RequestExecutor) Provider() string {
	return e.provider.Identity
}

// Breaker returns the provider's circuit breaker.
func (e *RequestExecutor) Breaker() *CircuitBreaker {
	return e.breaker
}

// Execute runs req until it succeeds, fails permanently or retries run out.
// The breaker is consulted before every physical attempt.
func (e *RequestExecutor) Execute(ctx context.Context, req *genai.GenerateContentRequest, kind ResponseKind) (*GenerateResult, error) {
	if !e.transport.HasAPIKey() {
		return nil, ErrMissingAPIKey(e.provider.Identity)
	}

	modelName := e.provider.ModelFor(kind)
	timeout := e.textTimeout
	if needsMediaTimeout(req) {
		timeout = e.mediaTimeout
	}

	for retryCount := 0; ; retryCount++ {
		if ctx.Err() != nil {
			return nil, contextError(ctx, timeout)
		}
		if !e.breaker.CanMakeRequest() {
			e.log.Breaker("request rejected, circuit open", "provider", e.provider.Identity)
			return nil, ErrServiceUnavailable(e.provider.Identity)
		}

		e.publish(ctx, model.EventAttemptStarted, map[string]any{"attempt": retryCount + 1, "model": modelName, "timeout": timeout.String()})
		start := time.Now()

		body, err := e.runAttempt(ctx, timeout, func(actx context.Context) ([]byte, error) {
			return e.transport.GenerateContent(actx, modelName, req)
		})
		if err == nil {
			result, derr := e.decode(ctx, body, kind, timeout)
			if derr != nil {
				if IsCancelled(derr) {
					return nil, derr
				}
				e.breaker.RecordFailure()
				return nil, derr
			}
			e.breaker.RecordSuccess()
			result.Provider = e.provider.Identity
			result.Attempts = retryCount + 1
			e.log.Success("generation succeeded",
				"provider", e.provider.Identity, "attempts", result.Attempts,
				"duration_ms", time.Since(start).Milliseconds())
			return result, nil
		}

		if IsCancelled(err) {
			return nil, err
		}

		if isRetryable(err) && retryCount < e.maxRetries {
			delay := e.retryDelay * time.Duration(retryCount+1)
			e.publish(ctx, model.EventRetryScheduled, map[string]any{
				"attempt": retryCount + 1, "delay": delay.String(), "reason": errorReason(err),
			})
			if serr := e.sleep(ctx, delay); serr != nil {
				return nil, contextError(ctx, timeout)
			}
			continue
		}

		e.breaker.RecordFailure()
		return nil, err
	}
}

// runAttempt executes fn under a per-attempt timeout and an independent
// watchdog. fn sees the timeout; the caller waits only for fn or the
// watchdog, so a transport that ignores its context is abandoned at
// timeout+watchdogGrace. The attempt is registered so CancelAll can abort it.
func (e *RequestExecutor) runAttempt(ctx context.Context, timeout time.Duration, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	untrack := e.registry.Track(cancel)
	defer untrack()

	timeoutCtx, cancelTimeout := context.WithTimeoutCause(attemptCtx, timeout, errAttemptTimeout)
	defer cancelTimeout()

	ceiling := timeout + e.watchdogGrace
	watchdog := time.AfterFunc(ceiling, func() {
		e.log.Warnw("msg", "watchdog fired, abandoning attempt",
			"provider", e.provider.Identity, "ceiling", ceiling.String())
		e.publish(ctx, model.EventWatchdogFired, map[string]any{"ceiling": ceiling.String()})
		cancel(errWatchdog)
	})
	defer watchdog.Stop()

	type outcome struct {
		body []byte
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		body, err := fn(timeoutCtx)
		done <- outcome{body: body, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-attemptCtx.Done():
		select {
		case out = <-done:
		default:
			return nil, contextError(attemptCtx, timeout)
		}
	}

	if out.err != nil {
		return nil, e.classify(timeoutCtx, timeout, out.err)
	}
	return out.body, nil
}

// classify maps a transport error to the error taxonomy.
func (e *RequestExecutor) classify(attemptCtx context.Context, timeout time.Duration, err error) error {
	if attemptCtx.Err() != nil {
		return contextError(attemptCtx, timeout)
	}

	var se *genai.StatusError
	switch {
	case errors.As(err, &se):
		if se.StatusCode == http.StatusTooManyRequests {
			return ErrRateLimitExceeded(e.provider.Identity, se.Message)
		}
		return ErrAPI(se.StatusCode, se.Message)
	case errors.Is(err, genai.ErrMissingAPIKey):
		return ErrMissingAPIKey(e.provider.Identity)
	case errors.Is(err, genai.ErrInvalidURL):
		return ErrInvalidURL(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout(timeout)
	case errors.Is(err, context.Canceled):
		return ErrCancelled()
	default:
		return ErrNetwork(err)
	}
}

// decode is the single decoding boundary for generateContent responses.
func (e *RequestExecutor) decode(ctx context.Context, body []byte, kind ResponseKind, timeout time.Duration) (*GenerateResult, error) {
	var resp genai.GenerateContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, ErrDecoding(err)
	}
	if resp.Error != nil && resp.Error.Message != "" {
		if resp.Error.Code == http.StatusTooManyRequests {
			return nil, ErrRateLimitExceeded(e.provider.Identity, resp.Error.Message)
		}
		return nil, ErrAPI(resp.Error.Code, resp.Error.Message)
	}

	if kind == ResponseImage {
		return e.decodeImage(ctx, &resp, timeout)
	}

	if len(resp.Candidates) == 0 {
		return nil, ErrInvalidResponse("no candidates")
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return nil, ErrNoData()
	}
	return &GenerateResult{Text: sb.String()}, nil
}

func (e *RequestExecutor) decodeImage(ctx context.Context, resp *genai.GenerateContentResponse, timeout time.Duration) (*GenerateResult, error) {
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			img, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, ErrDecoding(err)
			}
			return &GenerateResult{Image: img, ImageMIMEType: p.InlineData.MIMEType}, nil
		}
	}

	for _, img := range resp.Images {
		if img.URL == "" {
			continue
		}
		var mimeType string
		data, err := e.runAttempt(ctx, timeout, func(actx context.Context) ([]byte, error) {
			data, ct, err := e.transport.Download(actx, img.URL)
			mimeType = ct
			return data, err
		})
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, ErrNoData()
		}
		return &GenerateResult{Image: data, ImageMIMEType: mimeType}, nil
	}

	if len(resp.Candidates) == 0 && len(resp.Images) == 0 {
		return nil, ErrInvalidResponse("no candidates or images")
	}
	return nil, ErrNoData()
}

func (e *RequestExecutor) publish(ctx context.Context, eventType string, attrs map[string]any) {
	e.events.Publish(ctx, eventType, e.provider.Identity, attrs)
}

// contextError converts a finished context into Timeout or Cancelled.
func contextError(ctx context.Context, timeout time.Duration) error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, errAttemptTimeout),
		errors.Is(cause, errWatchdog),
		errors.Is(cause, context.DeadlineExceeded):
		return ErrTimeout(timeout)
	default:
		return ErrCancelled()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
