package biz

import (
	"context"
	"fmt"

	"PuckRelay/internal/conf"
	"PuckRelay/internal/model"
	plog "PuckRelay/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// Provider roles.
const (
	RolePrimary   = "primary"
	RoleSecondary = "secondary"
)

// Provider is a configured backend with its own breaker and executor.
type Provider struct {
	Role      string
	Config    ProviderConfig
	Transport ProviderTransport
	Executor  *RequestExecutor
}

// Identity returns the provider identity.
func (p *Provider) Identity() string {
	return p.Config.Identity
}

// ProviderStatus is the operator view of one provider.
type ProviderStatus struct {
	Identity  string
	Role      string
	Model     string
	Selected  bool
	Breaker   BreakerSnapshot
	RateLimit RateLimitStatus
}

// ProviderRouter picks a provider, runs the request against it and falls
// back once to the secondary when the primary is out of quota.
type ProviderRouter struct {
	primary   *Provider
	secondary *Provider
	tracker   *RateLimitTracker
	assembler *MediaPartAssembler
	registry  *RequestRegistry
	events    *EventBus
	log       *plog.LogHelper
}

// NewProviderRouter builds one breaker and executor per configured provider.
func NewProviderRouter(endpoints *ProviderEndpoints, c *conf.Pipeline, tracker *RateLimitTracker, assembler *MediaPartAssembler, registry *RequestRegistry, events *EventBus, logger log.Logger) (*ProviderRouter, error) {
	if endpoints == nil || endpoints.Primary == nil {
		return nil, fmt.Errorf("primary provider is not configured")
	}

	threshold, recovery := DefaultFailureThreshold, DefaultRecoveryTimeout
	if c != nil && c.Breaker != nil {
		threshold, recovery = c.Breaker.FailureThreshold, c.Breaker.RecoveryTimeout
	}

	build := func(role string, ep *ProviderEndpoint) *Provider {
		if ep == nil {
			return nil
		}
		breaker := NewCircuitBreaker(ep.Config.Identity, threshold, recovery, events)
		return &Provider{
			Role:      role,
			Config:    ep.Config,
			Transport: ep.Transport,
			Executor:  NewRequestExecutor(ep, c, breaker, registry, events, logger),
		}
	}

	r := &ProviderRouter{
		primary:   build(RolePrimary, endpoints.Primary),
		secondary: build(RoleSecondary, endpoints.Secondary),
		tracker:   tracker,
		assembler: assembler,
		registry:  registry,
		events:    events,
		log:       plog.NewLogHelper(logger),
	}
	if r.secondary != nil && r.secondary.Identity() == r.primary.Identity() {
		return nil, fmt.Errorf("primary and secondary providers share identity %q", r.primary.Identity())
	}
	return r, nil
}

// Providers returns the configured providers, primary first.
func (r *ProviderRouter) Providers() []*Provider {
	if r.secondary == nil {
		return []*Provider{r.primary}
	}
	return []*Provider{r.primary, r.secondary}
}

// Identities returns the configured provider identities.
func (r *ProviderRouter) Identities() []string {
	ids := make([]string, 0, 2)
	for _, p := range r.Providers() {
		ids = append(ids, p.Identity())
	}
	return ids
}

// Lookup finds a provider by identity.
func (r *ProviderRouter) Lookup(identity string) (*Provider, bool) {
	for _, p := range r.Providers() {
		if p.Identity() == identity {
			return p, true
		}
	}
	return nil, false
}

// SelectProvider returns the primary unless it is at its daily limit and a
// secondary exists. With no secondary the primary is used regardless.
func (r *ProviderRouter) SelectProvider(ctx context.Context) *Provider {
	if !r.tracker.IsAtLimit(ctx, r.primary.Identity()) {
		return r.primary
	}
	if r.secondary != nil {
		return r.secondary
	}
	return r.primary
}

// ExecuteWithFallback runs payload against the selected provider. A rate
// limited primary is recorded and the request is repeated once on the
// secondary; the secondary's outcome is final. A rate limit that cannot be
// absorbed by a fallback is surfaced as RATE_LIMIT_EXCEEDED.
func (r *ProviderRouter) ExecuteWithFallback(ctx context.Context, payload *AnalysisPayload) (*GenerateResult, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	untrack := r.registry.Track(cancel)
	defer untrack()

	selected := r.SelectProvider(ctx)
	result, err := r.executeOn(ctx, selected, payload)
	if err == nil || !IsRateLimitError(err) {
		return result, err
	}

	r.recordHit(ctx, selected)
	if selected != r.primary || r.secondary == nil {
		return nil, asRateLimitExceeded(selected.Identity(), err)
	}

	r.events.Publish(ctx, model.EventFallback, r.secondary.Identity(), map[string]any{
		"from": r.primary.Identity(), "to": r.secondary.Identity(), "reason": errorReason(err),
	})

	result, err = r.executeOn(ctx, r.secondary, payload)
	if err != nil {
		if IsRateLimitError(err) {
			r.recordHit(ctx, r.secondary)
			return nil, asRateLimitExceeded(r.secondary.Identity(), err)
		}
		return nil, err
	}
	result.FellBack = true
	return result, nil
}

func (r *ProviderRouter) executeOn(ctx context.Context, p *Provider, payload *AnalysisPayload) (*GenerateResult, error) {
	ctx = plog.WithProvider(ctx, p.Identity())

	parts, err := r.assembler.Assemble(ctx, p.Config, p.Transport, payload.Media, payload.Prompt)
	if err != nil {
		return nil, err
	}
	return p.Executor.Execute(ctx, buildRequest(parts, payload), payload.Kind)
}

func (r *ProviderRouter) recordHit(ctx context.Context, p *Provider) {
	if err := r.tracker.RecordRateLimitHit(ctx, p.Identity()); err != nil {
		r.log.Errorw("msg", "failed to record rate limit hit", "provider", p.Identity(), "error", err)
	}
}

// Statuses reports breaker and rate limit state of every provider.
func (r *ProviderRouter) Statuses(ctx context.Context) []ProviderStatus {
	selected := r.SelectProvider(ctx)
	out := make([]ProviderStatus, 0, 2)
	for _, p := range r.Providers() {
		out = append(out, ProviderStatus{
			Identity:  p.Identity(),
			Role:      p.Role,
			Model:     p.Config.Model,
			Selected:  p == selected,
			Breaker:   p.Executor.Breaker().Snapshot(),
			RateLimit: r.tracker.Status(ctx, p.Identity()),
		})
	}
	return out
}

// ResetRateLimit clears the rate limit record of a configured provider.
func (r *ProviderRouter) ResetRateLimit(ctx context.Context, identity string) error {
	if _, ok := r.Lookup(identity); !ok {
		return errors.NotFound("PROVIDER_NOT_FOUND", fmt.Sprintf("provider %q is not configured", identity))
	}
	return r.tracker.Reset(ctx, identity)
}
