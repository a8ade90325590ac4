package biz

import (
	"context"
	"testing"
	"time"

	"PuckRelay/internal/conf"
	"PuckRelay/internal/model"
	"PuckRelay/pkg/genai"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routerFixture struct {
	router    *ProviderRouter
	usecase   *AnalysisUsecase
	tracker   *RateLimitTracker
	repo      *memRateLimitRepo
	registry  *RequestRegistry
	primary   *fakeTransport
	secondary *fakeTransport
	events    *recordingObserver
}

func newRouterFixture(t *testing.T, primary, secondary *fakeTransport) *routerFixture {
	t.Helper()
	bus := NewEventBus(newTestLogger())
	obs := &recordingObserver{}
	bus.Register(obs)

	repo := newMemRateLimitRepo()
	tracker, err := NewRateLimitTracker(repo, &conf.Data{
		RateLimit: &conf.DataRateLimit{ReferenceTimezone: DefaultReferenceTimezone},
	}, bus, newTestLogger())
	require.NoError(t, err)

	endpoints := &ProviderEndpoints{
		Primary: &ProviderEndpoint{Config: testProviderConfig("gemini"), Transport: primary},
	}
	if secondary != nil {
		endpoints.Secondary = &ProviderEndpoint{Config: testProviderConfig("relay"), Transport: secondary}
	}

	registry := NewRequestRegistry()
	c := testPipeline()
	assembler := NewMediaPartAssembler(c, nil, bus, newTestLogger())
	router, err := NewProviderRouter(endpoints, c, tracker, assembler, registry, bus, newTestLogger())
	require.NoError(t, err)
	for _, p := range router.Providers() {
		p.Executor.sleep = func(context.Context, time.Duration) error { return nil }
	}

	return &routerFixture{
		router:    router,
		usecase:   NewAnalysisUsecase(router, tracker, registry, bus, newTestLogger()),
		tracker:   tracker,
		repo:      repo,
		registry:  registry,
		primary:   primary,
		secondary: secondary,
		events:    obs,
	}
}

func textPayload() *AnalysisPayload {
	return &AnalysisPayload{Prompt: "evaluate my slap shot", Kind: ResponseText}
}

func alwaysStatus(code int, message string) func(context.Context, string, *genai.GenerateContentRequest) ([]byte, error) {
	return func(context.Context, string, *genai.GenerateContentRequest) ([]byte, error) {
		return nil, statusError(code, message)
	}
}

func alwaysText(text string) func(context.Context, string, *genai.GenerateContentRequest) ([]byte, error) {
	return func(context.Context, string, *genai.GenerateContentRequest) ([]byte, error) {
		return textResponse(text), nil
	}
}

// A rate limited primary falls back once to a healthy secondary.
func TestRouter_FallbackOnRateLimit(t *testing.T) {
	primary := &fakeTransport{generateFn: alwaysStatus(429, "Resource has been exhausted (e.g. check quota).")}
	secondary := &fakeTransport{generateFn: alwaysText("from the relay")}
	f := newRouterFixture(t, primary, secondary)
	ctx := context.Background()

	result, err := f.router.ExecuteWithFallback(ctx, textPayload())
	require.NoError(t, err)

	assert.Equal(t, "from the relay", result.Text)
	assert.Equal(t, "relay", result.Provider)
	assert.True(t, result.FellBack)
	assert.Equal(t, 1, primary.GenerateCalls())
	assert.Equal(t, 1, secondary.GenerateCalls())
	assert.True(t, f.tracker.IsAtLimit(ctx, "gemini"))
	assert.False(t, f.tracker.IsAtLimit(ctx, "relay"))

	fallbacks := f.events.ofType(model.EventFallback)
	require.Len(t, fallbacks, 1)
	assert.Equal(t, "gemini", fallbacks[0].Attributes["from"])

	// the next request goes straight to the secondary
	_, err = f.router.ExecuteWithFallback(ctx, textPayload())
	require.NoError(t, err)
	assert.Equal(t, 1, primary.GenerateCalls())
	assert.Equal(t, 2, secondary.GenerateCalls())
}

func TestRouter_FallbackOnQuotaMessage(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
	}{
		{"quota in 403", 403, "Quota exceeded for quota metric 'Generate Content API requests per day'"},
		{"resource exhausted in 503", 503, "RESOURCE_EXHAUSTED: resource exhausted"},
		{"too many requests in 400", 400, "Too Many Requests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &fakeTransport{generateFn: alwaysStatus(tt.code, tt.message)}
			secondary := &fakeTransport{generateFn: alwaysText("ok")}
			f := newRouterFixture(t, primary, secondary)

			result, err := f.router.ExecuteWithFallback(context.Background(), textPayload())
			require.NoError(t, err)
			assert.Equal(t, "relay", result.Provider)
		})
	}
}

func TestRouter_NoFallbackForOtherErrors(t *testing.T) {
	primary := &fakeTransport{generateFn: alwaysStatus(400, "invalid argument")}
	secondary := &fakeTransport{}
	f := newRouterFixture(t, primary, secondary)

	_, err := f.router.ExecuteWithFallback(context.Background(), textPayload())
	require.Error(t, err)
	assert.True(t, IsAPIError(err))
	assert.Equal(t, 0, secondary.GenerateCalls())
	assert.False(t, f.tracker.IsAtLimit(context.Background(), "gemini"))
}

func TestRouter_NoSecondarySurfacesRateLimit(t *testing.T) {
	primary := &fakeTransport{generateFn: alwaysStatus(429, "quota")}
	f := newRouterFixture(t, primary, nil)
	ctx := context.Background()

	_, err := f.router.ExecuteWithFallback(ctx, textPayload())
	require.Error(t, err)
	assert.True(t, IsRateLimitExceeded(err))
	assert.Equal(t, 429, kerrors.Code(err))
	assert.True(t, f.tracker.IsAtLimit(ctx, "gemini"))

	// degraded choice: primary is still used
	assert.Same(t, f.router.primary, f.router.SelectProvider(ctx))
}

// Quota wording on a non-429 status is reported as a rate limit when no
// fallback can absorb it.
func TestRouter_NoSecondarySurfacesQuotaMessageAsRateLimit(t *testing.T) {
	primary := &fakeTransport{generateFn: alwaysStatus(403, "Quota exceeded for project")}
	f := newRouterFixture(t, primary, nil)
	ctx := context.Background()

	_, err := f.router.ExecuteWithFallback(ctx, textPayload())
	require.Error(t, err)
	assert.True(t, IsRateLimitExceeded(err), "got %v", err)
	assert.False(t, IsAPIError(err))
	assert.Equal(t, 429, kerrors.Code(err))
	assert.Equal(t, "Quota exceeded for project", kerrors.FromError(err).Message)
	assert.Equal(t, "gemini", kerrors.FromError(err).Metadata["provider"])
	assert.True(t, f.tracker.IsAtLimit(ctx, "gemini"))
}

func TestRouter_SecondaryQuotaMessageSurfacesAsRateLimit(t *testing.T) {
	primary := &fakeTransport{generateFn: alwaysStatus(429, "quota")}
	secondary := &fakeTransport{generateFn: alwaysStatus(403, "RESOURCE_EXHAUSTED: daily quota")}
	f := newRouterFixture(t, primary, secondary)

	_, err := f.router.ExecuteWithFallback(context.Background(), textPayload())
	require.Error(t, err)
	assert.True(t, IsRateLimitExceeded(err), "got %v", err)
	assert.Equal(t, "relay", kerrors.FromError(err).Metadata["provider"])
}

func TestRouter_NeverChainsFallbacks(t *testing.T) {
	primary := &fakeTransport{generateFn: alwaysStatus(429, "quota")}
	secondary := &fakeTransport{generateFn: alwaysStatus(429, "too many requests")}
	f := newRouterFixture(t, primary, secondary)
	ctx := context.Background()

	_, err := f.router.ExecuteWithFallback(ctx, textPayload())
	require.Error(t, err)
	assert.True(t, IsRateLimitExceeded(err))
	assert.Equal(t, "relay", kerrors.FromError(err).Metadata["provider"])
	assert.Equal(t, 1, primary.GenerateCalls())
	assert.Equal(t, 1, secondary.GenerateCalls())
	assert.True(t, f.tracker.IsAtLimit(ctx, "relay"))
}

func TestRouter_SecondarySelectedAfterPrimaryHit(t *testing.T) {
	primary := &fakeTransport{}
	secondary := &fakeTransport{generateFn: alwaysStatus(429, "quota")}
	f := newRouterFixture(t, primary, secondary)
	ctx := context.Background()
	require.NoError(t, f.tracker.RecordRateLimitHit(ctx, "gemini"))

	_, err := f.router.ExecuteWithFallback(ctx, textPayload())
	require.Error(t, err)
	assert.Equal(t, 0, primary.GenerateCalls(), "secondary is not allowed to fall back to the primary")
	assert.Equal(t, 1, secondary.GenerateCalls())
}

func TestRouter_UsesProviderSpecificUploads(t *testing.T) {
	primary := &fakeTransport{generateFn: alwaysStatus(429, "quota")}
	secondary := &fakeTransport{}
	f := newRouterFixture(t, primary, secondary)

	payload := textPayload()
	payload.Media = []MediaItem{{Data: make([]byte, 200), Role: MediaVideo}}

	_, err := f.router.ExecuteWithFallback(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 1, primary.UploadCalls())
	assert.Equal(t, 1, secondary.UploadCalls())
}

func TestRouter_BuildsGenerationConfig(t *testing.T) {
	primary := &fakeTransport{
		generateFn: func(_ context.Context, model string, _ *genai.GenerateContentRequest) ([]byte, error) {
			assert.Equal(t, "gemini-image", model)
			return []byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"AAAA"}}]}}]}`), nil
		},
	}
	f := newRouterFixture(t, primary, nil)

	result, err := f.usecase.GenerateImage(context.Background(), &AnalysisPayload{Prompt: "draw a goalie mask"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Image)

	require.Len(t, primary.requests, 1)
	gc := primary.requests[0].GenerationConfig
	require.NotNil(t, gc)
	assert.Equal(t, []string{genai.ModalityImage}, gc.ResponseModalities)
}

func TestRouter_Statuses(t *testing.T) {
	f := newRouterFixture(t, &fakeTransport{}, &fakeTransport{})
	ctx := context.Background()
	require.NoError(t, f.tracker.RecordRateLimitHit(ctx, "gemini"))

	statuses := f.usecase.ProviderStatuses(ctx)
	require.Len(t, statuses, 2)
	assert.Equal(t, "gemini", statuses[0].Identity)
	assert.Equal(t, RolePrimary, statuses[0].Role)
	assert.True(t, statuses[0].RateLimit.AtLimit)
	assert.False(t, statuses[0].Selected)
	assert.Equal(t, CircuitClosed, statuses[0].Breaker.State)
	assert.Equal(t, "relay", statuses[1].Identity)
	assert.True(t, statuses[1].Selected)
}

func TestRouter_ResetRateLimit(t *testing.T) {
	f := newRouterFixture(t, &fakeTransport{}, &fakeTransport{})
	ctx := context.Background()
	require.NoError(t, f.tracker.RecordRateLimitHit(ctx, "gemini"))

	require.NoError(t, f.usecase.ResetRateLimit(ctx, "gemini"))
	assert.False(t, f.tracker.IsAtLimit(ctx, "gemini"))

	err := f.usecase.ResetRateLimit(ctx, "openai")
	require.Error(t, err)
	assert.True(t, kerrors.IsNotFound(err))
}

func TestUsecase_CancelAll(t *testing.T) {
	started := make(chan struct{})
	primary := &fakeTransport{
		generateFn: func(ctx context.Context, s string, r *genai.GenerateContentRequest) ([]byte, error) {
			close(started)
			return blockUntilDone(ctx, s, r)
		},
	}
	f := newRouterFixture(t, primary, nil)
	for _, p := range f.router.Providers() {
		p.Executor.textTimeout = 5 * time.Second
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := f.usecase.Analyze(context.Background(), textPayload())
		errCh <- err
	}()

	<-started
	assert.Equal(t, 2, f.usecase.CancelAll(context.Background()), "logical call and attempt are both tracked")

	err := <-errCh
	assert.True(t, IsCancelled(err), "got %v", err)
	assert.Equal(t, 0, f.registry.InFlight())
	assert.Len(t, f.events.ofType(model.EventRequestsCancelled), 1)
}

func TestUsecase_ValidatesPayload(t *testing.T) {
	f := newRouterFixture(t, &fakeTransport{}, nil)

	_, err := f.usecase.Analyze(context.Background(), &AnalysisPayload{Prompt: "  "})
	assert.True(t, kerrors.IsBadRequest(err))

	_, err = f.usecase.Analyze(context.Background(), &AnalysisPayload{Prompt: "p", Media: []MediaItem{{Role: MediaImage}}})
	assert.True(t, kerrors.IsBadRequest(err))
	assert.Equal(t, 0, f.primary.GenerateCalls())
}

func TestUsecase_SweepRateLimits(t *testing.T) {
	f := newRouterFixture(t, &fakeTransport{}, &fakeTransport{})
	ctx := context.Background()
	require.NoError(t, f.repo.SetHitDate(ctx, "gemini", "2000-01-01"))
	require.NoError(t, f.tracker.RecordRateLimitHit(ctx, "relay"))

	assert.Equal(t, []string{"relay"}, f.usecase.SweepRateLimits(ctx))
	_, found, _ := f.repo.GetHitDate(ctx, "gemini")
	assert.False(t, found)
}

func TestNewProviderRouter_Validation(t *testing.T) {
	_, err := NewProviderRouter(&ProviderEndpoints{}, testPipeline(), nil, nil, NewRequestRegistry(), nil, newTestLogger())
	require.Error(t, err)

	same := &ProviderEndpoint{Config: testProviderConfig("gemini"), Transport: &fakeTransport{}}
	_, err = NewProviderRouter(&ProviderEndpoints{Primary: same, Secondary: same}, testPipeline(), nil, nil, NewRequestRegistry(), nil, newTestLogger())
	require.Error(t, err)
}
