package biz

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"PuckRelay/internal/conf"
	"PuckRelay/pkg/genai"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() log.Logger {
	return log.NewStdLogger(io.Discard)
}

// MockRateLimitRepo is a mock implementation of RateLimitRepo for testing.
type MockRateLimitRepo struct {
	mock.Mock
}

func (m *MockRateLimitRepo) GetHitDate(ctx context.Context, provider string) (string, bool, error) {
	args := m.Called(ctx, provider)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockRateLimitRepo) SetHitDate(ctx context.Context, provider, day string) error {
	args := m.Called(ctx, provider, day)
	return args.Error(0)
}

func (m *MockRateLimitRepo) ClearHitDate(ctx context.Context, provider, day string) (bool, error) {
	args := m.Called(ctx, provider, day)
	return args.Bool(0), args.Error(1)
}

func (m *MockRateLimitRepo) DeleteHitDate(ctx context.Context, provider string) error {
	args := m.Called(ctx, provider)
	return args.Error(0)
}

// memRateLimitRepo is a map backed RateLimitRepo.
type memRateLimitRepo struct {
	mu   sync.Mutex
	days map[string]string
}

func newMemRateLimitRepo() *memRateLimitRepo {
	return &memRateLimitRepo{days: make(map[string]string)}
}

func (r *memRateLimitRepo) GetHitDate(_ context.Context, provider string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day, ok := r.days[provider]
	return day, ok, nil
}

func (r *memRateLimitRepo) SetHitDate(_ context.Context, provider, day string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.days[provider] = day
	return nil
}

func (r *memRateLimitRepo) ClearHitDate(_ context.Context, provider, day string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.days[provider] != day {
		return false, nil
	}
	delete(r.days, provider)
	return true, nil
}

func (r *memRateLimitRepo) DeleteHitDate(_ context.Context, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.days, provider)
	return nil
}

// fakeTransport is a scriptable ProviderTransport.
type fakeTransport struct {
	mu            sync.Mutex
	noKey         bool
	generateFn    func(ctx context.Context, model string, req *genai.GenerateContentRequest) ([]byte, error)
	uploadFn      func(ctx context.Context, data []byte, mimeType string) (string, error)
	downloadFn    func(ctx context.Context, url string) ([]byte, string, error)
	generateCalls int
	uploadCalls   int
	requests      []*genai.GenerateContentRequest
}

func (f *fakeTransport) HasAPIKey() bool { return !f.noKey }

func (f *fakeTransport) GenerateContent(ctx context.Context, model string, req *genai.GenerateContentRequest) ([]byte, error) {
	f.mu.Lock()
	f.generateCalls++
	f.requests = append(f.requests, req)
	fn := f.generateFn
	f.mu.Unlock()
	if fn == nil {
		return []byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`), nil
	}
	return fn(ctx, model, req)
}

func (f *fakeTransport) UploadFile(ctx context.Context, data []byte, mimeType string) (string, error) {
	f.mu.Lock()
	f.uploadCalls++
	fn := f.uploadFn
	f.mu.Unlock()
	if fn == nil {
		return "https://files.example.com/" + mimeType, nil
	}
	return fn(ctx, data, mimeType)
}

func (f *fakeTransport) Download(ctx context.Context, url string) ([]byte, string, error) {
	if f.downloadFn == nil {
		return nil, "", errors.New("download not scripted")
	}
	return f.downloadFn(ctx, url)
}

func (f *fakeTransport) GenerateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generateCalls
}

func (f *fakeTransport) UploadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploadCalls
}

func textResponse(text string) []byte {
	return []byte(`{"candidates":[{"content":{"parts":[{"text":"` + text + `"}]}}]}`)
}

// blockUntilDone simulates a provider that never answers before the deadline.
func blockUntilDone(ctx context.Context, _ string, _ *genai.GenerateContentRequest) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func statusError(code int, message string) error {
	return &genai.StatusError{StatusCode: code, Message: message}
}

func testProviderConfig(identity string) ProviderConfig {
	return ProviderConfig{
		Identity:        identity,
		BaseURL:         "https://" + identity + ".example.com",
		Model:           identity + "-model",
		ImageModel:      identity + "-image",
		InlineSizeLimit: 64,
		UploadSizeLimit: 1024,
	}
}

// testPipeline has short timeouts and no retry delay.
func testPipeline() *conf.Pipeline {
	return &conf.Pipeline{
		MaxRetries:       1,
		RetryDelay:       10 * time.Millisecond,
		TextTimeout:      100 * time.Millisecond,
		MediaTimeout:     200 * time.Millisecond,
		WatchdogGrace:    50 * time.Millisecond,
		InlineVideoFPS:   1,
		UploadedVideoFPS: 5,
		Breaker:          &conf.Breaker{FailureThreshold: 3, RecoveryTimeout: time.Minute},
	}
}
