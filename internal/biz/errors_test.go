package biz

import (
	"errors"
	"net/http"
	"testing"
	"time"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"reason", ErrRateLimitExceeded("gemini", ""), true},
		{"429 code", kerrors.New(429, "SOMETHING", "slow down"), true},
		{"quota", ErrAPI(403, "Quota exceeded for metric"), true},
		{"rate limit", ErrAPI(400, "Rate limit reached"), true},
		{"rate-limit", errors.New("hit rate-limit"), true},
		{"resource_exhausted", ErrAPI(503, "RESOURCE_EXHAUSTED"), true},
		{"resource exhausted", ErrAPI(500, "Resource exhausted"), true},
		{"too many requests", ErrAPI(400, "Too Many Requests"), true},
		{"plain api error", ErrAPI(400, "invalid argument"), false},
		{"timeout", ErrTimeout(time.Second), false},
		{"cancelled", ErrCancelled(), false},
		{"service unavailable", ErrServiceUnavailable("gemini"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimitError(tt.err))
		})
	}
}

func TestErrAPI_StatusCode(t *testing.T) {
	assert.Equal(t, 404, kerrors.Code(ErrAPI(404, "not found")))
	assert.Equal(t, 503, kerrors.Code(ErrAPI(503, "unavailable")))
	assert.Equal(t, http.StatusInternalServerError, kerrors.Code(ErrAPI(0, "unknown")))
	assert.Equal(t, http.StatusInternalServerError, kerrors.Code(ErrAPI(200, "odd")))
}

func TestAsRateLimitExceeded(t *testing.T) {
	original := ErrRateLimitExceeded("gemini", "slow down")
	assert.Same(t, original, asRateLimitExceeded("relay", original))

	err := asRateLimitExceeded("gemini", ErrAPI(403, "Quota exceeded for project"))
	assert.True(t, IsRateLimitExceeded(err))
	assert.Equal(t, "Quota exceeded for project", kerrors.FromError(err).Message)
	assert.Equal(t, "gemini", kerrors.FromError(err).Metadata["provider"])

	err = asRateLimitExceeded("gemini", errors.New("upload: quota exceeded"))
	assert.True(t, IsRateLimitExceeded(err))
	assert.Equal(t, http.StatusTooManyRequests, kerrors.Code(err))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(ErrTimeout(time.Second)))
	assert.True(t, isRetryable(ErrNetwork(errors.New("eof"))))
	assert.True(t, isRetryable(ErrAPI(502, "bad gateway")))
	assert.False(t, isRetryable(ErrAPI(400, "bad request")))
	assert.False(t, isRetryable(ErrRateLimitExceeded("gemini", "quota")))
	assert.False(t, isRetryable(ErrCancelled()))
	assert.False(t, isRetryable(ErrDecoding(errors.New("eof"))))
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err    *kerrors.Error
		code   int
		reason string
	}{
		{ErrInvalidURL("x"), 400, ReasonInvalidURL},
		{ErrInvalidResponse("x"), 502, ReasonInvalidResponse},
		{ErrNoData(), 502, ReasonNoData},
		{ErrDecoding(errors.New("x")), 502, ReasonDecodingError},
		{ErrMissingAPIKey("gemini"), 500, ReasonMissingAPIKey},
		{ErrRateLimitExceeded("gemini", ""), 429, ReasonRateLimitExceeded},
		{ErrUploadFailed("x"), 502, ReasonUploadFailed},
		{ErrTimeout(0), 504, ReasonTimeout},
		{ErrCancelled(), 499, ReasonCancelled},
		{ErrServiceUnavailable("gemini"), 503, ReasonServiceUnavailable},
		{ErrNetwork(errors.New("x")), 502, ReasonNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			assert.Equal(t, tt.code, int(tt.err.Code))
			assert.Equal(t, tt.reason, tt.err.Reason)
		})
	}
}
