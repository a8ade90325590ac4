package biz

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
)

// Error reasons of the request pipeline.
const (
	ReasonInvalidURL         = "INVALID_URL"
	ReasonInvalidResponse    = "INVALID_RESPONSE"
	ReasonNoData             = "NO_DATA"
	ReasonDecodingError      = "DECODING_ERROR"
	ReasonAPIError           = "API_ERROR"
	ReasonMissingAPIKey      = "MISSING_API_KEY"
	ReasonRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ReasonUploadFailed       = "UPLOAD_FAILED"
	ReasonTimeout            = "TIMEOUT"
	ReasonCancelled          = "CANCELLED"
	ReasonServiceUnavailable = "SERVICE_UNAVAILABLE"
	ReasonNetworkError       = "NETWORK_ERROR"
)

// StatusClientClosedRequest is the nginx convention for a request the caller abandoned.
const StatusClientClosedRequest = 499

// rateLimitTokens are matched case-insensitively against error messages from
// providers that do not answer with a clean 429.
var rateLimitTokens = []string{
	"quota",
	"rate limit",
	"rate-limit",
	"resource_exhausted",
	"resource exhausted",
	"too many requests",
}

func ErrInvalidURL(detail string) *errors.Error {
	return errors.New(http.StatusBadRequest, ReasonInvalidURL, "invalid provider url: "+detail)
}

func ErrInvalidResponse(detail string) *errors.Error {
	return errors.New(http.StatusBadGateway, ReasonInvalidResponse, "invalid response from provider: "+detail)
}

func ErrNoData() *errors.Error {
	return errors.New(http.StatusBadGateway, ReasonNoData, "provider returned no data")
}

func ErrDecoding(cause error) *errors.Error {
	return errors.New(http.StatusBadGateway, ReasonDecodingError, "failed to decode provider response").WithCause(cause)
}

// ErrAPI carries the upstream status code; unknown codes map to 500.
func ErrAPI(statusCode int, message string) *errors.Error {
	if statusCode < 400 || statusCode > 599 {
		statusCode = http.StatusInternalServerError
	}
	return errors.New(statusCode, ReasonAPIError, message)
}

func ErrMissingAPIKey(provider string) *errors.Error {
	return errors.New(http.StatusInternalServerError, ReasonMissingAPIKey, "no api key configured").
		WithMetadata(map[string]string{"provider": provider})
}

func ErrRateLimitExceeded(provider, message string) *errors.Error {
	if message == "" {
		message = "rate limit exceeded"
	}
	return errors.New(http.StatusTooManyRequests, ReasonRateLimitExceeded, message).
		WithMetadata(map[string]string{"provider": provider})
}

func ErrUploadFailed(format string, args ...any) *errors.Error {
	return errors.New(http.StatusBadGateway, ReasonUploadFailed, fmt.Sprintf(format, args...))
}

func ErrTimeout(timeout time.Duration) *errors.Error {
	if timeout <= 0 {
		return errors.New(http.StatusGatewayTimeout, ReasonTimeout, "request timed out")
	}
	return errors.New(http.StatusGatewayTimeout, ReasonTimeout, "request timed out after "+timeout.String())
}

func ErrCancelled() *errors.Error {
	return errors.New(StatusClientClosedRequest, ReasonCancelled, "request cancelled")
}

func ErrServiceUnavailable(provider string) *errors.Error {
	return errors.New(http.StatusServiceUnavailable, ReasonServiceUnavailable, "service temporarily unavailable, circuit open").
		WithMetadata(map[string]string{"provider": provider})
}

func ErrNetwork(cause error) *errors.Error {
	return errors.New(http.StatusBadGateway, ReasonNetworkError, "network error talking to provider").WithCause(cause)
}

func IsRateLimitExceeded(err error) bool  { return errors.Reason(err) == ReasonRateLimitExceeded }
func IsServiceUnavailable(err error) bool { return errors.Reason(err) == ReasonServiceUnavailable }
func IsTimeout(err error) bool            { return errors.Reason(err) == ReasonTimeout }
func IsCancelled(err error) bool          { return errors.Reason(err) == ReasonCancelled }
func IsUploadFailed(err error) bool       { return errors.Reason(err) == ReasonUploadFailed }
func IsDecodingError(err error) bool      { return errors.Reason(err) == ReasonDecodingError }
func IsAPIError(err error) bool           { return errors.Reason(err) == ReasonAPIError }
func IsMissingAPIKey(err error) bool      { return errors.Reason(err) == ReasonMissingAPIKey }
func IsNetworkError(err error) bool       { return errors.Reason(err) == ReasonNetworkError }
func IsNoData(err error) bool             { return errors.Reason(err) == ReasonNoData }
func IsInvalidURL(err error) bool         { return errors.Reason(err) == ReasonInvalidURL }
func IsInvalidResponse(err error) bool    { return errors.Reason(err) == ReasonInvalidResponse }

// IsRateLimitError reports whether err means the provider's quota is exhausted,
// either by reason/code or by the wording of the provider message.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimitExceeded(err) {
		return true
	}
	if e := errors.FromError(err); e != nil && e.Code == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	if e := errors.FromError(err); e != nil {
		msg = strings.ToLower(e.Message)
	}
	for _, token := range rateLimitTokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

// asRateLimitExceeded re-tags a rate limit error detected by its wording so
// callers see RATE_LIMIT_EXCEEDED with the provider that produced it.
func asRateLimitExceeded(provider string, err error) error {
	if IsRateLimitExceeded(err) {
		return err
	}
	msg := err.Error()
	if e := errors.FromError(err); e != nil {
		msg = e.Message
	}
	return ErrRateLimitExceeded(provider, msg).WithCause(err)
}

// isRetryable reports whether a failed attempt may be retried.
func isRetryable(err error) bool {
	if IsTimeout(err) || IsNetworkError(err) {
		return true
	}
	if IsAPIError(err) {
		return errors.Code(err) >= 500
	}
	return false
}

// errorReason returns the kratos reason of err, or its text for foreign errors.
func errorReason(err error) string {
	if reason := errors.Reason(err); reason != "" {
		return reason
	}
	return err.Error()
}
