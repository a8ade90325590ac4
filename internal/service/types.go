package service

import "time"

// MediaInput is one media item. Data is base64 in JSON.
type MediaInput struct {
	Data     []byte `json:"data" validate:"required,min=1"`
	MIMEType string `json:"mime_type,omitempty" validate:"omitempty,max=128,contains=/"`
	// Role is inferred from MIMEType when empty.
	Role string `json:"role,omitempty" validate:"omitempty,oneof=image audio video"`
	FPS  int    `json:"fps,omitempty" validate:"gte=0,lte=60"`
}

// AnalyzeRequest is the body of POST /v1/analyze and POST /v1/images.
type AnalyzeRequest struct {
	Prompt           string        `json:"prompt" validate:"required"`
	Media            []*MediaInput `json:"media" validate:"dive,required"`
	Temperature      *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxOutputTokens  int           `json:"max_output_tokens,omitempty" validate:"gte=0"`
	ResponseMIMEType string        `json:"response_mime_type,omitempty"`
}

// AnalyzeReply carries the generated text.
type AnalyzeReply struct {
	Provider string `json:"provider"`
	Text     string `json:"text"`
	Attempts int    `json:"attempts"`
	FellBack bool   `json:"fell_back"`
}

// ImageReply carries the generated image, base64 in JSON.
type ImageReply struct {
	Provider string `json:"provider"`
	Image    []byte `json:"image"`
	MIMEType string `json:"mime_type"`
	Attempts int    `json:"attempts"`
	FellBack bool   `json:"fell_back"`
}

// ListProvidersRequest is empty.
type ListProvidersRequest struct{}

// ProviderInfo is the status of one provider.
type ProviderInfo struct {
	Identity         string     `json:"identity"`
	Role             string     `json:"role"`
	Model            string     `json:"model"`
	Selected         bool       `json:"selected"`
	BreakerState     string     `json:"breaker_state"`
	FailureCount     int        `json:"failure_count"`
	LastFailureTime  *time.Time `json:"last_failure_time,omitempty"`
	RateLimited      bool       `json:"rate_limited"`
	RateLimitHitDate string     `json:"rate_limit_hit_date,omitempty"`
}

// ListProvidersReply lists every configured provider.
type ListProvidersReply struct {
	Providers []*ProviderInfo `json:"providers"`
}

// ResetRateLimitRequest names the provider from the path.
type ResetRateLimitRequest struct {
	Provider string `json:"provider" validate:"required"`
}

// ResetRateLimitReply acknowledges a reset.
type ResetRateLimitReply struct {
	Provider string `json:"provider"`
}

// CancelRequestsRequest is empty.
type CancelRequestsRequest struct{}

// CancelRequestsReply reports how many calls were aborted.
type CancelRequestsReply struct {
	Cancelled int `json:"cancelled"`
}
