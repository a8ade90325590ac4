package log

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// contextKey 是用于存储 RequestContext 的私有 key 类型
type contextKey string

const requestContextKey contextKey = "puckrelay_request_context"

// RequestContext carries tracing information for one logical pipeline call.
type RequestContext struct {
	RequestID string    // short request id, e.g. 3f9c1a7be2
	Operation string    // analyze, image, ...
	Provider  string    // provider identity currently serving the call
	StartTime time.Time // when the request entered the service
}

// GenerateRequestID returns a 10 character request id derived from a UUIDv4.
func GenerateRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// WithRequestContext 将 RequestContext 注入到 Context 中
func WithRequestContext(ctx context.Context, requestID, operation string) context.Context {
	if requestID == "" {
		requestID = GenerateRequestID()
	}
	reqCtx := &RequestContext{
		RequestID: requestID,
		Operation: operation,
		StartTime: time.Now(),
	}
	return context.WithValue(ctx, requestContextKey, reqCtx)
}

// WithProvider returns a context whose RequestContext names the serving provider.
// The parent RequestContext is copied so a fallback hop does not rewrite the
// provider seen by the first attempt's logs.
func WithProvider(ctx context.Context, provider string) context.Context {
	current := *GetRequestContext(ctx)
	current.Provider = provider
	return context.WithValue(ctx, requestContextKey, &current)
}

// GetRequestContext 从 Context 中提取 RequestContext
// 如果不存在，返回一个默认的空 RequestContext
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx != nil {
		if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{RequestID: "unknown"}
}

// GetRequestID 从 Context 中提取 Request ID
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetElapsedTime 获取请求已执行时间（毫秒）
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
