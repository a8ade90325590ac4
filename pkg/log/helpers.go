package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// SlowRequestThresholdMs marks requests that deserve a slow_request record.
// Media analysis routinely takes tens of seconds, so the bar is high.
const SlowRequestThresholdMs = 30000

// LogHelper 扩展 Kratos log.Helper，提供便捷的日志方法
// 通过在日志调用时自动添加 "type" 字段，触发 EmojiConsoleEncoder 的表情符号映射
type LogHelper struct {
	*log.Helper
}

// NewLogHelper 创建增强的日志辅助器
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

func typed(msg, logType string, kvs []interface{}) []interface{} {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	return append(allKvs, "type", logType)
}

// withRequest prefixes msg with the request id and appends request fields.
func withRequest(ctx context.Context, msg, logType string, kvs []interface{}) []interface{} {
	reqCtx := GetRequestContext(ctx)
	allKvs := append([]interface{}{"msg", fmt.Sprintf("[%s] %s", reqCtx.RequestID, msg)}, kvs...)
	allKvs = append(allKvs, "request_id", reqCtx.RequestID)
	if reqCtx.Provider != "" {
		allKvs = append(allKvs, "provider", reqCtx.Provider)
	}
	return append(allKvs, "type", logType)
}

// API 记录 API 相关日志（表情符号: 🔗）
func (h *LogHelper) API(ctx context.Context, msg string, kvs ...interface{}) {
	h.Infow(withRequest(ctx, msg, "api", kvs)...)
}

// Retry 记录重试日志（表情符号: 🔁）
func (h *LogHelper) Retry(ctx context.Context, msg string, kvs ...interface{}) {
	h.Warnw(withRequest(ctx, msg, "retry", kvs)...)
}

// Upload 记录媒体上传日志（表情符号: 📤）
func (h *LogHelper) Upload(ctx context.Context, msg string, kvs ...interface{}) {
	h.Infow(withRequest(ctx, msg, "upload", kvs)...)
}

// Fallback 记录服务商切换日志（表情符号: 🔀）
func (h *LogHelper) Fallback(ctx context.Context, msg string, kvs ...interface{}) {
	h.Warnw(withRequest(ctx, msg, "fallback", kvs)...)
}

// Cancel 记录取消日志（表情符号: 🛑）
func (h *LogHelper) Cancel(ctx context.Context, msg string, kvs ...interface{}) {
	h.Infow(withRequest(ctx, msg, "cancel", kvs)...)
}

// RateLimit 记录速率限制日志（表情符号: 🚦）
func (h *LogHelper) RateLimit(msg string, kvs ...interface{}) {
	h.Warnw(typed(msg, "rate_limit", kvs)...)
}

// Breaker 记录熔断器状态变化日志（表情符号: 🧯）
func (h *LogHelper) Breaker(msg string, kvs ...interface{}) {
	h.Warnw(typed(msg, "breaker", kvs)...)
}

// Success 记录成功操作日志（表情符号: ✅）
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	h.Infow(typed(msg, "success", kvs)...)
}

// Redis 记录 Redis 操作日志（表情符号: 📦）
func (h *LogHelper) Redis(msg string, kvs ...interface{}) {
	h.Debugw(typed(msg, "redis", kvs)...)
}

// Database 记录数据库操作日志（表情符号: 💾）
func (h *LogHelper) Database(msg string, kvs ...interface{}) {
	h.Debugw(typed(msg, "database", kvs)...)
}

// Scheduler 记录调度器相关日志（表情符号: 🎯）
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	h.Infow(typed(msg, "scheduler", kvs)...)
}

// Startup 记录启动相关日志（表情符号: 🚀）
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.Infow(typed(msg, "startup", kvs)...)
}

// SlowRequest 记录慢请求警告（表情符号: 🐌）
func (h *LogHelper) SlowRequest(ctx context.Context, method, url string, duration, threshold int64, kvs ...interface{}) {
	msg := fmt.Sprintf("Slow request detected | %s %s | %dms (threshold: %dms)", method, url, duration, threshold)
	allKvs := append(kvs,
		"method", method,
		"url", url,
		"duration_ms", duration,
		"threshold_ms", threshold,
	)
	h.Warnw(withRequest(ctx, msg, "slow_request", allKvs)...)
}

// RequestWithContext 记录带 Context 的 HTTP 请求日志
// 自动从 Context 提取 Request ID 并检测慢请求
func (h *LogHelper) RequestWithContext(ctx context.Context, method, url string, status int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("%s %s - %d (%dms)", method, url, status, durationMs)
	allKvs := append(kvs,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(withRequest(ctx, msg, "request", allKvs)...)

	if durationMs > SlowRequestThresholdMs {
		h.SlowRequest(ctx, method, url, durationMs, SlowRequestThresholdMs)
	}
}
