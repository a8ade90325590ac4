// Package middleware provides HTTP middleware for request logging.
package middleware

import (
	"context"
	"strings"

	pkglog "PuckRelay/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Logging 返回一个记录 HTTP 请求日志的中间件
// 自动生成 Request ID、检测慢请求、注入 Request Context
//
// 日志输出示例:
//
//	🟢 POST /v1/analyze - 200 (5420ms) | RequestID: 3f9c1a7be2
//	🐌 [3f9c1a7be2] Slow request detected | POST /v1/analyze | 43438ms
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			var (
				method    string
				path      string
				operation string
				ip        string
				userAgent string
				requestID string
			)

			// 提取请求信息
			if tr, ok := transport.FromServerContext(ctx); ok {
				operation = tr.Operation()
				method = operation
				path = operation

				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					if httpReq.URL.RawQuery != "" {
						path = path + "?" + httpReq.URL.RawQuery
					}
					ip = extractClientIP(httpReq)
					userAgent = httpReq.Header.Get("User-Agent")
					requestID = httpReq.Header.Get(RequestIDHeader)
				}

				if requestID == "" {
					requestID = pkglog.GenerateRequestID()
				}
				tr.ReplyHeader().Set(RequestIDHeader, requestID)
			}

			// 后续所有日志调用都可以从 Context 提取 Request ID
			ctx = pkglog.WithRequestContext(ctx, requestID, operationName(operation))

			reply, err := handler(ctx, req)

			duration := pkglog.GetElapsedTime(ctx)
			status := extractHTTPStatus(err)

			kvs := []interface{}{"ip", ip, "user_agent", userAgent}
			if err != nil {
				kvs = append(kvs, "reason", errors.Reason(err))
			}
			logger.RequestWithContext(ctx, method, path, status, duration, kvs...)

			return reply, err
		}
	}
}

// extractClientIP 从请求中提取客户端真实 IP
// 优先级: X-Real-IP > X-Forwarded-For > RemoteAddr
func extractClientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	// 取第一个 IP
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}

	return req.RemoteAddr
}

// extractHTTPStatus 从 Kratos 错误中提取 HTTP 状态码
func extractHTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	return int(errors.FromError(err).Code)
}

// operationName trims "/puckrelay.v1.Analysis/Analyze" to "Analyze".
func operationName(operation string) string {
	if i := strings.LastIndex(operation, "/"); i >= 0 {
		return operation[i+1:]
	}
	return operation
}
