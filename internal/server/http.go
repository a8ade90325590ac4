package server

import (
	"PuckRelay/internal/conf"
	"PuckRelay/internal/server/middleware"
	"PuckRelay/internal/service"
	pkglog "PuckRelay/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, analysisService *service.AnalysisService, healthService *service.HealthService, logger log.Logger) *http.Server {
	// 创建增强的日志辅助器
	logHelper := pkglog.NewLogHelper(logger)

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logHelper), // 请求日志中间件：记录请求方法、路径、耗时
		),
	}
	if c != nil && c.HTTP != nil {
		if c.HTTP.Network != "" {
			opts = append(opts, http.Network(c.HTTP.Network))
		}
		if c.HTTP.Addr != "" {
			opts = append(opts, http.Address(c.HTTP.Addr))
		}
		if c.HTTP.Timeout > 0 {
			opts = append(opts, http.Timeout(c.HTTP.Timeout))
		}
	}
	srv := http.NewServer(opts...)

	service.RegisterAnalysisHTTPServer(srv, analysisService)
	service.RegisterHealthHTTPServer(srv, healthService)

	return srv
}
