package service

import (
	"context"

	"github.com/go-kratos/kratos/v2/transport/http"
)

const OperationHealthCheck = "/puckrelay.v1.Health/Check"

// HealthHTTPServer is the liveness surface.
type HealthHTTPServer interface {
	Check(context.Context, *HealthRequest) (*HealthReply, error)
}

// RegisterHealthHTTPServer mounts GET /healthz on s.
func RegisterHealthHTTPServer(s *http.Server, srv HealthHTTPServer) {
	r := s.Route("/")
	r.GET("/healthz", healthCheckHandler(srv))
}

func healthCheckHandler(srv HealthHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in HealthRequest
		http.SetOperation(ctx, OperationHealthCheck)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.Check(ctx, req.(*HealthRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*HealthReply))
	}
}
