package service

import (
	"context"

	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	OperationAnalysisAnalyze        = "/puckrelay.v1.Analysis/Analyze"
	OperationAnalysisGenerateImage  = "/puckrelay.v1.Analysis/GenerateImage"
	OperationAnalysisListProviders  = "/puckrelay.v1.Analysis/ListProviders"
	OperationAnalysisResetRateLimit = "/puckrelay.v1.Analysis/ResetRateLimit"
	OperationAnalysisCancelRequests = "/puckrelay.v1.Analysis/CancelRequests"
)

// AnalysisHTTPServer is the HTTP surface of the pipeline.
type AnalysisHTTPServer interface {
	Analyze(context.Context, *AnalyzeRequest) (*AnalyzeReply, error)
	GenerateImage(context.Context, *AnalyzeRequest) (*ImageReply, error)
	ListProviders(context.Context, *ListProvidersRequest) (*ListProvidersReply, error)
	ResetRateLimit(context.Context, *ResetRateLimitRequest) (*ResetRateLimitReply, error)
	CancelRequests(context.Context, *CancelRequestsRequest) (*CancelRequestsReply, error)
}

// RegisterAnalysisHTTPServer mounts the routes on s.
func RegisterAnalysisHTTPServer(s *http.Server, srv AnalysisHTTPServer) {
	r := s.Route("/")
	r.POST("/v1/analyze", analysisAnalyzeHandler(srv))
	r.POST("/v1/images", analysisGenerateImageHandler(srv))
	r.GET("/v1/providers", analysisListProvidersHandler(srv))
	r.DELETE("/v1/providers/{provider}/rate-limit", analysisResetRateLimitHandler(srv))
	r.POST("/v1/requests/cancel", analysisCancelRequestsHandler(srv))
}

func analysisAnalyzeHandler(srv AnalysisHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in AnalyzeRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationAnalysisAnalyze)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.Analyze(ctx, req.(*AnalyzeRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*AnalyzeReply))
	}
}

func analysisGenerateImageHandler(srv AnalysisHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in AnalyzeRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationAnalysisGenerateImage)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GenerateImage(ctx, req.(*AnalyzeRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*ImageReply))
	}
}

func analysisListProvidersHandler(srv AnalysisHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in ListProvidersRequest
		http.SetOperation(ctx, OperationAnalysisListProviders)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ListProviders(ctx, req.(*ListProvidersRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*ListProvidersReply))
	}
}

func analysisResetRateLimitHandler(srv AnalysisHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in ResetRateLimitRequest
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationAnalysisResetRateLimit)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ResetRateLimit(ctx, req.(*ResetRateLimitRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*ResetRateLimitReply))
	}
}

func analysisCancelRequestsHandler(srv AnalysisHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in CancelRequestsRequest
		http.SetOperation(ctx, OperationAnalysisCancelRequests)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.CancelRequests(ctx, req.(*CancelRequestsRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*CancelRequestsReply))
	}
}
