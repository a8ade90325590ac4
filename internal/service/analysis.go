package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"PuckRelay/internal/biz"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-playground/validator/v10"
)

// AnalysisService implements AnalysisHTTPServer.
type AnalysisService struct {
	uc       *biz.AnalysisUsecase
	validate *validator.Validate
	logger   *log.Helper
}

// NewAnalysisService creates a new AnalysisService instance.
func NewAnalysisService(uc *biz.AnalysisUsecase, logger log.Logger) *AnalysisService {
	return &AnalysisService{
		uc:       uc,
		validate: validator.New(),
		logger:   log.NewHelper(logger),
	}
}

// Analyze returns a text answer about the media.
func (s *AnalysisService) Analyze(ctx context.Context, req *AnalyzeRequest) (*AnalyzeReply, error) {
	payload, err := s.toPayload(req)
	if err != nil {
		return nil, err
	}
	s.logger.Debugw("msg", "Analyze called", "media", len(payload.Media))

	result, err := s.uc.Analyze(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &AnalyzeReply{
		Provider: result.Provider,
		Text:     result.Text,
		Attempts: result.Attempts,
		FellBack: result.FellBack,
	}, nil
}

// GenerateImage returns a generated image.
func (s *AnalysisService) GenerateImage(ctx context.Context, req *AnalyzeRequest) (*ImageReply, error) {
	payload, err := s.toPayload(req)
	if err != nil {
		return nil, err
	}
	s.logger.Debugw("msg", "GenerateImage called", "media", len(payload.Media))

	result, err := s.uc.GenerateImage(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &ImageReply{
		Provider: result.Provider,
		Image:    result.Image,
		MIMEType: result.ImageMIMEType,
		Attempts: result.Attempts,
		FellBack: result.FellBack,
	}, nil
}

// ListProviders reports breaker and rate limit state of every provider.
func (s *AnalysisService) ListProviders(ctx context.Context, _ *ListProvidersRequest) (*ListProvidersReply, error) {
	statuses := s.uc.ProviderStatuses(ctx)
	reply := &ListProvidersReply{Providers: make([]*ProviderInfo, 0, len(statuses))}
	for _, st := range statuses {
		reply.Providers = append(reply.Providers, &ProviderInfo{
			Identity:         st.Identity,
			Role:             st.Role,
			Model:            st.Model,
			Selected:         st.Selected,
			BreakerState:     st.Breaker.State.String(),
			FailureCount:     st.Breaker.FailureCount,
			LastFailureTime:  st.Breaker.LastFailureTime,
			RateLimited:      st.RateLimit.AtLimit,
			RateLimitHitDate: st.RateLimit.HitDate,
		})
	}
	return reply, nil
}

// ResetRateLimit clears a provider's rate limit record.
func (s *AnalysisService) ResetRateLimit(ctx context.Context, req *ResetRateLimitRequest) (*ResetRateLimitReply, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	s.logger.Infow("msg", "ResetRateLimit called", "provider", req.Provider)

	if err := s.uc.ResetRateLimit(ctx, req.Provider); err != nil {
		return nil, err
	}
	return &ResetRateLimitReply{Provider: req.Provider}, nil
}

// CancelRequests aborts every in-flight request.
func (s *AnalysisService) CancelRequests(ctx context.Context, _ *CancelRequestsRequest) (*CancelRequestsReply, error) {
	n := s.uc.CancelAll(ctx)
	s.logger.Infow("msg", "CancelRequests called", "cancelled", n)
	return &CancelRequestsReply{Cancelled: n}, nil
}

func (s *AnalysisService) toPayload(req *AnalyzeRequest) (*biz.AnalysisPayload, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	payload := &biz.AnalysisPayload{
		Prompt:           req.Prompt,
		Media:            make([]biz.MediaItem, 0, len(req.Media)),
		Temperature:      req.Temperature,
		MaxOutputTokens:  req.MaxOutputTokens,
		ResponseMIMEType: req.ResponseMIMEType,
	}
	for _, m := range req.Media {
		payload.Media = append(payload.Media, biz.MediaItem{
			Data:     m.Data,
			MIMEType: m.MIMEType,
			Role:     mediaRole(m),
			FPS:      m.FPS,
		})
	}
	return payload, nil
}

// mediaRole falls back to the MIME type family when no role is given.
func mediaRole(m *MediaInput) biz.MediaRole {
	if m.Role != "" {
		return biz.MediaRole(m.Role)
	}
	switch {
	case strings.HasPrefix(m.MIMEType, "video/"):
		return biz.MediaVideo
	case strings.HasPrefix(m.MIMEType, "audio/"):
		return biz.MediaAudio
	default:
		return biz.MediaImage
	}
}

func (s *AnalysisService) validateStruct(req interface{}) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return kerrors.BadRequest("INVALID_ARGUMENT", err.Error())
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return kerrors.BadRequest("INVALID_ARGUMENT", "invalid fields: "+strings.Join(fields, ", "))
}
