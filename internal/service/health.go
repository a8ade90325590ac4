package service

import (
	"context"

	"PuckRelay/internal/biz"
)

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
)

// HealthRequest is empty.
type HealthRequest struct{}

// HealthReply reports storage reachability and open circuits.
type HealthReply struct {
	Status       string          `json:"status"`
	Storage      map[string]bool `json:"storage"`
	OpenCircuits []string        `json:"open_circuits,omitempty"`
}

// HealthService implements HealthHTTPServer.
type HealthService struct {
	uc *biz.HealthUsecase
}

// NewHealthService creates a HealthService.
func NewHealthService(uc *biz.HealthUsecase) *HealthService {
	return &HealthService{uc: uc}
}

// Check always answers 200; a degraded backend is reported in the body.
func (s *HealthService) Check(ctx context.Context, _ *HealthRequest) (*HealthReply, error) {
	report := s.uc.Check(ctx)
	reply := &HealthReply{
		Status:       HealthStatusOK,
		Storage:      report.Storage,
		OpenCircuits: report.OpenCircuits,
	}
	if report.Degraded {
		reply.Status = HealthStatusDegraded
	}
	return reply, nil
}
