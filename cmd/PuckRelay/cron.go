package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"PuckRelay/internal/biz"
	"PuckRelay/internal/conf"
	pkglog "PuckRelay/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// 每天参考时区 00:05 执行（秒 分 时 日 月 周）
const defaultSweepSpec = "0 5 0 * * *"

const sweepTimeout = time.Minute

// RateLimitSweeper clears stale rate limit records shortly after the daily
// quota reset. It implements transport.Server so the app starts and stops it.
type RateLimitSweeper struct {
	cron  *cron.Cron
	sweep func(ctx context.Context) []string
	log   *pkglog.LogHelper
}

func newRateLimitSweeper(c *conf.Data, uc *biz.AnalysisUsecase, tracker *biz.RateLimitTracker, logger log.Logger) (*RateLimitSweeper, error) {
	spec := defaultSweepSpec
	if c != nil && c.RateLimit != nil && c.RateLimit.SweepCron != "" {
		spec = c.RateLimit.SweepCron
	}
	return newSweeper(spec, tracker.Location(), uc.SweepRateLimits, logger)
}

func newSweeper(spec string, loc *time.Location, sweep func(ctx context.Context) []string, logger log.Logger) (*RateLimitSweeper, error) {
	s := &RateLimitSweeper{
		cron:  cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		sweep: sweep,
		log:   pkglog.NewLogHelper(logger),
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid rate limit sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *RateLimitSweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	limited := s.sweep(ctx)
	s.log.Scheduler("rate limit sweep ran", "still_limited", strings.Join(limited, ","))
}

// Start runs one sweep immediately and then follows the schedule.
func (s *RateLimitSweeper) Start(context.Context) error {
	s.run()
	s.cron.Start()
	s.log.Scheduler("rate limit sweeper started", "next_run", s.cron.Entries()[0].Next.Format(time.RFC3339))
	return nil
}

// Stop waits for a running sweep to finish.
func (s *RateLimitSweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
