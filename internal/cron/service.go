package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voltride/ebike-backend/pkg/logger"
	"github.com/voltride/ebike-backend/pkg/metrics"
)

const defaultInterval = time.Hour

// Job is one maintenance sweep run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) (Tally, error)
}

// Tally counts the rows a sweep changed. A failed sweep still reports
// what it managed before the error.
type Tally struct {
	PaymentsExpired int
	OrdersCancelled int
	OutboxPurged    int64
}

func (t Tally) add(o Tally) Tally {
	return Tally{
		PaymentsExpired: t.PaymentsExpired + o.PaymentsExpired,
		OrdersCancelled: t.OrdersCancelled + o.OrdersCancelled,
		OutboxPurged:    t.OutboxPurged + o.OutboxPurged,
	}
}

type ServiceParams struct {
	Logger   *logger.Logger
	Jobs     []Job
	Lock     Lock
	Metrics  *metrics.CommerceMetrics
	Interval time.Duration
}

// Service runs every job once per interval while holding the sweep lock,
// so only one worker replica expires payments at a time.
type Service struct {
	logg     *logger.Logger
	jobs     []Job
	lock     Lock
	metrics  *metrics.CommerceMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	jobs := make([]Job, 0, len(params.Jobs))
	for _, job := range params.Jobs {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("at least one job required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		jobs:     jobs,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "sweep cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) (Tally, error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return Tally{}, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "sweep lock held by another worker; skipping cycle")
		return Tally{}, nil
	}
	defer func() {
		// release even when shutdown cancelled ctx mid-cycle
		relErr := s.lock.Release(context.WithoutCancel(ctx))
		switch {
		case errors.Is(relErr, ErrLockLost):
			s.logg.Warn(s.logg.WithField(ctx, "interval", s.interval.String()), "sweep outlived its lock ttl")
		case relErr != nil:
			s.logg.Error(ctx, "failed to release sweep lock", relErr)
		}
	}()

	var total Tally
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			break
		}
		total = total.add(s.runJob(ctx, job))
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payments_expired": total.PaymentsExpired,
		"orders_cancelled": total.OrdersCancelled,
		"outbox_purged":    total.OutboxPurged,
	}), "sweep cycle complete")
	return total, nil
}

func (s *Service) runJob(ctx context.Context, job Job) Tally {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	start := time.Now()
	tally, err := job.Run(jobCtx)
	elapsed := time.Since(start)

	s.metrics.ObserveSweep(metrics.SweepResult{
		Job:             job.Name(),
		Duration:        elapsed,
		Failed:          err != nil,
		PaymentsExpired: tally.PaymentsExpired,
		OrdersCancelled: tally.OrdersCancelled,
		OutboxPurged:    tally.OutboxPurged,
	})

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
	} else {
		s.logg.Info(jobCtx, "job completed")
	}
	return tally
}
