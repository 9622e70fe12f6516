package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/voltride/ebike-backend/internal/payments"
	"github.com/voltride/ebike-backend/pkg/db/models"
	"github.com/voltride/ebike-backend/pkg/logger"
)

const (
	defaultPaymentExpiry = 24 * time.Hour
	defaultExpiryBatch   = 200
	paymentExpiryNote    = "payment window elapsed"
	paymentExpiryJobName = "payment-expiry"
)

// PaymentExpiryJobParams configure the stale payment sweeper.
type PaymentExpiryJobParams struct {
	Logger     *logger.Logger
	Candidates expiryCandidateReader
	Payments   paymentExpirer
	After      time.Duration
	BatchSize  int
}

type expiryCandidateReader interface {
	ListExpiryCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
}

type paymentExpirer interface {
	Expire(ctx context.Context, paymentID uuid.UUID, note string) (payments.ExpiryResult, error)
}

// NewPaymentExpiryJob builds the job that cancels online payments nobody
// completed in time and closes their orders.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Candidates == nil {
		return nil, fmt.Errorf("payment candidate reader required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment service required")
	}
	after := params.After
	if after <= 0 {
		after = defaultPaymentExpiry
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &paymentExpiryJob{
		logg:       params.Logger,
		candidates: params.Candidates,
		payments:   params.Payments,
		after:      after,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type paymentExpiryJob struct {
	logg       *logger.Logger
	candidates expiryCandidateReader
	payments   paymentExpirer
	after      time.Duration
	batch      int
	now        func() time.Time
}

func (j *paymentExpiryJob) Name() string { return paymentExpiryJobName }

// Run walks the candidates once. Every payment is expired in its own
// transaction so one failure never blocks the rest of the sweep.
func (j *paymentExpiryJob) Run(ctx context.Context) (Tally, error) {
	cutoff := j.now().UTC().Add(-j.after)
	rows, err := j.candidates.ListExpiryCandidates(ctx, cutoff, j.batch)
	if err != nil {
		return Tally{}, fmt.Errorf("query expiry candidates: %w", err)
	}

	var (
		errs  error
		tally Tally
	)
	for _, payment := range rows {
		payCtx := j.logg.WithPaymentID(ctx, payment.ID.String())
		payCtx = j.logg.WithOrderID(payCtx, payment.OrderID.String())
		res, err := j.payments.Expire(payCtx, payment.ID, paymentExpiryNote)
		if err != nil {
			j.logg.Error(payCtx, "payment expiry failed", err)
			errs = multierr.Append(errs, fmt.Errorf("expire payment %s: %w", payment.ID, err))
			continue
		}
		if res.PaymentCancelled {
			tally.PaymentsExpired++
		}
		if res.OrderCancelled {
			tally.OrdersCancelled++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"candidates":       len(rows),
		"payments_expired": tally.PaymentsExpired,
		"orders_cancelled": tally.OrdersCancelled,
	}), "payment expiry sweep complete")
	return tally, errs
}
