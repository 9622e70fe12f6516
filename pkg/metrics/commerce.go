package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CommerceMetrics counts checkout and payment webhook outcomes and what the
// maintenance sweeps change.
type CommerceMetrics struct {
	checkout *prometheus.CounterVec
	webhook  *prometheus.CounterVec

	sweepDuration   *prometheus.HistogramVec
	sweepRuns       *prometheus.CounterVec
	paymentsExpired prometheus.Counter
	ordersCancelled prometheus.Counter
	outboxPurged    prometheus.Counter
}

// SweepResult is one job run inside a cron cycle.
type SweepResult struct {
	Job             string
	Duration        time.Duration
	Failed          bool
	PaymentsExpired int
	OrdersCancelled int
	OutboxPurged    int64
}

// NewCommerceMetrics registers the commerce counters on the provided registerer.
func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	checkout := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_total",
		Help: "Checkout attempts by outcome (success, partial, failed, rejected).",
	}, []string{"outcome"})
	webhook := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_total",
		Help: "Payment gateway webhook deliveries by outcome.",
	}, []string{"outcome"})
	m := &CommerceMetrics{
		checkout: checkout,
		webhook:  webhook,
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of maintenance sweeps.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Maintenance sweep runs by job and result (ok, failed).",
		}, []string{"job", "result"}),
		paymentsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sweep_payments_expired_total",
			Help: "Online payments cancelled because their window elapsed.",
		}),
		ordersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sweep_orders_cancelled_total",
			Help: "Unpaid orders cancelled by the payment expiry sweep.",
		}),
		outboxPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sweep_outbox_purged_total",
			Help: "Published outbox rows deleted by the retention sweep.",
		}),
	}
	reg.MustRegister(checkout, webhook, m.sweepDuration, m.sweepRuns, m.paymentsExpired, m.ordersCancelled, m.outboxPurged)
	return m
}

func (c *CommerceMetrics) IncCheckout(outcome string) {
	if c == nil || c.checkout == nil {
		return
	}
	c.checkout.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (c *CommerceMetrics) IncWebhook(outcome string) {
	if c == nil || c.webhook == nil {
		return
	}
	c.webhook.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveSweep records one sweep run. Partial counts from a failed run are kept.
func (c *CommerceMetrics) ObserveSweep(r SweepResult) {
	if c == nil || c.sweepRuns == nil {
		return
	}
	job := normalizeLabel(r.Job)
	result := "ok"
	if r.Failed {
		result = "failed"
	}
	c.sweepDuration.WithLabelValues(job).Observe(r.Duration.Seconds())
	c.sweepRuns.WithLabelValues(job, result).Inc()
	c.paymentsExpired.Add(float64(r.PaymentsExpired))
	c.ordersCancelled.Add(float64(r.OrdersCancelled))
	c.outboxPurged.Add(float64(r.OutboxPurged))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// Handler exposes the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
