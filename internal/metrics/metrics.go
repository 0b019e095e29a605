// Package metrics exposes Prometheus collectors for the pool service.
package metrics

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/congo-pay/prizepool/internal/events"
	"github.com/congo-pay/prizepool/internal/fixedpoint"
)

const namespace = "prizepool"

// Metrics holds the service collectors.
type Metrics struct {
	EventsTotal         *prometheus.CounterVec
	AwardedTokens       prometheus.Counter
	ExitFeesTokens      prometheus.Counter
	DepositedTokens     *prometheus.CounterVec
	LastAward           prometheus.Gauge
	KeeperRunsTotal     *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Pool events published, by event name",
		}, []string{"event"}),
		AwardedTokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "awarded_tokens_total",
			Help:      "Tickets awarded to winners, in whole tokens",
		}),
		ExitFeesTokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exit_fees_tokens_total",
			Help:      "Exit fees kept by the pool, in whole tokens",
		}),
		DepositedTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposited_tokens_total",
			Help:      "Deposits by minted token, in whole tokens",
		}, []string{"token"}),
		LastAward: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_award_tokens",
			Help:      "Award settled when the last prize period ended, in whole tokens",
		}),
		KeeperRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keeper_runs_total",
			Help:      "Keeper job runs by job and outcome",
		}, []string{"job", "outcome"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// tokens converts base units to a float for gauges; precision loss is fine
// for dashboards.
func tokens(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(fixedpoint.Clone(v)).Float64()
	return f / 1e18
}

// Observe subscribes the collectors to bus.
func (m *Metrics) Observe(bus *events.Bus) {
	bus.SubscribeAll(func(_ context.Context, e events.Event) {
		m.EventsTotal.WithLabelValues(e.EventName()).Inc()
	})
	events.On(bus, func(_ context.Context, e events.Awarded) {
		m.AwardedTokens.Add(tokens(e.Amount))
	})
	events.On(bus, func(_ context.Context, e events.InstantWithdrawal) {
		m.ExitFeesTokens.Add(tokens(e.ExitFee))
	})
	events.On(bus, func(_ context.Context, e events.Deposited) {
		m.DepositedTokens.WithLabelValues(e.Token).Add(tokens(e.Amount))
	})
	events.On(bus, func(_ context.Context, e events.AwardStarted) {
		m.LastAward.Set(tokens(e.Award))
	})
}

// KeeperRun records the outcome of one keeper job.
func (m *Metrics) KeeperRun(job string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.KeeperRunsTotal.WithLabelValues(job, outcome).Inc()
}

// HTTP records request counts and latency by matched route.
func (m *Metrics) HTTP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		route := c.Route().Path
		m.HTTPRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}
