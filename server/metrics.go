package server

import (
	"context"
	"time"

	"github.com/asaidimu/go-tabula/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "tabula"

// Metrics are the Prometheus collectors exposed on /metrics. They are fed by
// ledger events and by the request middleware.
type Metrics struct {
	FetchTotal      *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	ComputeTotal    *prometheus.CounterVec
	RowsReturned    *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		// Labels: ledger, status (success, failed)
		FetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ledger",
			Name:      "fetch_total",
			Help:      "Total record fetches by ledger and status",
		}, []string{"ledger", "status"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "ledger",
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching a ledger's records",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"ledger"}),
		ComputeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ledger",
			Name:      "compute_total",
			Help:      "Total view computations by ledger and status",
		}, []string{"ledger", "status"}),
		RowsReturned: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "ledger",
			Name:      "rows_returned",
			Help:      "Rows left after filtering",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"ledger"}),
		// Labels: route (the gin route pattern), method, code
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Observe records one ledger event.
func (m *Metrics) Observe(_ context.Context, e ledger.Event) error {
	switch e.Type {
	case ledger.FetchSuccess, ledger.FetchFailed:
		status := "success"
		if e.Type == ledger.FetchFailed {
			status = "failed"
		}
		m.FetchTotal.WithLabelValues(e.Ledger, status).Inc()
		if e.Duration != nil {
			m.FetchDuration.WithLabelValues(e.Ledger).Observe((time.Duration(*e.Duration) * time.Millisecond).Seconds())
		}
	case ledger.ComputeSuccess:
		m.ComputeTotal.WithLabelValues(e.Ledger, "success").Inc()
		if e.Rows != nil {
			m.RowsReturned.WithLabelValues(e.Ledger).Observe(float64(*e.Rows))
		}
	case ledger.ComputeFailed:
		m.ComputeTotal.WithLabelValues(e.Ledger, "failed").Inc()
	}
	return nil
}

// Attach subscribes the metrics to the registry's events and returns a
// function removing the subscriptions.
func (m *Metrics) Attach(r *ledger.Registry) func() {
	types := []ledger.EventType{ledger.FetchSuccess, ledger.FetchFailed, ledger.ComputeSuccess, ledger.ComputeFailed}
	ids := make([]string, 0, len(types))
	for _, t := range types {
		ids = append(ids, r.Subscribe(ledger.SubscribeOptions{
			Event:       t,
			Label:       "metrics",
			Description: "Prometheus collectors",
			Callback:    m.Observe,
		}))
	}
	return func() {
		for _, id := range ids {
			r.Unsubscribe(id)
		}
	}
}
