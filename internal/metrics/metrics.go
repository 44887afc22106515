// Package metrics owns the prometheus collectors for the portal.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	Registry          *prometheus.Registry
	Redemptions       *prometheus.CounterVec
	Purchases         *prometheus.CounterVec
	SessionsExpired   prometheus.Counter
	VouchersGenerated prometheus.Counter
	HTTPDuration      *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, plus the Go and process
// collectors, so tests can create as many as they like.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "voucher_redemptions_total",
			Help:      "Voucher redemption attempts by result.",
		}, []string{"result"}),
		Purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "purchases_total",
			Help:      "Package purchases by result.",
		}, []string{"result"}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "sessions_expired_total",
			Help:      "Sessions deactivated by the expiry sweep.",
		}),
		VouchersGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "vouchers_generated_total",
			Help:      "Vouchers created by batch generation.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Redemptions,
		m.Purchases,
		m.SessionsExpired,
		m.VouchersGenerated,
		m.HTTPDuration,
	)
	return m
}

func (m *Metrics) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}

func (m *Metrics) Redeemed(result string) {
	if m == nil {
		return
	}
	m.Redemptions.WithLabelValues(result).Inc()
}

func (m *Metrics) Purchased(result string) {
	if m == nil {
		return
	}
	m.Purchases.WithLabelValues(result).Inc()
}

func (m *Metrics) Expired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsExpired.Add(float64(n))
}

func (m *Metrics) Generated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.VouchersGenerated.Add(float64(n))
}
