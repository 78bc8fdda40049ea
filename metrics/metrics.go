// Package metrics provides Prometheus metrics for the CRM gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels for metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// Registry holds every gateway metric plus the Go and process collectors.
	Registry = prometheus.NewRegistry()

	// LoginTotal counts login exchanges against the CRM.
	LoginTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm_gateway",
			Subsystem: "token",
			Name:      "logins_total",
			Help:      "Total number of CRM login exchanges",
		},
		[]string{"result"},
	)

	// TokenExpiryGauge is the expiry of the cached token as a Unix timestamp.
	TokenExpiryGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crm_gateway",
			Subsystem: "token",
			Name:      "expiry_timestamp_seconds",
			Help:      "Expiry of the cached CRM token (Unix seconds)",
		},
	)

	// UpstreamRequestsTotal counts forwarded calls by route.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm_gateway",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of calls forwarded to the CRM",
		},
		[]string{"route", "result"},
	)

	// UpstreamDuration observes forwarded call latency by route.
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crm_gateway",
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Latency of calls forwarded to the CRM",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// AttachmentsTotal counts individual file uploads.
	AttachmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm_gateway",
			Subsystem: "attachments",
			Name:      "files_total",
			Help:      "Total number of attachment files sent to the CRM",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		LoginTotal,
		TokenExpiryGauge,
		UpstreamRequestsTotal,
		UpstreamDuration,
		AttachmentsTotal,
	)
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func result(success bool) string {
	if success {
		return ResultSuccess
	}
	return ResultFailure
}

// IncrementLogin records one login exchange.
func IncrementLogin(success bool) {
	LoginTotal.WithLabelValues(result(success)).Inc()
}

// SetTokenExpiry records when the cached token expires.
func SetTokenExpiry(expiresAt time.Time) {
	TokenExpiryGauge.Set(float64(expiresAt.Unix()))
}

// ObserveUpstream records one forwarded call.
func ObserveUpstream(route string, success bool, d time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(route, result(success)).Inc()
	UpstreamDuration.WithLabelValues(route).Observe(d.Seconds())
}

// IncrementAttachment records one uploaded or failed file.
func IncrementAttachment(success bool) {
	AttachmentsTotal.WithLabelValues(result(success)).Inc()
}
