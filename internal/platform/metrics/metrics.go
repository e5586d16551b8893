package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	Logins          prometheus.Counter
	LoginFailures   prometheus.Counter
	ActiveSessions  prometheus.Gauge
	SessionRenewals prometheus.Counter
	TokenRefreshes  prometheus.Counter
	ForcedSignOuts  prometheus.Counter
	BackendRequests *prometheus.CounterVec
	BackendLatency  *prometheus.HistogramVec
	IdleSignOuts    prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		Logins: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gateway_logins_total",
			Help: "Total number of successful credential exchanges",
		}),
		LoginFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gateway_login_failures_total",
			Help: "Total number of failed credential exchanges",
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_active_sessions",
			Help: "Current number of live sessions",
		}),
		SessionRenewals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gateway_session_renewals_total",
			Help: "Total number of sliding session renewals",
		}),
		TokenRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gateway_token_refreshes_total",
			Help: "Total number of backend token refresh attempts",
		}),
		ForcedSignOuts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gateway_forced_sign_outs_total",
			Help: "Total number of sign-outs forced by auth failures",
		}),
		BackendRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_backend_requests_total",
			Help: "Backend requests by method and status",
		}, []string{"method", "status"}),
		BackendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_backend_latency_seconds",
			Help:    "Latency of backend requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		IdleSignOuts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gateway_idle_sign_outs_total",
			Help: "Total number of sessions ended by the idle timeout",
		}),
	}
}
