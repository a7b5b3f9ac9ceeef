package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	ActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_activations_total",
			Help: "Total number of activation attempts.",
		},
		[]string{"service", "result"},
	)

	HeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_heartbeats_total",
			Help: "Total number of heartbeat attempts.",
		},
		[]string{"service", "result"},
	)

	KeysCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_keys_created_total",
			Help: "Total number of activation keys generated.",
		},
		[]string{"service"},
	)

	ForceLocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_force_locks_total",
			Help: "Total number of automatic force-locks.",
		},
		[]string{"service"},
	)
)

func MustRegister(serviceName string) {
	HTTPRequestsTotal = HTTPRequestsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	HTTPRequestDurationSeconds = HTTPRequestDurationSeconds.MustCurryWith(prometheus.Labels{"service": serviceName}).(*prometheus.HistogramVec)
	ActivationsTotal = ActivationsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	HeartbeatsTotal = HeartbeatsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	KeysCreatedTotal = KeysCreatedTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	ForceLocksTotal = ForceLocksTotal.MustCurryWith(prometheus.Labels{"service": serviceName})

	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		ActivationsTotal,
		HeartbeatsTotal,
		KeysCreatedTotal,
		ForceLocksTotal,
	)
}
