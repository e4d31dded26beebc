package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration records request latency for every HTTP route, keyed by
// method, route pattern, and response status.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "insforge",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// --- C1/C6: token issuance and auth outcomes ---

var TokensIssuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "insforge",
		Subsystem: "auth",
		Name:      "tokens_issued_total",
		Help:      "Total number of JWTs issued, by kind (access, refresh, admin, anon).",
	},
	[]string{"kind"},
)

var LoginAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "insforge",
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by outcome.",
	},
	[]string{"outcome"},
)

var OTPVerificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "insforge",
		Subsystem: "auth",
		Name:      "otp_verifications_total",
		Help:      "Total number of OTP verification attempts, by purpose and outcome.",
	},
	[]string{"purpose", "outcome"},
)

// --- C7: PostgREST proxy ---

var PostgRESTProxyDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "insforge",
		Subsystem: "postgrest",
		Name:      "proxy_duration_seconds",
		Help:      "Latency of proxied PostgREST requests, including retries.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method"},
)

var PostgRESTRetriesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "insforge",
		Subsystem: "postgrest",
		Name:      "retries_total",
		Help:      "Total number of retried PostgREST requests after a transient network error.",
	},
)

// --- C8: SQL safety gate ---

var SQLGateRejectionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "insforge",
		Subsystem: "sqlgate",
		Name:      "rejections_total",
		Help:      "Total number of SQL statements rejected for targeting the auth schema.",
	},
)

// --- C9/C10/C11: realtime fan-out ---

var RealtimeMessagesDispatchedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "insforge",
		Subsystem: "realtime",
		Name:      "messages_dispatched_total",
		Help:      "Total number of realtime messages dispatched after a LISTEN notification.",
	},
)

var RealtimeAudienceSize = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "insforge",
		Subsystem: "realtime",
		Name:      "ws_audience_size",
		Help:      "Number of WebSocket subscribers in a room at broadcast time.",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
	},
)

var WebhookDeliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "insforge",
		Subsystem: "realtime",
		Name:      "webhook_deliveries_total",
		Help:      "Total number of webhook deliveries (one per URL per message, after retries), by outcome.",
	},
	[]string{"outcome"},
)

var WebhookDeliveryDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "insforge",
		Subsystem: "realtime",
		Name:      "webhook_delivery_duration_seconds",
		Help:      "Webhook delivery duration in seconds, including retries.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	},
)

// All returns every Insforge-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		TokensIssuedTotal,
		LoginAttemptsTotal,
		OTPVerificationsTotal,
		PostgRESTProxyDuration,
		PostgRESTRetriesTotal,
		SQLGateRejectionsTotal,
		RealtimeMessagesDispatchedTotal,
		RealtimeAudienceSize,
		WebhookDeliveriesTotal,
		WebhookDeliveryDuration,
	}
}

// NewMetricsRegistry creates a Prometheus registry with the standard Go and
// process collectors plus every collector in extra.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
