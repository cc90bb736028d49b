package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level metrics for the authorization core. promauto registers them
// against the default registry at init.
var (
	// AuthzChecks counts access-resolution outcomes. check is one of
	// org_role, account_access; outcome is granted, denied, not_found, error.
	AuthzChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerlock_authz_checks_total",
			Help: "Total number of authorization checks by outcome",
		},
		[]string{"check", "outcome"},
	)

	// InvitationEvents counts invitation lifecycle transitions:
	// created, accepted, rejected, cancelled, expired_swept.
	InvitationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerlock_invitation_events_total",
			Help: "Total number of invitation lifecycle events",
		},
		[]string{"event"},
	)

	// KeyRotationDuration observes whole-organization key rotations.
	KeyRotationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledgerlock_key_rotation_duration_seconds",
			Help:    "Duration of organization key rotations",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	// AuditWriteFailures counts swallowed best-effort audit write failures.
	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerlock_audit_write_failures_total",
			Help: "Total number of best-effort audit writes that failed",
		},
	)

	// MembershipCache counts membership cache lookups by result (hit_l1,
	// hit_l2, miss, error).
	MembershipCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerlock_membership_cache_lookups_total",
			Help: "Total membership cache lookups by result",
		},
		[]string{"result"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerlock_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgerlock_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware records request counts and latencies. pathLabel
// should be the route template, not the raw URL, to bound cardinality.
func HTTPMetricsMiddleware(pathLabel func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			path := pathLabel(r)
			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}
