package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agora_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Authorization metrics
var (
	RoleChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_role_changes_total",
		Help: "Total number of committed role changes by new role",
	}, []string{"role"})

	AuthzDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_authz_denied_total",
		Help: "Total number of operations rejected for insufficient role",
	}, []string{"operation"})
)

// Moderation event counters
var (
	ContentDeletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_content_deletions_total",
		Help: "Total number of content deletions",
	}, []string{"kind", "privileged"})

	ReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_reports_total",
		Help: "Total number of user reports by outcome",
	}, []string{"status"})

	BlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_blocks_total",
		Help: "Total number of block operations",
	}, []string{"operation"})
)

// Gauges updated periodically by the collector
var (
	OpenReports = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agora_open_reports",
		Help: "Number of reports awaiting resolution",
	})

	ElevatedAccounts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agora_elevated_accounts",
		Help: "Number of accounts holding each role",
	}, []string{"role"})
)

// idRoutes maps the fixed segments of a parameterised /api route to its
// label. An empty entry stands for the id.
var idRoutes = map[string][]string{
	"/api/roles/:id":           {"roles", ""},
	"/api/blocks/:id":          {"blocks", ""},
	"/api/comments/:id":        {"comments", ""},
	"/api/posts/:id":           {"posts", ""},
	"/api/posts/:id/comments":  {"posts", "", "comments"},
	"/api/reports/:id/resolve": {"reports", "", "resolve"},
	"/api/audit/roles/:id":     {"audit", "roles", ""},
}

// NormalizePath maps request paths carrying ids to their route pattern so the
// path label stays low-cardinality. Anything unrecognised passes through.
func NormalizePath(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/")
	if !ok {
		return path
	}
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	for label, shape := range idRoutes {
		if matches(segments, shape) {
			return label
		}
	}
	return path
}

func matches(segments, shape []string) bool {
	if len(segments) != len(shape) {
		return false
	}
	for i, want := range shape {
		if segments[i] == "" || (want != "" && segments[i] != want) {
			return false
		}
	}
	return true
}
