package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	editSuggestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edit_suggestions_total",
			Help: "Total number of bulk edit suggestions submitted",
		},
		[]string{"action"},
	)

	editReviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edit_reviews_total",
			Help: "Total number of review decisions",
		},
		[]string{"decision", "outcome"},
	)

	editApplyPostsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edit_apply_posts_total",
			Help: "Posts processed by apply runs, by result",
		},
		[]string{"result"},
	)

	valueSuggestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "value_suggest_total",
			Help: "Total number of autocomplete lookups",
		},
		[]string{"field", "rebuilt"},
	)
)

// MetricsMiddleware collects Prometheus metrics for each HTTP request.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		httpRequestsInFlight.Inc()

		// Route pattern, not the raw URL, so cardinality stays bounded.
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		c.Next()

		httpRequestsInFlight.Dec()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
	}
}

// RecordSuggestionSubmitted counts an accepted submission.
func RecordSuggestionSubmitted(action string) {
	editSuggestionsTotal.WithLabelValues(action).Inc()
}

// RecordReview counts a review decision. outcome is the status the
// suggestion landed in; rejections pass "rejected".
func RecordReview(decision, outcome string) {
	editReviewsTotal.WithLabelValues(decision, outcome).Inc()
}

// RecordApplyPosts counts per-post apply results for one run.
func RecordApplyPosts(mutated, skipped, failed int) {
	if mutated > 0 {
		editApplyPostsTotal.WithLabelValues("mutated").Add(float64(mutated))
	}
	if skipped > 0 {
		editApplyPostsTotal.WithLabelValues("skipped").Add(float64(skipped))
	}
	if failed > 0 {
		editApplyPostsTotal.WithLabelValues("failed").Add(float64(failed))
	}
}

// RecordValueSuggest counts an autocomplete lookup.
func RecordValueSuggest(field string, rebuilt bool) {
	r := "false"
	if rebuilt {
		r = "true"
	}
	valueSuggestTotal.WithLabelValues(field, r).Inc()
}
