// Package metrics exposes the engine's Prometheus counters, grounded
// on core/internal/metrics/metrics.go's promauto-registered vectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	XPAwardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamification_xp_awarded_total",
			Help: "Total experience points granted across all users",
		},
	)

	BadgesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_badges_awarded_total",
			Help: "Total badges awarded, by badge type",
		},
		[]string{"badge_type"},
	)

	RewardsRedeemedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_rewards_redeemed_total",
			Help: "Total reward redemptions, by reward type",
		},
		[]string{"reward_type"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)

// Recorder adapts the package-level counters to gamification.Metrics
// so the engine doesn't import Prometheus directly.
type Recorder struct{}

// ObserveXPAwarded increments the XP-granted counter.
func (Recorder) ObserveXPAwarded(amount int) {
	XPAwardedTotal.Add(float64(amount))
}

// ObserveBadgeAwarded increments the per-type badge counter.
func (Recorder) ObserveBadgeAwarded(badgeType string) {
	BadgesAwardedTotal.WithLabelValues(badgeType).Inc()
}

// RecordRewardRedeemed increments the per-type redemption counter.
func RecordRewardRedeemed(rewardType string) {
	RewardsRedeemedTotal.WithLabelValues(rewardType).Inc()
}

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(method, path, status string, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}
