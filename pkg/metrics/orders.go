package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics counts order commits, lifecycle operations, post-commit
// side-effect failures and loyalty point movement.
type OrderMetrics struct {
	commits     *prometheus.CounterVec
	lifecycle   *prometheus.CounterVec
	sideEffects *prometheus.CounterVec
	points      *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_commits_total",
		Help: "Order commit attempts by outcome.",
	}, []string{"outcome"})
	lifecycle := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_lifecycle_operations_total",
		Help: "Lifecycle operations by operation and outcome.",
	}, []string{"operation", "outcome"})
	sideEffects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_side_effect_failures_total",
		Help: "Post-commit side effects that failed, by kind.",
	}, []string{"kind"})
	points := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_points_total",
		Help: "Loyalty points moved, by direction.",
	}, []string{"direction"})
	reg.MustRegister(commits, lifecycle, sideEffects, points)
	return &OrderMetrics{
		commits:     commits,
		lifecycle:   lifecycle,
		sideEffects: sideEffects,
		points:      points,
	}
}

// IncCommit counts a commit attempt; outcome is "committed", "draft" or an error reason.
func (m *OrderMetrics) IncCommit(outcome string) {
	if m == nil || m.commits == nil {
		return
	}
	m.commits.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncLifecycle counts advance/cancel/modify calls.
func (m *OrderMetrics) IncLifecycle(operation, outcome string) {
	if m == nil || m.lifecycle == nil {
		return
	}
	m.lifecycle.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// IncSideEffectFailure counts a failed reservation confirm or notification channel.
func (m *OrderMetrics) IncSideEffectFailure(kind string) {
	if m == nil || m.sideEffects == nil {
		return
	}
	m.sideEffects.WithLabelValues(normalizeLabel(kind)).Inc()
}

// AddPointsEarned records accrued points.
func (m *OrderMetrics) AddPointsEarned(points int64) {
	m.addPoints("earned", points)
}

// AddPointsRedeemed records redeemed points.
func (m *OrderMetrics) AddPointsRedeemed(points int64) {
	m.addPoints("redeemed", points)
}

func (m *OrderMetrics) addPoints(direction string, points int64) {
	if m == nil || m.points == nil || points <= 0 {
		return
	}
	m.points.WithLabelValues(direction).Add(float64(points))
}
