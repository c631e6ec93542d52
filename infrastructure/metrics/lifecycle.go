// Package metrics exports token lifecycle counters in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mentorclub/auth-service/domain/entity"
)

const namespace = "auth"

type LifecycleMetrics struct {
	registry          *prometheus.Registry
	tokensMinted      *prometheus.CounterVec
	tokensPurged      *prometheus.CounterVec
	validationFailed  *prometheus.CounterVec
	rotationCompleted prometheus.Counter
	loginAttempts     *prometheus.CounterVec
}

// NewLifecycleMetrics registers the counters on a private registry together
// with the Go runtime and process collectors.
func NewLifecycleMetrics() *LifecycleMetrics {
	m := &LifecycleMetrics{
		registry: prometheus.NewRegistry(),
		tokensMinted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_minted_total",
			Help:      "Tokens signed and stored, by kind.",
		}, []string{"kind"}),
		tokensPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_purged_total",
			Help:      "Tokens removed from the store, by kind and reason.",
		}, []string{"kind", "reason"}),
		validationFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_validation_failures_total",
			Help:      "Rejected token checks, by reason.",
		}, []string{"reason"}),
		rotationCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_rotations_total",
			Help:      "Completed refresh token rotations.",
		}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts, by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tokensMinted,
		m.tokensPurged,
		m.validationFailed,
		m.rotationCompleted,
		m.loginAttempts,
	)

	return m
}

func (m *LifecycleMetrics) TokenMinted(kind entity.TokenKind) {
	m.tokensMinted.WithLabelValues(kind.String()).Inc()
}

func (m *LifecycleMetrics) TokenPurged(kind entity.TokenKind, reason string) {
	m.tokensPurged.WithLabelValues(kind.String(), reason).Inc()
}

func (m *LifecycleMetrics) ValidationFailed(reason string) {
	m.validationFailed.WithLabelValues(reason).Inc()
}

func (m *LifecycleMetrics) RotationCompleted() {
	m.rotationCompleted.Inc()
}

func (m *LifecycleMetrics) LoginAttempt(outcome string) {
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

// Handler serves the registry for scraping.
func (m *LifecycleMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
