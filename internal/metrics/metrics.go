// Package metrics holds the Prometheus collectors for question serving,
// generation attempts and refills.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "gquiz"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	served      *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	answers     *prometheus.CounterVec
	refill      *prometheus.CounterVec
	remaining   *prometheus.GaugeVec
	bankSize    prometheus.Gauge
	genDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry or a fresh
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		served: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_served_total",
			Help:      "Questions served, by origin.",
		}, []string{"origin"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Offline fallbacks, by reason.",
		}, []string{"reason"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Remote generation calls, by quota outcome.",
		}, []string{"outcome"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Graded answers, by result.",
		}, []string{"result"}),
		refill: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refill_candidates_total",
			Help:      "Refill candidates, by result.",
		}, []string{"result"}),
		remaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_remaining",
			Help:      "Estimated requests left before the quota gate closes, by window.",
		}, []string{"window"}),
		bankSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bank_questions",
			Help:      "Questions in the bank.",
		}),
		genDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Latency of one question generation, retries and failover included.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
	}
	reg.MustRegister(m.served, m.fallbacks, m.attempts, m.answers, m.refill, m.remaining, m.bankSize, m.genDuration)
	return m
}

// Served counts one served question.
func (m *Metrics) Served(origin string) {
	if m == nil {
		return
	}
	m.served.WithLabelValues(origin).Inc()
}

// Fallback counts one offline fallback.
func (m *Metrics) Fallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

// Attempt counts one remote call by its quota outcome.
func (m *Metrics) Attempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

// Generation observes the latency of one question generation.
func (m *Metrics) Generation(seconds float64) {
	if m == nil {
		return
	}
	m.genDuration.Observe(seconds)
}

// Answer counts one graded answer.
func (m *Metrics) Answer(correct bool) {
	if m == nil {
		return
	}
	result := "wrong"
	if correct {
		result = "correct"
	}
	m.answers.WithLabelValues(result).Inc()
}

// Refill counts one refill candidate by result (appended, duplicate,
// saturated, failed).
func (m *Metrics) Refill(result string) {
	if m == nil {
		return
	}
	m.refill.WithLabelValues(result).Inc()
}

// Quota sets the remaining-request gauges.
func (m *Metrics) Quota(remainingMinute, remainingDay int) {
	if m == nil {
		return
	}
	m.remaining.WithLabelValues("minute").Set(float64(remainingMinute))
	m.remaining.WithLabelValues("day").Set(float64(remainingDay))
}

// BankSize sets the bank size gauge.
func (m *Metrics) BankSize(n int) {
	if m == nil {
		return
	}
	m.bankSize.Set(float64(n))
}
