package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Served("online")
	m.Served("online")
	m.Served("offline-seed")
	m.Fallback("quota_closed")
	m.Attempt("rate_limited")
	m.Attempt("other_failure")
	m.Generation(0.5)
	m.Answer(true)
	m.Answer(false)
	m.Answer(true)
	m.Refill("appended")
	m.Quota(3, 1200)
	m.BankSize(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.served.WithLabelValues("online")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.served.WithLabelValues("offline-seed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("quota_closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("other_failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.answers.WithLabelValues("correct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.answers.WithLabelValues("wrong")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refill.WithLabelValues("appended")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.remaining.WithLabelValues("minute")))
	assert.Equal(t, 1200.0, testutil.ToFloat64(m.remaining.WithLabelValues("day")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.bankSize))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "gquiz_questions_served_total")
	assert.Contains(t, names, "gquiz_generation_duration_seconds")
	assert.Contains(t, names, "gquiz_answers_total")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Served("online")
		m.Fallback("x")
		m.Attempt("success")
		m.Generation(1)
		m.Answer(true)
		m.Refill("appended")
		m.Quota(1, 1)
		m.BankSize(1)
	})
}
