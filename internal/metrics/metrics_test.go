package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Formed("organic")
		m.Dissolved("betrayal")
		m.Leak("leak")
		m.Operation("spy_probe", true)
		m.Betrayal("periodic", "near_miss")
		m.Reveal()
		m.Transfer(10)
		m.Throttled()
		m.Repaired(2)
		m.Observe(1, 2, 3, 0.01)
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Operation("covert_aid", true)
	m.Operation("covert_aid", false)
	m.Operation("covert_aid", true)
	m.Transfer(250)
	m.Transfer(50)
	m.Observe(12, 4, 9, 0.002)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("covert_aid", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("covert_aid", "failure")))
	assert.Equal(t, 300.0, testutil.ToFloat64(m.volume))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.day))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.active))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
