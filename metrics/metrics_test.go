package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRegisterAndIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TransitionCommitted("residential_sale", "under_contract")
	m.TransitionCommitted("residential_sale", "under_contract")
	m.TransitionConflict()
	m.DealClosed("won")
	m.MilestonesCreated(4)
	m.MilestonesCreated(0)
	m.MilestoneGenerationFailed()
	m.AuditWriteFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StageTransitions.WithLabelValues("residential_sale", "under_contract")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DealsClosed.WithLabelValues("won")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.MilestonesGenerated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MilestoneGenerationFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditWriteFailures))

	expected := `
# HELP closer_audit_write_failures_total Best-effort activity writes that failed or timed out.
# TYPE closer_audit_write_failures_total counter
closer_audit_write_failures_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "closer_audit_write_failures_total"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TransitionCommitted("x", "y")
		m.TransitionConflict()
		m.DealClosed("lost")
		m.MilestonesCreated(2)
		m.MilestoneGenerationFailed()
		m.AuditWriteFailed()
	})
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.AuditWriteFailed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditWriteFailures))
}
