package telemetry

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestRecordOutcome(t *testing.T) {
	r := NewRegistry()

	r.RecordOutcome("accepted")
	r.RecordOutcome("net_edge_below_threshold")
	r.RecordOutcome("net_edge_below_threshold")

	assert.Equal(t, 1.0, counterValue(t, r.DecisionOutcomes.WithLabelValues("accepted")))
	assert.Equal(t, 2.0, counterValue(t, r.DecisionOutcomes.WithLabelValues("net_edge_below_threshold")))
	assert.Equal(t, 2.0, counterValue(t, r.GateRejections.WithLabelValues("net_edge_below_threshold")))

	// accepted outcomes are not gate rejections
	assert.Equal(t, 0.0, counterValue(t, r.GateRejections.WithLabelValues("accepted")))
}
