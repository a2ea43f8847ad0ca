package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func histogramSample(t *testing.T, o prometheus.Observer) *dto.Histogram {
	t.Helper()
	m, ok := o.(prometheus.Metric)
	require.True(t, ok)
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	require.NotNil(t, out.Histogram)
	return out.Histogram
}

func TestRecordExecution(t *testing.T) {
	before := testutil.ToFloat64(ExecutionsTotal.WithLabelValues("escalate", "escalated"))
	beforeCount := histogramSample(t, ExecutionDuration.WithLabelValues("escalate")).GetSampleCount()

	RecordExecution("escalate", "escalated", 10*time.Millisecond)

	after := testutil.ToFloat64(ExecutionsTotal.WithLabelValues("escalate", "escalated"))
	assert.Equal(t, before+1, after)
	h := histogramSample(t, ExecutionDuration.WithLabelValues("escalate"))
	assert.Equal(t, beforeCount+1, h.GetSampleCount())
	assert.InDelta(t, 0.01, h.GetSampleSum(), 0.01)
}

func TestRecordOracleRequest(t *testing.T) {
	RecordOracleRequest("groq", "success", time.Second)
	assert.Equal(t, 1, testutil.CollectAndCount(OracleRequestDuration))

	h := histogramSample(t, OracleRequestDuration.WithLabelValues("groq", "success"))
	assert.Equal(t, uint64(1), h.GetSampleCount())
	assert.Equal(t, 1.0, h.GetSampleSum())
}

func TestPendingPlansGauge(t *testing.T) {
	PendingPlans.Set(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(PendingPlans))
	PendingPlans.Set(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(PendingPlans))
}
