package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestExecutionCollectors(t *testing.T) {
	before := testutil.ToFloat64(ExecutionsTotal.WithLabelValues("test-backend", "OK"))
	ExecutionsTotal.WithLabelValues("test-backend", "OK").Inc()
	after := testutil.ToFloat64(ExecutionsTotal.WithLabelValues("test-backend", "OK"))
	assert.Equal(t, before+1, after)

	ActiveExecutions.Inc()
	ActiveExecutions.Dec()
	assert.Equal(t, float64(0), testutil.ToFloat64(ActiveExecutions))

	beforeBatches := testutil.ToFloat64(BatchesTotal.WithLabelValues("success"))
	BatchesTotal.WithLabelValues("success").Inc()
	assert.Equal(t, beforeBatches+1, testutil.ToFloat64(BatchesTotal.WithLabelValues("success")))
}

func TestNewSystemMetrics(t *testing.T) {
	m := NewSystemMetrics()
	assert.NotNil(t, m.CPUUsage)
	assert.NotNil(t, m.MemoryUsed)
	assert.NotNil(t, m.DiskUsed)
}
