package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	// Second Register is a no-op.
	require.NoError(t, Register(reg))

	RecordStateTransition("stopped", "starting")
	RecordStateTransition("starting", "running")
	SetCurrentState("running", true)
	SetCurrentState("stopped", false)
	SetTraffic(1000, 2000)
	SetRates(100, 200)
	IncPollFailure()

	assert.Equal(t, float64(1), testutil.ToFloat64(stateTransitions.WithLabelValues("stopped", "starting")))
	assert.Equal(t, float64(1), testutil.ToFloat64(currentState.WithLabelValues("running")))
	assert.Equal(t, float64(0), testutil.ToFloat64(currentState.WithLabelValues("stopped")))
	assert.Equal(t, float64(1000), testutil.ToFloat64(trafficBytes.WithLabelValues("upload")))
	assert.Equal(t, float64(200), testutil.ToFloat64(trafficRate.WithLabelValues("download")))
	assert.Equal(t, float64(1), testutil.ToFloat64(pollFailures))
}

func TestObserveDelaySentinel(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))

	ObserveDelay("HK-01", 120)
	ObserveDelay("HK-01", -1)
	ObserveDelay("HK-01", -1)

	assert.Equal(t, float64(2), testutil.ToFloat64(delayProbeFailures.WithLabelValues("HK-01")))
}

func TestResourceCollectorRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewResourceCollector(0)
	require.NoError(t, c.RegisterMetrics(reg))

	if _, ok := c.Latest(); ok {
		t.Fatalf("no sample expected before Run")
	}
}
