package obs

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facility-calls-backend/config"
)

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveOperation("Call", "create", "ok", 10*time.Millisecond)
	m.ObserveOperation("Call", "create", "ok", 20*time.Millisecond)
	m.ObserveOperation("Call", "findUnique", "not_found", time.Millisecond)
	m.ObserveTransaction("aborted")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("Call", "create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("Call", "findUnique", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("aborted")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("Call", "create", "ok", time.Millisecond)
		m.ObserveTransaction("committed")
	})
}

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		name string
		cfg  config.LogConfig
	}{
		{name: "development", cfg: config.LogConfig{Level: "debug", Environment: "development"}},
		{name: "production", cfg: config.LogConfig{Level: "warn", Environment: "production"}},
		{name: "unknown level falls back to info", cfg: config.LogConfig{Level: "loud"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			logger, err := NewLogger(tc.cfg)
			require.NoError(t, err)
			require.NotNil(t, logger)
			_ = logger.Sync()
		})
	}
}
