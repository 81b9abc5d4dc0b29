package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveDeposit("native")
		m.ObserveUpkeep("swap", "PERFORMED")
		m.ObserveSwap("dai", 1)
		m.SetVault(1, 2, 3)
		m.ObserveTick("idle")
		m.SetBreakerOpen(true)
	})
}

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetVault(5e18, 1_700_000_000, 2)
	m.ObserveTick("performed")
	m.ObserveTick("performed")
	m.SetBreakerOpen(true)

	assert.Equal(t, 5e18, testutil.ToFloat64(m.Custody))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Depositors))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.KeeperTicks.WithLabelValues("performed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RouterBreakerOn))

	n, err := testutil.GatherAndCount(reg, "vault_custody", "keeper_ticks_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}
