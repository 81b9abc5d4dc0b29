// Package metrics exposes Prometheus collectors for the vault and keeper.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Deposits        *prometheus.CounterVec
	Upkeeps         *prometheus.CounterVec
	SwapOutput      *prometheus.CounterVec
	Custody         prometheus.Gauge
	LastTimestamp   prometheus.Gauge
	Depositors      prometheus.Gauge
	KeeperTicks     *prometheus.CounterVec
	RouterBreakerOn prometheus.Gauge
}

// NewMetrics registers collectors on reg, or on a private registry when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Deposits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_deposits_total",
			Help: "Accepted deposits by asset.",
		}, []string{"asset"}),

		Upkeeps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_upkeeps_total",
			Help: "PerformUpkeep attempts by mode and outcome.",
		}, []string{"mode", "status"}),

		SwapOutput: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_swap_output_total",
			Help: "Sum of swap outputs in base units of the destination asset.",
		}, []string{"dest_asset"}),

		Custody: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_custody",
			Help: "Custodied amount of the source asset in base units.",
		}),

		LastTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_last_timestamp_seconds",
			Help: "Unix time of the last upkeep or clock arming.",
		}),

		Depositors: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_depositors",
			Help: "Distinct depositors ever seen.",
		}),

		KeeperTicks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keeper_ticks_total",
			Help: "Keeper driver ticks by result.",
		}, []string{"result"}), // idle, performed, lost, failed

		RouterBreakerOn: f.NewGauge(prometheus.GaugeOpts{
			Name: "keeper_router_breaker_open",
			Help: "1 while the DEX router circuit breaker is open.",
		}),
	}
}

// ObserveDeposit counts a deposit.
func (m *Metrics) ObserveDeposit(asset string) {
	if m == nil {
		return
	}
	m.Deposits.WithLabelValues(asset).Inc()
}

// ObserveUpkeep counts a perform attempt.
func (m *Metrics) ObserveUpkeep(mode, status string) {
	if m == nil {
		return
	}
	m.Upkeeps.WithLabelValues(mode, status).Inc()
}

// ObserveSwap adds a swap output. Values are converted to float64 and may
// lose precision for very large amounts.
func (m *Metrics) ObserveSwap(destAsset string, amountOut float64) {
	if m == nil {
		return
	}
	m.SwapOutput.WithLabelValues(destAsset).Add(amountOut)
}

// SetVault updates the vault gauges.
func (m *Metrics) SetVault(custody float64, lastTimestamp int64, depositors int) {
	if m == nil {
		return
	}
	m.Custody.Set(custody)
	m.LastTimestamp.Set(float64(lastTimestamp))
	m.Depositors.Set(float64(depositors))
}

// ObserveTick counts a keeper tick.
func (m *Metrics) ObserveTick(result string) {
	if m == nil {
		return
	}
	m.KeeperTicks.WithLabelValues(result).Inc()
}

// SetBreakerOpen records the router breaker state.
func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.RouterBreakerOn.Set(1)
		return
	}
	m.RouterBreakerOn.Set(0)
}
