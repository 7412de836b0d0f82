// Package metrics exposes pool accounting as Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rugpullsim/internal/model"
)

const namespace = "rugpullsim"

// Metrics holds the collectors updated by the AMM service and the monitor.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	swapVolume *prometheus.CounterVec
	reserves   *prometheus.GaugeVec
	lpSupply   *prometheus.GaugeVec
	unbacked   *prometheus.GaugeVec
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Pool operations by type and result kind.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent per pool operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		swapVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_volume_total",
			Help:      "Raw units swapped into and out of each pool.",
		}, []string{"pool", "direction", "leg"}),
		reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_reserve",
			Help:      "Last observed vault balance per pool side.",
		}, []string{"pool", "side"}),
		lpSupply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_lp_supply",
			Help:      "Outstanding LP shares per pool.",
		}, []string{"pool"}),
		unbacked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_unbacked",
			Help:      "1 when a pool has outstanding LP shares but empty vaults.",
		}, []string{"pool"}),
	}

	if reg == nil {
		return m, nil
	}
	var errs []error
	for _, c := range []prometheus.Collector{m.operations, m.duration, m.swapVolume, m.reserves, m.lpSupply, m.unbacked} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func poolLabel(id model.PoolID) string {
	return strconv.Itoa(int(id))
}

// ObserveOperation counts one finished operation. kind is "ok" on success and
// an error kind otherwise.
func (m *Metrics) ObserveOperation(op, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, kind).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) AddSwap(id model.PoolID, dir model.Direction, amountIn, amountOut uint64) {
	if m == nil {
		return
	}
	m.swapVolume.WithLabelValues(poolLabel(id), dir.String(), "in").Add(float64(amountIn))
	m.swapVolume.WithLabelValues(poolLabel(id), dir.String(), "out").Add(float64(amountOut))
}

// SetPool records the reserves and supply observed after an operation.
func (m *Metrics) SetPool(id model.PoolID, reserveA, reserveB, supply uint64) {
	if m == nil {
		return
	}
	pool := poolLabel(id)
	m.reserves.WithLabelValues(pool, "a").Set(float64(reserveA))
	m.reserves.WithLabelValues(pool, "b").Set(float64(reserveB))
	m.lpSupply.WithLabelValues(pool).Set(float64(supply))
}

func (m *Metrics) SetUnbacked(id model.PoolID, unbacked bool) {
	if m == nil {
		return
	}
	v := 0.0
	if unbacked {
		v = 1
	}
	m.unbacked.WithLabelValues(poolLabel(id)).Set(v)
}
