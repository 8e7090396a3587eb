package observability

import (
	"math"
	"math/big"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SaleMetrics tracks the activity of the sale engine.
type SaleMetrics struct {
	deposits      prometheus.Counter
	depositErrors *prometheus.CounterVec
	tierAdvances  prometheus.Counter
	collected     prometheus.Gauge
	activeTier    prometheus.Gauge
	completed     prometheus.Gauge
}

var (
	saleMetricsOnce sync.Once
	saleRegistry    *SaleMetrics
)

// Sale returns the lazily-initialised sale metrics registry.
func Sale() *SaleMetrics {
	saleMetricsOnce.Do(func() {
		saleRegistry = &SaleMetrics{
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "sale",
				Subsystem: "engine",
				Name:      "deposits_total",
				Help:      "Total settled deposits.",
			}),
			depositErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sale",
				Subsystem: "engine",
				Name:      "deposit_errors_total",
				Help:      "Rejected deposits segmented by failure class.",
			}, []string{"reason"}),
			tierAdvances: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "sale",
				Subsystem: "engine",
				Name:      "tier_advances_total",
				Help:      "Number of times the active tier index advanced.",
			}),
			collected: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "sale",
				Subsystem: "engine",
				Name:      "funds_collected_units",
				Help:      "Total funds collected in 6-decimal payment units.",
			}),
			activeTier: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "sale",
				Subsystem: "engine",
				Name:      "active_tier_index",
				Help:      "Current active tier index.",
			}),
			completed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "sale",
				Subsystem: "engine",
				Name:      "completed",
				Help:      "1 once the sale reached its global cap.",
			}),
		}
		prometheus.MustRegister(
			saleRegistry.deposits,
			saleRegistry.depositErrors,
			saleRegistry.tierAdvances,
			saleRegistry.collected,
			saleRegistry.activeTier,
			saleRegistry.completed,
		)
	})
	return saleRegistry
}

// RecordDeposit updates the counters after a settled purchase.
func (m *SaleMetrics) RecordDeposit(totalCollected *big.Int, tierIndex uint8) {
	if m == nil {
		return
	}
	m.deposits.Inc()
	m.collected.Set(bigToFloat(totalCollected))
	m.activeTier.Set(float64(tierIndex))
}

// RecordDepositError counts a rejected deposit by failure class.
func (m *SaleMetrics) RecordDepositError(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.depositErrors.WithLabelValues(reason).Inc()
}

// RecordTierAdvance counts a ladder advancement.
func (m *SaleMetrics) RecordTierAdvance(newIndex uint8) {
	if m == nil {
		return
	}
	m.tierAdvances.Inc()
	m.activeTier.Set(float64(newIndex))
}

// RecordCompleted marks the sale as completed.
func (m *SaleMetrics) RecordCompleted() {
	if m == nil {
		return
	}
	m.completed.Set(1)
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, err := strconv.ParseFloat(v.String(), 64)
	if err != nil || math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}
