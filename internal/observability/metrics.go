package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the settlement core.
type Metrics struct {
	// Operations
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec

	// Fee accrual
	FundingUpdates   *prometheus.CounterVec
	BorrowingUpdates *prometheus.CounterVec
	RewardsCollected *prometheus.CounterVec

	// Risk
	Liquidations     *prometheus.CounterVec
	ADLExecutions    *prometheus.CounterVec
	InsuranceFund    *prometheus.GaugeVec
	PoolHoldAmount   *prometheus.GaugeVec
	PoolLiquidity    *prometheus.GaugeVec
	MarketLongOI     *prometheus.GaugeVec
	MarketShortOI    *prometheus.GaugeVec
	StableLossAmount *prometheus.GaugeVec
}

// NewMetrics creates and registers all core metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_core_ops_applied_total",
			Help: "Operations applied successfully",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_core_ops_rejected_total",
			Help: "Operations rejected, by error code",
		}, []string{"op", "code"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perp_core_op_duration_seconds",
			Help:    "Operation processing time",
			Buckets: opBuckets,
		}, []string{"op"}),

		FundingUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_core_funding_updates_total",
			Help: "Funding accrual ticks applied",
		}, []string{"symbol"}),

		BorrowingUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_core_borrowing_updates_total",
			Help: "Borrowing accrual ticks applied",
		}, []string{"pool"}),

		RewardsCollected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_core_rewards_collected_total",
			Help: "Keeper fee-reward collections",
		}, []string{"pool"}),

		Liquidations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_core_liquidations_total",
			Help: "Forced closes, by kind (isolated|cross)",
		}, []string{"kind"}),

		ADLExecutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_core_adl_executions_total",
			Help: "Auto-deleveraging decreases",
		}, []string{"symbol"}),

		InsuranceFund: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_core_insurance_fund_amount",
			Help: "Insurance fund balance per pool, token units",
		}, []string{"pool"}),

		PoolHoldAmount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_core_pool_hold_amount",
			Help: "Pool liquidity reserved against open exposure",
		}, []string{"pool"}),

		PoolLiquidity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_core_pool_amount",
			Help: "Pool vault liquidity, token units",
		}, []string{"pool"}),

		MarketLongOI: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_core_market_long_oi",
			Help: "Long open interest, USD fixed-point",
		}, []string{"symbol"}),

		MarketShortOI: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_core_market_short_oi",
			Help: "Short open interest, USD fixed-point",
		}, []string{"symbol"}),

		StableLossAmount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_core_market_stable_loss",
			Help: "Unsettled cross-pool imbalance per market",
		}, []string{"symbol"}),
	}
}
