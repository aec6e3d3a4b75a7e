package state

import "perpcore/internal/errs"

// Params is the process-wide engine configuration. It is read-only to
// the core and passed explicitly into every operation; there is no
// ambient global state.
type Params struct {
	Admin  string
	Keeper string

	// MinOrderMarginUSD is the smallest order margin accepted,
	// PricePrecision scale.
	MinOrderMarginUSD int64

	// MaxMaintenanceMarginRate caps per-market maintenance margin
	// rates, RatePrecision.
	MaxMaintenanceMarginRate int64

	// FundingFeeBaseRate / MaxFundingBaseRate are global defaults used
	// when a market does not override them, SmallRatePrecision.
	FundingFeeBaseRate int64
	MaxFundingBaseRate int64

	// Fee split ratios, RatePrecision. Must sum to RatePrecision.
	PoolRewardsRatio    int64
	StakingRewardsRatio int64
	DaoRewardsRatio     int64

	// MaxPriceAgeSeconds bounds oracle staleness.
	MaxPriceAgeSeconds int64
}

// Validate checks internal consistency of the configuration.
func (p *Params) Validate() error {
	if p.MinOrderMarginUSD < 0 || p.MaxPriceAgeSeconds <= 0 {
		return errs.ErrInvalidParam
	}
	if p.PoolRewardsRatio < 0 || p.StakingRewardsRatio < 0 || p.DaoRewardsRatio < 0 {
		return errs.ErrInvalidParam
	}
	if p.PoolRewardsRatio+p.StakingRewardsRatio+p.DaoRewardsRatio != 100_000 {
		return errs.ErrInvalidParam
	}
	return nil
}

// DefaultParams returns a development configuration.
func DefaultParams() *Params {
	return &Params{
		MinOrderMarginUSD:        10 * 100_000_000, // 10 USD
		MaxMaintenanceMarginRate: 10_000,           // 10%
		FundingFeeBaseRate:       30_000,           // per second, SmallRatePrecision
		MaxFundingBaseRate:       100_000,
		PoolRewardsRatio:         60_000,
		StakingRewardsRatio:      30_000,
		DaoRewardsRatio:          10_000,
		MaxPriceAgeSeconds:       30,
	}
}
