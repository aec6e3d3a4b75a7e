package state

import (
	"perpcore/internal/errs"
	"perpcore/internal/fixed"
)

// MarketPosition is one side's aggregate open interest with a
// volume-weighted average entry price.
type MarketPosition struct {
	Size          int64 // USD, PricePrecision
	AvgEntryPrice int64 // PricePrecision
}

// AddOpenInterest folds an increase into the side's size-weighted
// average price.
func (m *MarketPosition) AddOpenInterest(size, price int64) error {
	if size < 0 || price < 0 {
		return errs.ErrInvalidParam
	}
	if size == 0 {
		return nil
	}
	newSize, err := fixed.Add(m.Size, size)
	if err != nil {
		return err
	}
	if m.Size == 0 {
		m.Size = newSize
		m.AvgEntryPrice = price
		return nil
	}
	avg, err := fixed.BlendPrice(m.Size, m.AvgEntryPrice, size, price)
	if err != nil {
		return err
	}
	m.Size = newSize
	m.AvgEntryPrice = avg
	return nil
}

// SubOpenInterest removes a decrease, recomputing a decrease-weighted
// average price; a full unwind resets the side.
func (m *MarketPosition) SubOpenInterest(size, price int64) error {
	if size < 0 || price < 0 || size > m.Size {
		return errs.ErrInvalidParam
	}
	if size == 0 {
		return nil
	}
	remaining := m.Size - size
	if remaining == 0 {
		m.Size = 0
		m.AvgEntryPrice = 0
		return nil
	}
	avg, err := fixed.UnblendPrice(m.Size, m.AvgEntryPrice, size, price)
	if err != nil {
		return err
	}
	m.Size = remaining
	m.AvgEntryPrice = avg
	return nil
}

// MarketFundingFee is the per-market funding accrual cursor. Cumulative
// rates are per USD of position size, PerTokenPrecision scale; the
// paying side accrues positive, the receiving side negative.
type MarketFundingFee struct {
	LongCumulativePerSize  int64
	ShortCumulativePerSize int64
	// Hourly-normalized observed rates, SmallRatePrecision. Not used in
	// settlement, only reported.
	LongHourlyRate  int64
	ShortHourlyRate int64
	UpdatedAt       int64 // unix seconds
}

// MarketConfig is per-market trade configuration.
type MarketConfig struct {
	TickSize              int64 // PricePrecision
	OpenFeeRate           int64 // RatePrecision
	CloseFeeRate          int64 // RatePrecision
	MaximumLeverage       int64
	MinimumLeverage       int64
	MaintenanceMarginRate int64 // RatePrecision
	FundingFeeBaseRate    int64 // SmallRatePrecision, per second
	MaxFundingBaseRate    int64 // SmallRatePrecision, per-second delta cap
	MaxPoolLiquidityShare int64 // RatePrecision
}

// Market is one tradable symbol pairing a base pool and a stable pool.
type Market struct {
	Symbol       string
	PoolID       string // base pool, backs long PnL
	StablePoolID string // stable pool, backs short PnL
	BaseMint     string
	StableMint   string

	LongOpenInterest  MarketPosition
	ShortOpenInterest MarketPosition
	FundingFee        MarketFundingFee

	// Signed settlement imbalance between the base and stable pools,
	// stable-mint token units. Cleared by rebalance.
	StableLoss int64

	Config MarketConfig
}

// OpenInterest returns the side's aggregate book.
func (m *Market) OpenInterest(side Side) *MarketPosition {
	if side == SideShort {
		return &m.ShortOpenInterest
	}
	return &m.LongOpenInterest
}

// PoolIDForSide returns the pool backing PnL for a position side: longs
// settle against the base pool, shorts against the stable pool.
func (m *Market) PoolIDForSide(side Side) string {
	if side == SideShort {
		return m.StablePoolID
	}
	return m.PoolID
}

// MarginMintForSide returns the collateral mint an isolated position on
// the given side must post.
func (m *Market) MarginMintForSide(side Side) string {
	if side == SideShort {
		return m.StableMint
	}
	return m.BaseMint
}

// CumulativeFundingPerSize returns the side's funding cursor.
func (m *Market) CumulativeFundingPerSize(side Side) int64 {
	if side == SideShort {
		return m.FundingFee.ShortCumulativePerSize
	}
	return m.FundingFee.LongCumulativePerSize
}

// CheckLeverage validates leverage bounds for this market.
func (m *Market) CheckLeverage(leverage int64) error {
	min := m.Config.MinimumLeverage
	if min <= 0 {
		min = 1
	}
	if leverage < min || leverage > m.Config.MaximumLeverage {
		return errs.ErrLeverageIsNotAllowed
	}
	return nil
}

// AddStableLoss accumulates signed settlement imbalance.
func (m *Market) AddStableLoss(amount int64) error {
	v, err := fixed.Add(m.StableLoss, amount)
	if err != nil {
		return err
	}
	m.StableLoss = v
	return nil
}

// Clone deep-copies the market record.
func (m *Market) Clone() *Market {
	c := *m
	return &c
}
