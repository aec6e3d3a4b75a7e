package state

import (
	"perpcore/internal/errs"
	"perpcore/internal/fixed"
)

// TradeToken is a collateral-eligible mint's metadata plus system-wide
// outstanding totals.
type TradeToken struct {
	Mint      string
	Name      string
	Decimals  uint8
	OracleKey string

	// Discount is the haircut applied to free balance when valuing
	// collateral (RatePrecision; 95000 = 95% of face value).
	Discount int64

	// LiquidationFactor is the premium applied to shortfall when
	// valuing liability (RatePrecision; 105000 = 105% of face value).
	LiquidationFactor int64

	// System-wide totals across all users.
	TotalAmount    int64
	TotalLiability int64
}

// AddTotalAmount tracks a deposit.
func (t *TradeToken) AddTotalAmount(amount int64) error {
	if amount < 0 {
		return errs.ErrInvalidParam
	}
	v, err := fixed.Add(t.TotalAmount, amount)
	if err != nil {
		return err
	}
	t.TotalAmount = v
	return nil
}

// SubTotalAmount tracks a withdrawal.
func (t *TradeToken) SubTotalAmount(amount int64) error {
	if amount < 0 || t.TotalAmount < amount {
		return errs.ErrAmountNotEnough
	}
	t.TotalAmount -= amount
	return nil
}

// AddTotalLiability tracks a newly recorded shortfall.
func (t *TradeToken) AddTotalLiability(amount int64) error {
	if amount < 0 {
		return errs.ErrInvalidParam
	}
	v, err := fixed.Add(t.TotalLiability, amount)
	if err != nil {
		return err
	}
	t.TotalLiability = v
	return nil
}

// SubTotalLiability tracks a repaid shortfall.
func (t *TradeToken) SubTotalLiability(amount int64) error {
	if amount < 0 || t.TotalLiability < amount {
		return errs.ErrAmountNotEnough
	}
	t.TotalLiability -= amount
	return nil
}

// Clone deep-copies the record.
func (t *TradeToken) Clone() *TradeToken {
	c := *t
	return &c
}
