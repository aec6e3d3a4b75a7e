package engine

import (
	"perpcore/internal/errs"
	"perpcore/internal/fixed"
	"perpcore/internal/state"
)

// decreaseReason distinguishes why a position shrinks. Liquidations
// settle at the liquidation boundary and post their residue to the
// insurance fund; ADL settles at fair value like a normal trade.
type decreaseReason uint8

const (
	reasonTrade decreaseReason = iota
	reasonLiquidation
	reasonADL
)

// settlement is the outcome of settling a decrease of DecreaseSize USD
// out of a position. Token amounts are margin-mint units.
type settlement struct {
	DecreaseSize      int64 // USD
	BorrowingFee      int64 // token
	FundingFee        int64 // token, signed; positive pays the pool
	CloseFee          int64 // token
	SettleFee         int64 // token, signed
	DecreaseMargin    int64 // token
	DecreaseMarginUSD int64
	PnLUSD            int64 // signed, trader perspective, on the decreased size
	SettleMargin      int64 // token owed to the trader, signed pre-floor
	UserRealizedPnL   int64 // token: SettleMargin - DecreaseMargin
	PoolPnL           int64 // token, signed; positive is a pool gain
	Insurance         int64 // token posted to the insurance fund (liquidation only)
}

// positionPnLUSD is the trader's PnL on sizeUSD of the position at the
// given price. Size is USD notional at entry, so the token quantity is
// size/entry and PnL = size * (price - entry) / entry for longs.
func positionPnLUSD(p *state.UserPosition, sizeUSD, price int64) (int64, error) {
	if sizeUSD == 0 {
		return 0, nil
	}
	if p.EntryPrice <= 0 {
		return 0, errs.ErrMathError
	}
	var diff int64
	var err error
	switch p.Side {
	case state.SideLong:
		diff, err = fixed.Sub(price, p.EntryPrice)
	case state.SideShort:
		diff, err = fixed.Sub(p.EntryPrice, price)
	default:
		return 0, errs.ErrInvalidParam
	}
	if err != nil {
		return 0, err
	}
	return fixed.MulDiv(sizeUSD, diff, p.EntryPrice)
}

// calculateDecrease produces the settlement for reducing the position
// by d USD at execPrice. The position's realized fee totals must be
// current (funding and borrowing realized) before the call; fees and
// margin are pro-rated by d/S, or taken whole when d == S so nothing
// dusts behind a full close.
func calculateDecrease(
	p *state.UserPosition,
	m *state.Market,
	d, execPrice, marginPrice int64,
	marginDecimals uint8,
	reason decreaseReason,
) (settlement, error) {
	s := p.PositionSize
	if d <= 0 || d > s {
		return settlement{}, errs.ErrInvalidParam
	}
	full := d == s

	prorate := func(v int64) (int64, error) {
		if full {
			return v, nil
		}
		return fixed.MulDiv(v, d, s)
	}

	var out settlement
	var err error
	out.DecreaseSize = d

	if out.BorrowingFee, err = prorate(p.RealizedBorrowingFee); err != nil {
		return settlement{}, err
	}
	if out.FundingFee, err = prorate(p.RealizedFundingFee); err != nil {
		return settlement{}, err
	}
	closeFeeUSD, err := fixed.MulRate(d, m.Config.CloseFeeRate)
	if err != nil {
		return settlement{}, err
	}
	if out.CloseFee, err = fixed.UsdToToken(closeFeeUSD, marginPrice, marginDecimals); err != nil {
		return settlement{}, err
	}
	if out.SettleFee, err = fixed.Add(out.CloseFee, out.BorrowingFee); err != nil {
		return settlement{}, err
	}
	if out.SettleFee, err = fixed.Add(out.SettleFee, out.FundingFee); err != nil {
		return settlement{}, err
	}

	if out.DecreaseMargin, err = prorate(p.InitialMargin); err != nil {
		return settlement{}, err
	}
	if out.DecreaseMarginUSD, err = prorate(p.InitialMarginUSD); err != nil {
		return settlement{}, err
	}
	if out.PnLUSD, err = positionPnLUSD(p, d, execPrice); err != nil {
		return settlement{}, err
	}

	if reason == reasonLiquidation {
		// Settle at the liquidation boundary: the maintenance margin is
		// the pool's penalty. Isolated losses stop at the posted margin,
		// so the payout floors at zero; a portfolio shortfall flows on to
		// the user's balance as liability.
		feeUSD, err := fixed.TokenToUSD(out.SettleFee, marginPrice, marginDecimals)
		if err != nil {
			return settlement{}, err
		}
		mmUSD, err := fixed.MulRate(d, m.Config.MaintenanceMarginRate)
		if err != nil {
			return settlement{}, err
		}
		settleUSD, err := fixed.Add(out.DecreaseMarginUSD, out.PnLUSD)
		if err != nil {
			return settlement{}, err
		}
		if settleUSD, err = fixed.Sub(settleUSD, feeUSD); err != nil {
			return settlement{}, err
		}
		if settleUSD, err = fixed.Sub(settleUSD, mmUSD); err != nil {
			return settlement{}, err
		}
		if settleUSD < 0 && p.MarginMode == state.MarginModeIsolated {
			settleUSD = 0
		}
		if out.SettleMargin, err = fixed.UsdToToken(settleUSD, marginPrice, marginDecimals); err != nil {
			return settlement{}, err
		}
	} else {
		settleUSD, err := fixed.Add(out.DecreaseMarginUSD, out.PnLUSD)
		if err != nil {
			return settlement{}, err
		}
		gross, err := fixed.UsdToToken(settleUSD, marginPrice, marginDecimals)
		if err != nil {
			return settlement{}, err
		}
		if out.SettleMargin, err = fixed.Sub(gross, out.SettleFee); err != nil {
			return settlement{}, err
		}
	}

	if out.UserRealizedPnL, err = fixed.Sub(out.SettleMargin, out.DecreaseMargin); err != nil {
		return settlement{}, err
	}
	if out.PoolPnL, err = fixed.Sub(out.DecreaseMargin, out.SettleMargin); err != nil {
		return settlement{}, err
	}
	if out.PoolPnL, err = fixed.Sub(out.PoolPnL, out.SettleFee); err != nil {
		return settlement{}, err
	}

	if reason == reasonLiquidation {
		// The pool keeps its fair PnL; anything above that (the
		// maintenance-margin penalty plus the payout floor remainder)
		// goes to the insurance fund.
		fairPnLToken, err := fixed.UsdToToken(out.PnLUSD, marginPrice, marginDecimals)
		if err != nil {
			return settlement{}, err
		}
		fairPoolPnL := -fairPnLToken
		if out.PoolPnL > fairPoolPnL {
			out.Insurance = out.PoolPnL - fairPoolPnL
			out.PoolPnL = fairPoolPnL
		}
	}

	return out, nil
}
