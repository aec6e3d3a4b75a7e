package engine

import (
	"fmt"

	"perpcore/internal/errs"
	"perpcore/internal/event"
	"perpcore/internal/fee"
	"perpcore/internal/fixed"
	"perpcore/internal/state"
)

// increaseArgs carries one position increase. For isolated margin,
// Margin is the gross token amount already debited from the user's
// balance; for portfolio margin it is the gross USD value to pledge.
type increaseArgs struct {
	Mode      state.MarginMode
	Side      state.Side
	Margin    int64
	Leverage  int64
	FillPrice int64
}

// entryTick rounds a fill price to the market tick in the pool's favor:
// long entries round up, short entries round down.
func entryTick(price int64, side state.Side, tick int64) (int64, error) {
	if side == state.SideShort {
		return fixed.RoundDownToTick(price, tick)
	}
	return fixed.RoundUpToTick(price, tick)
}

// realizePositionFees folds unrealized funding and borrowing into the
// position's realized totals, token units, resetting both snapshots.
func (e *Engine) realizePositionFees(p *state.UserPosition, m *state.Market, pool *state.Pool, marginPrice int64, marginDecimals uint8) error {
	fundUSD, err := fee.RealizeFunding(p, m)
	if err != nil {
		return err
	}
	if fundUSD != 0 {
		tok, err := fixed.UsdToToken(fundUSD, marginPrice, marginDecimals)
		if err != nil {
			return err
		}
		if p.RealizedFundingFee, err = fixed.Add(p.RealizedFundingFee, tok); err != nil {
			return err
		}
	}
	borrowTok, err := fee.RealizeBorrowing(p, pool)
	if err != nil {
		return err
	}
	if borrowTok != 0 {
		if p.RealizedBorrowingFee, err = fixed.Add(p.RealizedBorrowingFee, borrowTok); err != nil {
			return err
		}
	}
	return nil
}

// increasePosition opens or grows a position. The market must already
// be accrued. Isolated margin tokens move from the shared user vault
// into the pool vault; portfolio margin stays put and is pledged.
func (e *Engine) increasePosition(u *state.User, m *state.Market, basePool, stablePool *state.Pool, args increaseArgs) error {
	if args.Side != state.SideLong && args.Side != state.SideShort {
		return errs.ErrInvalidParam
	}
	if err := m.CheckLeverage(args.Leverage); err != nil {
		return err
	}
	pool := basePool
	if args.Side == state.SideShort {
		pool = stablePool
	}

	existing := u.Position(m.Symbol, args.Mode)
	if existing != nil && existing.Side != args.Side {
		return errs.ErrOnlyOneDirectionPositionIsAllowed
	}
	if existing != nil && existing.Leverage != args.Leverage {
		return fmt.Errorf("leverage %d does not match open position: %w", args.Leverage, errs.ErrInvalidParam)
	}

	marginMint := m.MarginMintForSide(args.Side)
	tt, err := e.store.TradeToken(marginMint)
	if err != nil {
		return err
	}
	marginPrice, err := e.tokenPrice(tt)
	if err != nil {
		return err
	}

	// Gross margin in both denominations.
	var marginToken, marginUSD int64
	switch args.Mode {
	case state.MarginModeIsolated:
		marginToken = args.Margin
		if marginUSD, err = fixed.TokenToUSD(marginToken, marginPrice, tt.Decimals); err != nil {
			return err
		}
	case state.MarginModePortfolio:
		marginUSD = args.Margin
		if marginToken, err = fixed.UsdToTokenCeil(marginUSD, marginPrice, tt.Decimals); err != nil {
			return err
		}
	default:
		return errs.ErrInvalidParam
	}
	if marginUSD < e.params.MinOrderMarginUSD {
		return fmt.Errorf("margin below minimum: %w", errs.ErrAmountNotEnough)
	}

	size, err := fixed.Mul(marginUSD, args.Leverage)
	if err != nil {
		return err
	}
	openFeeUSD, err := fixed.MulRate(size, m.Config.OpenFeeRate)
	if err != nil {
		return err
	}
	openFeeToken, err := fixed.UsdToTokenCeil(openFeeUSD, marginPrice, tt.Decimals)
	if err != nil {
		return err
	}
	netMarginToken, err := fixed.Sub(marginToken, openFeeToken)
	if err != nil {
		return err
	}
	netMarginUSD, err := fixed.Sub(marginUSD, openFeeUSD)
	if err != nil {
		return err
	}
	if netMarginToken <= 0 || netMarginUSD <= 0 {
		return errs.ErrAmountNotEnough
	}

	fillPrice, err := entryTick(args.FillPrice, args.Side, m.Config.TickSize)
	if err != nil {
		return err
	}

	p, err := u.UsePosition(m.Symbol, args.Mode)
	if err != nil {
		return err
	}
	opening := p.PositionSize == 0
	if opening {
		p.Side = args.Side
		p.MarginMint = marginMint
		p.Leverage = args.Leverage
		p.OpenBorrowingFeePerToken = pool.BorrowingFee.CumulativePerToken
		p.OpenFundingFeePerSize = m.CumulativeFundingPerSize(args.Side)
		p.EntryPrice = fillPrice
	} else {
		// Fold pending fees so the new snapshot starts clean.
		if err := e.realizePositionFees(p, m, pool, marginPrice, tt.Decimals); err != nil {
			return err
		}
		blended, err := fixed.BlendPrice(p.PositionSize, p.EntryPrice, size, fillPrice)
		if err != nil {
			return err
		}
		if p.EntryPrice, err = entryTick(blended, args.Side, m.Config.TickSize); err != nil {
			return err
		}
	}

	// Reserve pool liquidity for the borrowed part of the notional.
	holdToken, err := fixed.Mul(netMarginToken, args.Leverage-1)
	if err != nil {
		return err
	}
	if err := pool.HoldLiquidity(holdToken); err != nil {
		if opening {
			u.ResetPosition(p)
		}
		return err
	}

	// Collateral movement. Isolated margin was debited at order
	// placement; it now moves to the pool vault. Portfolio margin is
	// pledged in place.
	switch args.Mode {
	case state.MarginModeIsolated:
		if err := e.ledger.Transfer(marginMint, VaultUserFunds, PoolVault(pool.ID), marginToken, vaultAuthorityProtocol); err != nil {
			return fmt.Errorf("margin transfer: %w", err)
		}
	case state.MarginModePortfolio:
		t, err := u.UseToken(marginMint)
		if err != nil {
			return err
		}
		if err := t.SubAmount(openFeeToken); err != nil {
			return err
		}
		if err := t.AddUsed(netMarginToken); err != nil {
			return err
		}
		if openFeeToken > 0 {
			if err := e.ledger.Transfer(marginMint, VaultUserFunds, PoolVault(pool.ID), openFeeToken, vaultAuthorityProtocol); err != nil {
				return fmt.Errorf("fee transfer: %w", err)
			}
		}
	}

	if err := pool.AddFeeReward(openFeeToken); err != nil {
		return err
	}

	preSize := p.PositionSize
	if p.PositionSize, err = fixed.Add(p.PositionSize, size); err != nil {
		return err
	}
	if p.InitialMargin, err = fixed.Add(p.InitialMargin, netMarginToken); err != nil {
		return err
	}
	if p.InitialMarginUSD, err = fixed.Add(p.InitialMarginUSD, netMarginUSD); err != nil {
		return err
	}
	if p.HoldPoolAmount, err = fixed.Add(p.HoldPoolAmount, holdToken); err != nil {
		return err
	}
	p.UpdatedAt = e.now()

	if err := m.OpenInterest(args.Side).AddOpenInterest(size, fillPrice); err != nil {
		return err
	}

	e.sink.Publish(event.PositionChange{
		UserID:       u.ID,
		Symbol:       m.Symbol,
		MarginMode:   args.Mode.String(),
		Side:         args.Side.String(),
		PreSize:      preSize,
		PostSize:     p.PositionSize,
		EntryPrice:   p.EntryPrice,
		ExecutePrice: fillPrice,
	})
	e.updatePoolGauges(pool)
	e.updateMarketGauges(m)
	return nil
}

// decreasePosition shrinks or closes a position at execPrice and
// settles the result against the backing pool. The market must already
// be accrued.
func (e *Engine) decreasePosition(u *state.User, m *state.Market, basePool, stablePool *state.Pool, p *state.UserPosition, d, execPrice int64, reason decreaseReason) (settlement, error) {
	pool := basePool
	if p.Side == state.SideShort {
		pool = stablePool
	}
	tt, err := e.store.TradeToken(p.MarginMint)
	if err != nil {
		return settlement{}, err
	}
	marginPrice, err := e.tokenPrice(tt)
	if err != nil {
		return settlement{}, err
	}
	if err := e.realizePositionFees(p, m, pool, marginPrice, tt.Decimals); err != nil {
		return settlement{}, err
	}

	st, err := calculateDecrease(p, m, d, execPrice, marginPrice, tt.Decimals, reason)
	if err != nil {
		return settlement{}, err
	}
	if reason == reasonTrade && p.MarginMode == state.MarginModeIsolated && st.SettleMargin < 0 {
		return settlement{}, errs.ErrPositionShouldBeLiquidation
	}

	full := d == p.PositionSize
	releaseHold := p.HoldPoolAmount
	if !full {
		if releaseHold, err = fixed.MulDiv(p.HoldPoolAmount, d, p.PositionSize); err != nil {
			return settlement{}, err
		}
	}
	if err := pool.ReleaseLiquidity(releaseHold); err != nil {
		return settlement{}, err
	}

	// Pool bookkeeping: trading and borrowing fees accrue for
	// distribution, funding is booked unsettled until rebalance, and a
	// pool loss both debits liquidity and is tallied.
	tradeFees, err := fixed.Add(st.CloseFee, st.BorrowingFee)
	if err != nil {
		return settlement{}, err
	}
	if tradeFees > 0 {
		if err := pool.AddFeeReward(tradeFees); err != nil {
			return settlement{}, err
		}
	}
	if st.FundingFee != 0 {
		if err := pool.AddUnsettled(st.FundingFee); err != nil {
			return settlement{}, err
		}
	}
	if st.PoolPnL > 0 {
		if err := pool.AddAmount(st.PoolPnL); err != nil {
			return settlement{}, err
		}
	} else if st.PoolPnL < 0 {
		loss := -st.PoolPnL
		if err := pool.SubAmount(loss); err != nil {
			return settlement{}, err
		}
		if err := pool.AddLoss(loss); err != nil {
			return settlement{}, err
		}
	}
	if st.Insurance > 0 {
		if err := pool.AddInsurance(st.Insurance); err != nil {
			return settlement{}, err
		}
	}

	// Trader settlement.
	switch p.MarginMode {
	case state.MarginModeIsolated:
		if st.SettleMargin > 0 {
			if err := e.ledger.Transfer(p.MarginMint, PoolVault(pool.ID), UserAccount(u.ID), st.SettleMargin, vaultAuthorityProtocol); err != nil {
				return settlement{}, fmt.Errorf("settle transfer: %w", err)
			}
		}
	case state.MarginModePortfolio:
		if err := e.settlePortfolio(u, m, pool, p.MarginMint, tt, st); err != nil {
			return settlement{}, err
		}
	}

	if err := m.OpenInterest(p.Side).SubOpenInterest(d, execPrice); err != nil {
		return settlement{}, err
	}

	preSize := p.PositionSize
	side := p.Side
	mode := p.MarginMode
	symbol := p.Symbol
	entry := p.EntryPrice
	if full {
		u.ResetPosition(p)
		e.cancelDecreaseOrders(u, symbol, mode)
	} else {
		if p.PositionSize, err = fixed.Sub(p.PositionSize, d); err != nil {
			return settlement{}, err
		}
		if p.InitialMargin, err = fixed.Sub(p.InitialMargin, st.DecreaseMargin); err != nil {
			return settlement{}, err
		}
		if p.InitialMarginUSD, err = fixed.Sub(p.InitialMarginUSD, st.DecreaseMarginUSD); err != nil {
			return settlement{}, err
		}
		if p.RealizedBorrowingFee, err = fixed.Sub(p.RealizedBorrowingFee, st.BorrowingFee); err != nil {
			return settlement{}, err
		}
		if p.RealizedFundingFee, err = fixed.Sub(p.RealizedFundingFee, st.FundingFee); err != nil {
			return settlement{}, err
		}
		if p.RealizedPnL, err = fixed.Add(p.RealizedPnL, st.UserRealizedPnL); err != nil {
			return settlement{}, err
		}
		if p.HoldPoolAmount, err = fixed.Sub(p.HoldPoolAmount, fixed.Min(releaseHold, p.HoldPoolAmount)); err != nil {
			return settlement{}, err
		}
		p.UpdatedAt = e.now()
	}

	e.sink.Publish(event.PositionChange{
		UserID:        u.ID,
		Symbol:        symbol,
		MarginMode:    mode.String(),
		Side:          side.String(),
		PreSize:       preSize,
		PostSize:      preSize - d,
		EntryPrice:    entry,
		ExecutePrice:  execPrice,
		RealizedPnL:   st.UserRealizedPnL,
		SettleFee:     st.SettleFee,
		IsLiquidation: reason == reasonLiquidation,
	})
	e.updatePoolGauges(pool)
	e.updateMarketGauges(m)
	return st, nil
}

// settlePortfolio nets a decrease settlement against the user's shared
// balance. The pledged margin is released, then the realized delta is
// credited or debited; a debit the balance cannot cover becomes a
// recorded liability, and stable-side shortfalls accumulate on the
// market for the next rebalance.
func (e *Engine) settlePortfolio(u *state.User, m *state.Market, pool *state.Pool, mint string, tt *state.TradeToken, st settlement) error {
	t, err := u.UseToken(mint)
	if err != nil {
		return err
	}
	if err := t.SubUsed(fixed.Min(st.DecreaseMargin, t.UsedAmount)); err != nil {
		return err
	}

	delta := st.UserRealizedPnL
	switch {
	case delta > 0:
		if err := t.AddAmount(delta); err != nil {
			return err
		}
		if err := e.ledger.Transfer(mint, PoolVault(pool.ID), VaultUserFunds, delta, vaultAuthorityProtocol); err != nil {
			return fmt.Errorf("settle transfer: %w", err)
		}
	case delta < 0:
		loss := -delta
		paid := fixed.Min(loss, t.Amount)
		if paid > 0 {
			if err := t.SubAmount(paid); err != nil {
				return err
			}
			if err := e.ledger.Transfer(mint, VaultUserFunds, PoolVault(pool.ID), paid, vaultAuthorityProtocol); err != nil {
				return fmt.Errorf("settle transfer: %w", err)
			}
		}
		if shortfall := loss - paid; shortfall > 0 {
			if err := t.AddLiability(shortfall); err != nil {
				return err
			}
			if err := tt.AddTotalLiability(shortfall); err != nil {
				return err
			}
			if mint == m.StableMint {
				if err := m.AddStableLoss(shortfall); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// cancelDecreaseOrders drops pending decrease orders for a closed
// position; their triggers no longer reference anything.
func (e *Engine) cancelDecreaseOrders(u *state.User, symbol string, mode state.MarginMode) {
	for i := range u.Orders {
		o := &u.Orders[i]
		if o.Status != state.SlotUsing || o.Effect != state.OrderEffectDecrease {
			continue
		}
		if o.Symbol != symbol || o.MarginMode != mode {
			continue
		}
		id := o.OrderID
		u.ResetOrder(o)
		e.sink.Publish(event.OrderChange{UserID: u.ID, OrderID: id, Symbol: symbol, Action: "cancelled"})
	}
}
