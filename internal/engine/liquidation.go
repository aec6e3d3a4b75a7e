package engine

import (
	"github.com/google/uuid"

	"perpcore/internal/errs"
	"perpcore/internal/event"
	"perpcore/internal/fee"
	"perpcore/internal/fixed"
	"perpcore/internal/state"
)

// IsolatedLiquidationPrice inverts the liquidation-boundary settlement:
// the price at which the position's margin, net of all fees and the
// maintenance margin, reaches zero. Longs round up to the tick and
// shorts round down, so the boundary is always hit from the safe side.
func (e *Engine) IsolatedLiquidationPrice(userID uuid.UUID, symbol string) (int64, error) {
	u, err := e.store.User(userID)
	if err != nil {
		return 0, err
	}
	p := u.Position(symbol, state.MarginModeIsolated)
	if p == nil {
		return 0, errs.ErrPositionNotFound
	}
	m, err := e.store.Market(symbol)
	if err != nil {
		return 0, err
	}
	pool, err := e.store.Pool(m.PoolIDForSide(p.Side))
	if err != nil {
		return 0, err
	}
	tt, err := e.store.TradeToken(p.MarginMint)
	if err != nil {
		return 0, err
	}
	marginPrice, err := e.tokenPrice(tt)
	if err != nil {
		return 0, err
	}
	feesUSD, err := e.positionFeesUSD(p, m, pool, marginPrice, tt.Decimals)
	if err != nil {
		return 0, err
	}
	return liquidationPrice(p, m, feesUSD)
}

// positionFeesUSD totals the position's settled and pending borrowing
// and funding fees plus the close fee on its full size, in USD.
func (e *Engine) positionFeesUSD(p *state.UserPosition, m *state.Market, pool *state.Pool, marginPrice int64, marginDecimals uint8) (int64, error) {
	pendingBorrow, err := fee.PositionUnrealizedBorrowing(p, pool)
	if err != nil {
		return 0, err
	}
	pendingFundUSD, err := fee.PositionUnrealizedFundingUSD(p, m)
	if err != nil {
		return 0, err
	}
	realizedTok, err := fixed.Add(p.RealizedBorrowingFee, p.RealizedFundingFee)
	if err != nil {
		return 0, err
	}
	if realizedTok, err = fixed.Add(realizedTok, pendingBorrow); err != nil {
		return 0, err
	}
	tokUSD, err := fixed.TokenToUSD(realizedTok, marginPrice, marginDecimals)
	if err != nil {
		return 0, err
	}
	closeFeeUSD, err := fixed.MulRate(p.PositionSize, m.Config.CloseFeeRate)
	if err != nil {
		return 0, err
	}
	total, err := fixed.Add(tokUSD, pendingFundUSD)
	if err != nil {
		return 0, err
	}
	return fixed.Add(total, closeFeeUSD)
}

// liquidationPrice solves settle_margin == 0 for the execute price:
//
//	margin_usd + size*(P-E)/E - fees - size*mm_rate = 0
//	P = E + E*(fees + mm - margin_usd)/size        (long; short mirrors)
func liquidationPrice(p *state.UserPosition, m *state.Market, feesUSD int64) (int64, error) {
	mmUSD, err := fixed.MulRate(p.PositionSize, m.Config.MaintenanceMarginRate)
	if err != nil {
		return 0, err
	}
	shortfall, err := fixed.Add(feesUSD, mmUSD)
	if err != nil {
		return 0, err
	}
	if shortfall, err = fixed.Sub(shortfall, p.InitialMarginUSD); err != nil {
		return 0, err
	}
	adj, err := fixed.MulDiv(p.EntryPrice, shortfall, p.PositionSize)
	if err != nil {
		return 0, err
	}
	var price int64
	if p.Side == state.SideLong {
		if price, err = fixed.Add(p.EntryPrice, adj); err != nil {
			return 0, err
		}
		if price < 0 {
			price = 0
		}
		return fixed.RoundUpToTick(price, m.Config.TickSize)
	}
	if price, err = fixed.Sub(p.EntryPrice, adj); err != nil {
		return 0, err
	}
	if price < 0 {
		price = 0
	}
	return fixed.RoundDownToTick(price, m.Config.TickSize)
}

// LiquidateIsolated force-closes an insolvent isolated position at its
// liquidation price. A still-healthy position is rejected with
// ErrLiquidatePositionIgnore so keeper sweeps can skip it.
func (e *Engine) LiquidateIsolated(userID uuid.UUID, symbol string) error {
	return e.apply("liquidate_isolated", func() error {
		u, err := e.store.User(userID)
		if err != nil {
			return err
		}
		p := u.Position(symbol, state.MarginModeIsolated)
		if p == nil {
			return errs.ErrPositionNotFound
		}
		m, err := e.store.Market(symbol)
		if err != nil {
			return err
		}
		basePool, stablePool, err := e.marketPools(m)
		if err != nil {
			return err
		}
		if err := e.accrueMarket(m, basePool, stablePool); err != nil {
			return err
		}
		pool := basePool
		if p.Side == state.SideShort {
			pool = stablePool
		}
		tt, err := e.store.TradeToken(p.MarginMint)
		if err != nil {
			return err
		}
		marginPrice, err := e.tokenPrice(tt)
		if err != nil {
			return err
		}
		index, err := e.indexPrice(m)
		if err != nil {
			return err
		}

		feesUSD, err := e.positionFeesUSD(p, m, pool, marginPrice, tt.Decimals)
		if err != nil {
			return err
		}
		pnl, err := positionPnLUSD(p, p.PositionSize, index)
		if err != nil {
			return err
		}
		equity, err := fixed.Add(p.InitialMarginUSD, pnl)
		if err != nil {
			return err
		}
		if equity, err = fixed.Sub(equity, feesUSD); err != nil {
			return err
		}
		mmUSD, err := fixed.MulRate(p.PositionSize, m.Config.MaintenanceMarginRate)
		if err != nil {
			return err
		}
		if equity > mmUSD {
			return errs.ErrLiquidatePositionIgnore
		}

		liqPrice, err := liquidationPrice(p, m, feesUSD)
		if err != nil {
			return err
		}
		size := p.PositionSize
		st, err := e.decreasePosition(u, m, basePool, stablePool, p, size, liqPrice, reasonLiquidation)
		if err != nil {
			return err
		}

		if e.metrics != nil {
			e.metrics.Liquidations.WithLabelValues("isolated").Inc()
		}
		e.sink.Publish(event.Liquidation{
			UserID:       userID,
			Symbol:       symbol,
			MarginMode:   state.MarginModeIsolated.String(),
			Size:         size,
			ExecutePrice: liqPrice,
			InsuranceIn:  st.Insurance,
		})
		return nil
	})
}

// crossLiquidationPrice shifts the index price by the entry-price share
// of the maintenance margin the bankruptcy rate does not cover:
//
//	P = index +/- E*(mm_rate - bankruptcy_rate)   (+ long, - short)
//
// Settling each position there leaves the estate at exactly zero once
// the per-position maintenance margin is taken for insurance.
func crossLiquidationPrice(p *state.UserPosition, m *state.Market, index, bankruptcyMR int64) (int64, error) {
	rate, err := fixed.Sub(m.Config.MaintenanceMarginRate, bankruptcyMR)
	if err != nil {
		return 0, err
	}
	adj, err := fixed.MulRate(p.EntryPrice, rate)
	if err != nil {
		return 0, err
	}
	var price int64
	if p.Side == state.SideLong {
		if price, err = fixed.Add(index, adj); err != nil {
			return 0, err
		}
		if price < 0 {
			price = 0
		}
		return fixed.RoundUpToTick(price, m.Config.TickSize)
	}
	if price, err = fixed.Sub(index, adj); err != nil {
		return 0, err
	}
	if price < 0 {
		price = 0
	}
	return fixed.RoundDownToTick(price, m.Config.TickSize)
}

// LiquidateCross force-closes all of a user's portfolio positions when
// the cross-margin estate is insolvent: net collateral value plus total
// unrealized PnL minus total fees at or below the total maintenance
// margin. Every position settles at a price derived from a shared
// bankruptcy margin rate, so the estate's remaining value is consumed
// proportionally to position size.
func (e *Engine) LiquidateCross(userID uuid.UUID) error {
	return e.apply("liquidate_cross", func() error {
		u, err := e.store.User(userID)
		if err != nil {
			return err
		}
		positions := u.CrossPositions()
		if len(positions) == 0 {
			return errs.ErrPositionNotFound
		}

		// Accrue and realize fees on every touched market before any
		// valuation; the time gate keeps a market shared by several
		// positions from accruing twice.
		type posCtx struct {
			p          *state.UserPosition
			m          *state.Market
			basePool   *state.Pool
			stablePool *state.Pool
		}
		ctxs := make([]posCtx, 0, len(positions))
		for _, p := range positions {
			m, err := e.store.Market(p.Symbol)
			if err != nil {
				return err
			}
			basePool, stablePool, err := e.marketPools(m)
			if err != nil {
				return err
			}
			if err := e.accrueMarket(m, basePool, stablePool); err != nil {
				return err
			}
			ctxs = append(ctxs, posCtx{p: p, m: m, basePool: basePool, stablePool: stablePool})
		}

		netValue, err := e.netValueUSD(u)
		if err != nil {
			return err
		}
		var totalPnL, totalFees, totalSize, totalMM int64
		for _, c := range ctxs {
			pool := c.basePool
			if c.p.Side == state.SideShort {
				pool = c.stablePool
			}
			tt, err := e.store.TradeToken(c.p.MarginMint)
			if err != nil {
				return err
			}
			marginPrice, err := e.tokenPrice(tt)
			if err != nil {
				return err
			}
			index, err := e.indexPrice(c.m)
			if err != nil {
				return err
			}
			pnl, err := positionPnLUSD(c.p, c.p.PositionSize, index)
			if err != nil {
				return err
			}
			fees, err := e.positionFeesUSD(c.p, c.m, pool, marginPrice, tt.Decimals)
			if err != nil {
				return err
			}
			mm, err := fixed.MulRate(c.p.PositionSize, c.m.Config.MaintenanceMarginRate)
			if err != nil {
				return err
			}
			if totalPnL, err = fixed.Add(totalPnL, pnl); err != nil {
				return err
			}
			if totalFees, err = fixed.Add(totalFees, fees); err != nil {
				return err
			}
			if totalSize, err = fixed.Add(totalSize, c.p.PositionSize); err != nil {
				return err
			}
			if totalMM, err = fixed.Add(totalMM, mm); err != nil {
				return err
			}
		}

		crossNetValue, err := fixed.Add(netValue, totalPnL)
		if err != nil {
			return err
		}
		if crossNetValue, err = fixed.Sub(crossNetValue, totalFees); err != nil {
			return err
		}
		if crossNetValue > 0 && crossNetValue > totalMM {
			return errs.ErrLiquidatePositionIgnore
		}

		// Shared bankruptcy margin rate: the fraction of total size the
		// estate is still worth. Signed, so an underwater estate pushes
		// the settle prices past the index and the pools absorb the gap.
		var bankruptcyMR int64
		if totalSize > 0 {
			if bankruptcyMR, err = fixed.MulDiv(crossNetValue, fixed.RatePrecision, totalSize); err != nil {
				return err
			}
		}

		// Every position closes at its bankruptcy price, shifted off the
		// index by the shared rate, so the settlements drain the estate
		// to exactly zero with no recorded liability.
		for _, c := range ctxs {
			index, err := e.indexPrice(c.m)
			if err != nil {
				return err
			}
			execPrice, err := crossLiquidationPrice(c.p, c.m, index, bankruptcyMR)
			if err != nil {
				return err
			}
			size := c.p.PositionSize
			st, err := e.decreasePosition(u, c.m, c.basePool, c.stablePool, c.p, size, execPrice, reasonLiquidation)
			if err != nil {
				return err
			}
			e.sink.Publish(event.Liquidation{
				UserID:       userID,
				Symbol:       c.m.Symbol,
				MarginMode:   state.MarginModePortfolio.String(),
				Size:         size,
				ExecutePrice: execPrice,
				BankruptcyMR: bankruptcyMR,
				InsuranceIn:  st.Insurance,
			})
		}
		if e.metrics != nil {
			e.metrics.Liquidations.WithLabelValues("cross").Inc()
		}
		return nil
	})
}
