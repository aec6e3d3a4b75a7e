package engine

import (
	"fmt"

	"github.com/google/uuid"

	"perpcore/internal/errs"
	"perpcore/internal/event"
	"perpcore/internal/fixed"
	"perpcore/internal/state"
)

// AddPositionMargin tops up an isolated position's collateral, lowering
// its effective liquidation price. The nominal leverage stays as
// opened; only the margin backing grows.
func (e *Engine) AddPositionMargin(userID uuid.UUID, symbol string, amount int64) error {
	return e.apply("add_position_margin", func() error {
		if amount <= 0 {
			return errs.ErrInvalidParam
		}
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
		price, err := e.tokenPrice(tt)
		if err != nil {
			return err
		}
		// Settle pending fees before the margin base changes; borrowing
		// is charged on margin * (leverage - 1).
		if err := e.realizePositionFees(p, m, pool, price, tt.Decimals); err != nil {
			return err
		}

		t := u.Token(p.MarginMint)
		if t == nil || t.Available() < amount {
			return errs.ErrAmountNotEnough
		}
		if err := t.SubAmount(amount); err != nil {
			return err
		}
		if err := e.ledger.Transfer(p.MarginMint, VaultUserFunds, PoolVault(pool.ID), amount, vaultAuthorityProtocol); err != nil {
			return fmt.Errorf("margin transfer: %w", err)
		}

		addUSD, err := fixed.TokenToUSD(amount, price, tt.Decimals)
		if err != nil {
			return err
		}
		if p.InitialMargin, err = fixed.Add(p.InitialMargin, amount); err != nil {
			return err
		}
		if p.InitialMarginUSD, err = fixed.Add(p.InitialMarginUSD, addUSD); err != nil {
			return err
		}
		p.UpdatedAt = e.now()

		e.sink.Publish(event.PositionChange{
			UserID:     userID,
			Symbol:     symbol,
			MarginMode: p.MarginMode.String(),
			Side:       p.Side.String(),
			PreSize:    p.PositionSize,
			PostSize:   p.PositionSize,
			EntryPrice: p.EntryPrice,
		})
		return nil
	})
}

// UpdatePositionLeverage re-targets a position's nominal leverage,
// moving margin so that margin * leverage keeps covering the open
// notional. Raising leverage frees margin back to the user; lowering it
// pulls more in. The pool hold is re-derived from the new margin.
func (e *Engine) UpdatePositionLeverage(userID uuid.UUID, symbol string, mode state.MarginMode, leverage int64) error {
	return e.apply("update_position_leverage", func() error {
		u, err := e.store.User(userID)
		if err != nil {
			return err
		}
		p := u.Position(symbol, mode)
		if p == nil {
			return errs.ErrPositionNotFound
		}
		m, err := e.store.Market(symbol)
		if err != nil {
			return err
		}
		if err := m.CheckLeverage(leverage); err != nil {
			return err
		}
		if leverage == p.Leverage {
			return nil
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
		price, err := e.tokenPrice(tt)
		if err != nil {
			return err
		}
		if err := e.realizePositionFees(p, m, pool, price, tt.Decimals); err != nil {
			return err
		}

		targetMarginUSD, err := fixed.Div(p.PositionSize, leverage)
		if err != nil {
			return err
		}
		targetMargin, err := fixed.UsdToTokenCeil(targetMarginUSD, price, tt.Decimals)
		if err != nil {
			return err
		}

		t, err := u.UseToken(p.MarginMint)
		if err != nil {
			return err
		}
		switch {
		case targetMargin > p.InitialMargin:
			add := targetMargin - p.InitialMargin
			switch mode {
			case state.MarginModeIsolated:
				if t.Available() < add {
					return errs.ErrAmountNotEnough
				}
				if err := t.SubAmount(add); err != nil {
					return err
				}
				if err := e.ledger.Transfer(p.MarginMint, VaultUserFunds, PoolVault(pool.ID), add, vaultAuthorityProtocol); err != nil {
					return fmt.Errorf("margin transfer: %w", err)
				}
			case state.MarginModePortfolio:
				if t.Available() < add {
					return errs.ErrUserAvailableValueNotEnough
				}
				if err := t.AddUsed(add); err != nil {
					return err
				}
			}
		case targetMargin < p.InitialMargin:
			free := p.InitialMargin - targetMargin
			switch mode {
			case state.MarginModeIsolated:
				if err := e.ledger.Transfer(p.MarginMint, PoolVault(pool.ID), VaultUserFunds, free, vaultAuthorityProtocol); err != nil {
					return fmt.Errorf("margin transfer: %w", err)
				}
				if err := t.AddAmount(free); err != nil {
					return err
				}
			case state.MarginModePortfolio:
				if err := t.SubUsed(fixed.Min(free, t.UsedAmount)); err != nil {
					return err
				}
			}
		}

		newHold, err := fixed.Mul(targetMargin, leverage-1)
		if err != nil {
			return err
		}
		switch {
		case newHold > p.HoldPoolAmount:
			if err := pool.HoldLiquidity(newHold - p.HoldPoolAmount); err != nil {
				return err
			}
		case newHold < p.HoldPoolAmount:
			if err := pool.ReleaseLiquidity(p.HoldPoolAmount - newHold); err != nil {
				return err
			}
		}
		p.HoldPoolAmount = newHold

		p.InitialMargin = targetMargin
		if p.InitialMarginUSD, err = fixed.TokenToUSD(targetMargin, price, tt.Decimals); err != nil {
			return err
		}
		p.Leverage = leverage
		p.UpdatedAt = e.now()

		e.sink.Publish(event.PositionChange{
			UserID:     userID,
			Symbol:     symbol,
			MarginMode: mode.String(),
			Side:       p.Side.String(),
			PreSize:    p.PositionSize,
			PostSize:   p.PositionSize,
			EntryPrice: p.EntryPrice,
		})
		e.updatePoolGauges(pool)
		return nil
	})
}
