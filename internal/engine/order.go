package engine

import (
	"fmt"

	"github.com/google/uuid"

	"perpcore/internal/errs"
	"perpcore/internal/event"
	"perpcore/internal/fixed"
	"perpcore/internal/state"
)

// OrderParams describes a new order. For increase orders, Margin is the
// isolated token amount or the portfolio USD value to commit; Size is
// ignored and derived from margin and leverage at fill time. For
// decrease orders, Size is the USD notional to close and Margin must be
// zero.
type OrderParams struct {
	Symbol     string
	MarginMode state.MarginMode
	Side       state.Side
	Effect     state.OrderEffect
	OrderType  state.OrderType
	StopKind   state.StopKind
	Price      int64
	Size       int64
	Margin     int64
	Leverage   int64
}

// PlaceOrder validates and books an order, reserving its margin.
// Isolated margin is debited from the internal balance immediately;
// portfolio margin is held as USD value against the collateral pool.
func (e *Engine) PlaceOrder(userID uuid.UUID, params OrderParams) (uuid.UUID, error) {
	var orderID uuid.UUID
	err := e.apply("place_order", func() error {
		m, err := e.store.Market(params.Symbol)
		if err != nil {
			return err
		}
		u, err := e.store.User(userID)
		if err != nil {
			return err
		}
		if params.Side != state.SideLong && params.Side != state.SideShort {
			return errs.ErrInvalidParam
		}
		if (params.OrderType == state.OrderTypeStop) != (params.StopKind != state.StopNone) {
			return errs.ErrInvalidParam
		}
		if params.OrderType != state.OrderTypeMarket && params.Price <= 0 {
			return errs.ErrInvalidParam
		}

		marginMint := m.MarginMintForSide(params.Side)
		o := state.UserOrder{
			OrderID:    uuid.New(),
			Symbol:     params.Symbol,
			MarginMode: params.MarginMode,
			Side:       params.Side,
			Effect:     params.Effect,
			OrderType:  params.OrderType,
			StopKind:   params.StopKind,
			MarginMint: marginMint,
			Price:      params.Price,
			Size:       params.Size,
			Margin:     params.Margin,
			Leverage:   params.Leverage,
			CreatedAt:  e.now(),
		}

		switch params.Effect {
		case state.OrderEffectIncrease:
			if params.StopKind != state.StopNone {
				return errs.ErrInvalidParam
			}
			if err := m.CheckLeverage(params.Leverage); err != nil {
				return err
			}
			if params.Margin <= 0 {
				return errs.ErrInvalidParam
			}
			switch params.MarginMode {
			case state.MarginModeIsolated:
				t := u.Token(marginMint)
				if t == nil {
					return fmt.Errorf("margin mint %s: %w", marginMint, errs.ErrTokenNotMatch)
				}
				if t.Available() < params.Margin {
					return errs.ErrAmountNotEnough
				}
				if err := t.SubAmount(params.Margin); err != nil {
					return err
				}
			case state.MarginModePortfolio:
				available, err := e.availableValueUSD(u)
				if err != nil {
					return err
				}
				if params.Margin > available {
					return errs.ErrUserAvailableValueNotEnough
				}
				if err := u.AddHold(params.Margin); err != nil {
					return err
				}
			default:
				return errs.ErrInvalidParam
			}
		case state.OrderEffectDecrease:
			if params.Margin != 0 || params.Size <= 0 {
				return errs.ErrInvalidParam
			}
			p := u.Position(params.Symbol, params.MarginMode)
			if p == nil || p.Side != params.Side {
				return errs.ErrPositionNotFound
			}
		default:
			return errs.ErrInvalidParam
		}

		slot, err := u.AddOrder(o)
		if err != nil {
			// Undo the margin reservation; the slot claim failed after it.
			switch {
			case params.Effect == state.OrderEffectIncrease && params.MarginMode == state.MarginModeIsolated:
				if t := u.Token(marginMint); t != nil {
					_ = t.AddAmount(params.Margin)
				}
			case params.Effect == state.OrderEffectIncrease && params.MarginMode == state.MarginModePortfolio:
				_ = u.SubHold(params.Margin)
			}
			return err
		}
		orderID = slot.OrderID
		e.sink.Publish(event.OrderChange{UserID: userID, OrderID: orderID, Symbol: params.Symbol, Action: "placed"})
		return nil
	})
	return orderID, err
}

// CancelOrder releases a pending order and refunds its reservation.
func (e *Engine) CancelOrder(userID, orderID uuid.UUID) error {
	return e.apply("cancel_order", func() error {
		u, err := e.store.User(userID)
		if err != nil {
			return err
		}
		o := u.Order(orderID)
		if o == nil {
			return errs.ErrOrderNotFound
		}
		if o.Effect == state.OrderEffectIncrease {
			switch o.MarginMode {
			case state.MarginModeIsolated:
				t, err := u.UseToken(o.MarginMint)
				if err != nil {
					return err
				}
				if err := t.AddAmount(o.Margin); err != nil {
					return err
				}
			case state.MarginModePortfolio:
				if err := u.SubHold(o.Margin); err != nil {
					return err
				}
			}
		}
		symbol := o.Symbol
		u.ResetOrder(o)
		e.sink.Publish(event.OrderChange{UserID: userID, OrderID: orderID, Symbol: symbol, Action: "cancelled"})
		return nil
	})
}

// ExecuteOrder fills a pending order against the current index price.
// A filled order frees its slot, so re-executing the same id fails with
// ErrOrderNotFound.
func (e *Engine) ExecuteOrder(userID, orderID uuid.UUID) error {
	return e.apply("execute_order", func() error {
		u, err := e.store.User(userID)
		if err != nil {
			return err
		}
		o := u.Order(orderID)
		if o == nil {
			return errs.ErrOrderNotFound
		}
		m, err := e.store.Market(o.Symbol)
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
		indexPrice, err := e.indexPrice(m)
		if err != nil {
			return err
		}

		fillPrice, err := orderFillPrice(o, indexPrice)
		if err != nil {
			return err
		}
		symbol := o.Symbol

		switch o.Effect {
		case state.OrderEffectIncrease:
			switch o.MarginMode {
			case state.MarginModePortfolio:
				if err := u.SubHold(o.Margin); err != nil {
					return err
				}
			}
			if err := e.increasePosition(u, m, basePool, stablePool, increaseArgs{
				Mode:      o.MarginMode,
				Side:      o.Side,
				Margin:    o.Margin,
				Leverage:  o.Leverage,
				FillPrice: fillPrice,
			}); err != nil {
				return err
			}
		case state.OrderEffectDecrease:
			p := u.Position(o.Symbol, o.MarginMode)
			if p == nil || p.Side != o.Side {
				return errs.ErrPositionNotFound
			}
			d := fixed.Min(o.Size, p.PositionSize)
			if _, err := e.decreasePosition(u, m, basePool, stablePool, p, d, fillPrice, reasonTrade); err != nil {
				return err
			}
		}

		if o.Status == state.SlotUsing {
			// A full close cancels sibling decrease orders, which may
			// have freed this slot already.
			u.ResetOrder(o)
		}
		e.sink.Publish(event.OrderChange{UserID: userID, OrderID: orderID, Symbol: symbol, Action: "filled"})
		return nil
	})
}

// indexPrice is the market's base token oracle price.
func (e *Engine) indexPrice(m *state.Market) (int64, error) {
	tt, err := e.store.TradeToken(m.BaseMint)
	if err != nil {
		return 0, err
	}
	return e.tokenPrice(tt)
}

// orderFillPrice resolves the execution price and checks the order's
// trigger against the index.
func orderFillPrice(o *state.UserOrder, index int64) (int64, error) {
	switch o.OrderType {
	case state.OrderTypeMarket:
		return index, nil
	case state.OrderTypeLimit:
		// A limit fills at its price once the index crosses it: buys at
		// or below, sells at or above.
		buying := (o.Effect == state.OrderEffectIncrease) == (o.Side == state.SideLong)
		if buying && index <= o.Price {
			return o.Price, nil
		}
		if !buying && index >= o.Price {
			return o.Price, nil
		}
		return 0, fmt.Errorf("limit %d not crossed by index %d: %w", o.Price, index, errs.ErrInvalidParam)
	case state.OrderTypeStop:
		triggered := false
		switch {
		case o.StopKind == state.StopLoss && o.Side == state.SideLong:
			triggered = index <= o.Price
		case o.StopKind == state.StopLoss && o.Side == state.SideShort:
			triggered = index >= o.Price
		case o.StopKind == state.TakeProfit && o.Side == state.SideLong:
			triggered = index >= o.Price
		case o.StopKind == state.TakeProfit && o.Side == state.SideShort:
			triggered = index <= o.Price
		}
		if !triggered {
			return 0, fmt.Errorf("stop %d not triggered by index %d: %w", o.Price, index, errs.ErrInvalidParam)
		}
		return index, nil
	}
	return 0, errs.ErrInvalidParam
}
