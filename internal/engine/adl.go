package engine

import (
	"github.com/google/uuid"

	"perpcore/internal/errs"
	"perpcore/internal/event"
	"perpcore/internal/fixed"
	"perpcore/internal/state"
)

// ExecuteADL auto-deleverages a position: a keeper-forced decrease at
// the keeper's price, which mirrors the fill given to the profitable
// counterparty, settled at fair value. Unlike liquidation there is no
// solvency gate, no maintenance-margin penalty, and nothing is posted
// to the insurance fund.
func (e *Engine) ExecuteADL(userID uuid.UUID, symbol string, mode state.MarginMode, size, price int64) error {
	return e.apply("adl", func() error {
		if size <= 0 || price <= 0 {
			return errs.ErrInvalidParam
		}
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
		basePool, stablePool, err := e.marketPools(m)
		if err != nil {
			return err
		}
		if err := e.accrueMarket(m, basePool, stablePool); err != nil {
			return err
		}
		d := fixed.Min(size, p.PositionSize)
		if _, err := e.decreasePosition(u, m, basePool, stablePool, p, d, price, reasonADL); err != nil {
			return err
		}

		if e.metrics != nil {
			e.metrics.ADLExecutions.WithLabelValues(symbol).Inc()
		}
		e.sink.Publish(event.ADLExecution{
			UserID:       userID,
			Symbol:       symbol,
			Size:         d,
			ExecutePrice: price,
		})
		return nil
	})
}
