package engine

import (
	"fmt"

	"perpcore/internal/event"
	"perpcore/internal/fixed"
	"perpcore/internal/state"
)

// Rebalance settles the bookkeeping a market's trading left behind:
// each pool's unsettled funding is folded into its liquidity, the DAO
// buckets are swept to the DAO vault, and the accumulated stable-side
// shortfall is booked as a stable pool loss. Every step drains an
// accumulator to zero, so running rebalance twice is a no-op.
func (e *Engine) Rebalance(symbol string) error {
	return e.apply("rebalance", func() error {
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

		baseSettled, err := e.settlePoolUnsettled(basePool)
		if err != nil {
			return err
		}
		stableSettled, err := e.settlePoolUnsettled(stablePool)
		if err != nil {
			return err
		}

		for _, pool := range []*state.Pool{basePool, stablePool} {
			if dao := pool.FeeReward.DaoAmount; dao > 0 {
				if err := e.ledger.Transfer(pool.MintKey, PoolVault(pool.ID), VaultDao, dao, vaultAuthorityProtocol); err != nil {
					return fmt.Errorf("dao sweep: %w", err)
				}
				pool.FeeReward.DaoAmount = 0
			}
		}

		stableLoss := m.StableLoss
		if stableLoss > 0 {
			if err := stablePool.AddLoss(stableLoss); err != nil {
				return err
			}
			m.StableLoss = 0
		}

		e.sink.Publish(event.Rebalance{
			Symbol:         symbol,
			BaseSettled:    baseSettled,
			StableSettled:  stableSettled,
			StableLossMove: stableLoss,
		})
		e.updatePoolGauges(basePool)
		e.updatePoolGauges(stablePool)
		e.updateMarketGauges(m)
		return nil
	})
}

// settlePoolUnsettled folds the pool's signed unsettled booking into
// its liquidity and returns the settled amount.
func (e *Engine) settlePoolUnsettled(p *state.Pool) (int64, error) {
	unsettled := p.Balance.UnsettledAmount
	if unsettled == 0 {
		return 0, nil
	}
	p.Balance.UnsettledAmount = 0
	if unsettled > 0 {
		if err := p.AddAmount(unsettled); err != nil {
			return 0, err
		}
		return unsettled, nil
	}
	deficit, err := fixed.Abs(unsettled)
	if err != nil {
		return 0, err
	}
	if err := p.SubAmount(fixed.Min(deficit, p.Balance.Amount)); err != nil {
		return 0, err
	}
	return unsettled, nil
}
