package engine

import (
	"fmt"

	"github.com/google/uuid"

	"perpcore/internal/errs"
	"perpcore/internal/event"
	"perpcore/internal/fee"
	"perpcore/internal/fixed"
)

// CollectPoolFees distributes a pool's accumulated fee accrual by the
// configured split: the pool share becomes liquidity, the staking share
// advances the per-stake reward cursor (vesting over the next three
// collections), and the DAO share waits in its bucket for the rebalance
// sweep. Collecting an empty accrual is a no-op, so keeper retries are
// safe.
func (e *Engine) CollectPoolFees(poolID string) error {
	return e.apply("collect_pool_fees", func() error {
		pool, err := e.store.Pool(poolID)
		if err != nil {
			return err
		}
		split, err := fee.CollectPoolRewards(pool, e.params)
		if err != nil {
			return err
		}
		if split.PoolRewards > 0 {
			if err := pool.AddAmount(split.PoolRewards); err != nil {
				return err
			}
		}
		if e.metrics != nil {
			e.metrics.RewardsCollected.WithLabelValues(poolID).Inc()
		}
		e.sink.Publish(event.PoolChange{
			PoolID:        poolID,
			Amount:        pool.Balance.Amount,
			HoldAmount:    pool.Balance.HoldAmount,
			Unsettled:     pool.Balance.UnsettledAmount,
			InsuranceFund: pool.InsuranceFundAmount,
			Reason:        "collect_fees",
		})
		e.updatePoolGauges(pool)
		return nil
	})
}

// CollectRewards pays a staker's vested pending rewards into their
// internal balance.
func (e *Engine) CollectRewards(userID uuid.UUID, poolID string) error {
	return e.apply("collect_rewards", func() error {
		u, err := e.store.User(userID)
		if err != nil {
			return err
		}
		pool, err := e.store.Pool(poolID)
		if err != nil {
			return err
		}
		s := u.Stake(poolID)
		if s == nil {
			return errs.ErrStakeNotFound
		}
		amount, err := e.realizeStakeRewards(u, s, pool)
		if err != nil {
			return err
		}
		e.sink.Publish(event.RewardsCollect{UserID: userID, PoolID: poolID, Amount: amount})
		return nil
	})
}

// AutoCompound realizes a stake's vested rewards and restakes them at
// the current NAV in the same operation, skipping the stake fee and the
// minimum-stake bound: the liquidity never really left the pool.
func (e *Engine) AutoCompound(userID uuid.UUID, poolID string) error {
	return e.apply("auto_compound", func() error {
		u, err := e.store.User(userID)
		if err != nil {
			return err
		}
		pool, err := e.store.Pool(poolID)
		if err != nil {
			return err
		}
		s := u.Stake(poolID)
		if s == nil {
			return errs.ErrStakeNotFound
		}
		amount, err := e.realizeStakeRewards(u, s, pool)
		if err != nil {
			return err
		}
		if amount == 0 {
			return nil
		}
		tt, err := e.store.TradeToken(pool.MintKey)
		if err != nil {
			return err
		}
		mintPrice, err := e.tokenPrice(tt)
		if err != nil {
			return err
		}

		var shares int64
		if pool.TotalSupply == 0 {
			shares = amount
		} else {
			nav, err := e.poolNAVUSD(pool, mintPrice, tt.Decimals)
			if err != nil {
				return err
			}
			if nav <= 0 {
				return errs.ErrPoolAvailableLiquidityNotEnough
			}
			amountUSD, err := fixed.TokenToUSD(amount, mintPrice, tt.Decimals)
			if err != nil {
				return err
			}
			if shares, err = fixed.MulDiv(amountUSD, pool.TotalSupply, nav); err != nil {
				return err
			}
		}
		if shares <= 0 {
			return nil
		}

		t, err := u.UseToken(pool.MintKey)
		if err != nil {
			return err
		}
		if err := t.SubAmount(amount); err != nil {
			return err
		}
		if err := e.ledger.Transfer(pool.MintKey, VaultUserFunds, PoolVault(poolID), amount, vaultAuthorityProtocol); err != nil {
			return fmt.Errorf("compound transfer: %w", err)
		}
		if err := pool.AddAmount(amount); err != nil {
			return err
		}

		preShares := s.StakedShares
		if s.StakedShares, err = fixed.Add(s.StakedShares, shares); err != nil {
			return err
		}
		if pool.TotalSupply, err = fixed.Add(pool.TotalSupply, shares); err != nil {
			return err
		}

		e.sink.Publish(event.StakeChange{
			UserID:     userID,
			PoolID:     poolID,
			PreShares:  preShares,
			PostShares: s.StakedShares,
			TokenDelta: amount,
			Action:     "auto_compound",
		})
		e.updatePoolGauges(pool)
		return nil
	})
}
