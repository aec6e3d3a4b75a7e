package engine

import (
	"fmt"

	"github.com/google/uuid"

	"perpcore/internal/errs"
	"perpcore/internal/event"
	"perpcore/internal/fee"
	"perpcore/internal/fixed"
	"perpcore/internal/state"
)

// poolNAVTokens is the pool's own-token net asset base: free liquidity
// plus unsettled bookings, minus fee accruals not yet distributed.
// Tokens owed to stakers through the reward cursor were never folded
// into the balance, so they need no correction here.
func poolNAVTokens(p *state.Pool) (int64, error) {
	nav, err := fixed.Add(p.Balance.Amount, p.Balance.UnsettledAmount)
	if err != nil {
		return 0, err
	}
	if nav, err = fixed.Sub(nav, p.FeeReward.Amount); err != nil {
		return 0, err
	}
	return fixed.Sub(nav, p.FeeReward.DaoAmount)
}

// poolNAVUSD values the pool, marking the aggregate trader PnL the pool
// backs to the current index: the pool owes unrealized trader wins and
// is owed unrealized trader losses.
func (e *Engine) poolNAVUSD(p *state.Pool, mintPrice int64, decimals uint8) (int64, error) {
	navTok, err := poolNAVTokens(p)
	if err != nil {
		return 0, err
	}
	nav, err := fixed.TokenToUSD(navTok, mintPrice, decimals)
	if err != nil {
		return 0, err
	}
	for _, m := range e.store.Markets() {
		var oi *state.MarketPosition
		var long bool
		switch p.ID {
		case m.PoolID:
			oi, long = &m.LongOpenInterest, true
		case m.StablePoolID:
			oi, long = &m.ShortOpenInterest, false
		default:
			continue
		}
		if oi.Size == 0 || oi.AvgEntryPrice == 0 {
			continue
		}
		index, err := e.indexPrice(m)
		if err != nil {
			return 0, err
		}
		diff := index - oi.AvgEntryPrice
		if !long {
			diff = -diff
		}
		pnl, err := fixed.MulDiv(oi.Size, diff, oi.AvgEntryPrice)
		if err != nil {
			return 0, err
		}
		if nav, err = fixed.Sub(nav, pnl); err != nil {
			return 0, err
		}
	}
	return nav, nil
}

// realizeStakeRewards pays out a stake's vested pending rewards to the
// user's internal balance and returns the amount.
func (e *Engine) realizeStakeRewards(u *state.User, s *state.UserStake, p *state.Pool) (int64, error) {
	amount, err := fee.RealizeStakeRewards(s, p)
	if err != nil || amount == 0 {
		return amount, err
	}
	t, err := u.UseToken(p.MintKey)
	if err != nil {
		return 0, err
	}
	if err := t.AddAmount(amount); err != nil {
		return 0, err
	}
	if err := e.ledger.Transfer(p.MintKey, PoolVault(p.ID), VaultUserFunds, amount, vaultAuthorityProtocol); err != nil {
		return 0, fmt.Errorf("reward transfer: %w", err)
	}
	return amount, nil
}

// Stake deposits pool tokens for shares priced at the pool's net asset
// value. Share minting truncates, so rounding dust stays with the pool.
func (e *Engine) Stake(userID uuid.UUID, poolID string, amount int64) error {
	return e.apply("stake", func() error {
		u, err := e.store.User(userID)
		if err != nil {
			return err
		}
		pool, err := e.store.Pool(poolID)
		if err != nil {
			return err
		}
		if pool.Status == state.PoolStatusStakePaused {
			return errs.ErrPoolStatusNotNormal
		}
		if amount < pool.Config.MinimumStakeAmount {
			return errs.ErrAmountNotEnough
		}
		tt, err := e.store.TradeToken(pool.MintKey)
		if err != nil {
			return err
		}
		mintPrice, err := e.tokenPrice(tt)
		if err != nil {
			return err
		}

		t := u.Token(pool.MintKey)
		if t == nil || t.Available() < amount {
			return errs.ErrAmountNotEnough
		}

		stakeFee, err := fixed.MulRate(amount, pool.Config.StakeFeeRate)
		if err != nil {
			return err
		}
		base := amount - stakeFee

		// Price shares against NAV before the new liquidity lands.
		var shares int64
		if pool.TotalSupply == 0 {
			shares = base
		} else {
			nav, err := e.poolNAVUSD(pool, mintPrice, tt.Decimals)
			if err != nil {
				return err
			}
			if nav <= 0 {
				return errs.ErrPoolAvailableLiquidityNotEnough
			}
			baseUSD, err := fixed.TokenToUSD(base, mintPrice, tt.Decimals)
			if err != nil {
				return err
			}
			if shares, err = fixed.MulDiv(baseUSD, pool.TotalSupply, nav); err != nil {
				return err
			}
		}
		if shares <= 0 {
			return errs.ErrAmountNotEnough
		}

		s, err := u.UseStake(poolID)
		if err != nil {
			return err
		}
		if _, err := e.realizeStakeRewards(u, s, pool); err != nil {
			return err
		}

		if err := t.SubAmount(amount); err != nil {
			return err
		}
		if err := e.ledger.Transfer(pool.MintKey, VaultUserFunds, PoolVault(poolID), amount, vaultAuthorityProtocol); err != nil {
			return fmt.Errorf("stake transfer: %w", err)
		}
		if err := pool.AddAmount(base); err != nil {
			return err
		}
		if stakeFee > 0 {
			if err := pool.AddFeeReward(stakeFee); err != nil {
				return err
			}
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
			Action:     "stake",
		})
		e.updatePoolGauges(pool)
		return nil
	})
}

// UnStake burns shares for their NAV in pool tokens, bounded by the
// liquidity not reserved against open exposure.
func (e *Engine) UnStake(userID uuid.UUID, poolID string, shares int64) error {
	return e.apply("unstake", func() error {
		u, err := e.store.User(userID)
		if err != nil {
			return err
		}
		pool, err := e.store.Pool(poolID)
		if err != nil {
			return err
		}
		if pool.Status == state.PoolStatusUnStakePaused {
			return errs.ErrPoolStatusNotNormal
		}
		s := u.Stake(poolID)
		if s == nil {
			return errs.ErrStakeNotFound
		}
		if shares <= 0 || shares > s.StakedShares {
			return errs.ErrAmountNotEnough
		}
		tt, err := e.store.TradeToken(pool.MintKey)
		if err != nil {
			return err
		}
		mintPrice, err := e.tokenPrice(tt)
		if err != nil {
			return err
		}
		if _, err := e.realizeStakeRewards(u, s, pool); err != nil {
			return err
		}

		nav, err := e.poolNAVUSD(pool, mintPrice, tt.Decimals)
		if err != nil {
			return err
		}
		if nav <= 0 || pool.TotalSupply <= 0 {
			return errs.ErrPoolAvailableLiquidityNotEnough
		}
		navTok, err := fixed.UsdToToken(nav, mintPrice, tt.Decimals)
		if err != nil {
			return err
		}
		tokensOut, err := fixed.MulDiv(navTok, shares, pool.TotalSupply)
		if err != nil {
			return err
		}
		if tokensOut < pool.Config.MinimumUnStakeAmount {
			return errs.ErrUnStakeTooSmall
		}
		if tokensOut > pool.AvailableLiquidity() {
			return errs.ErrPoolAvailableLiquidityNotEnough
		}

		unstakeFee, err := fixed.MulRate(tokensOut, pool.Config.UnStakeFeeRate)
		if err != nil {
			return err
		}
		net := tokensOut - unstakeFee

		if err := pool.SubAmount(tokensOut); err != nil {
			return err
		}
		if unstakeFee > 0 {
			if err := pool.AddFeeReward(unstakeFee); err != nil {
				return err
			}
		}
		t, err := u.UseToken(pool.MintKey)
		if err != nil {
			return err
		}
		if err := t.AddAmount(net); err != nil {
			return err
		}
		if err := e.ledger.Transfer(pool.MintKey, PoolVault(poolID), VaultUserFunds, net, vaultAuthorityProtocol); err != nil {
			return fmt.Errorf("unstake transfer: %w", err)
		}

		preShares := s.StakedShares
		s.StakedShares -= shares
		if pool.TotalSupply, err = fixed.Sub(pool.TotalSupply, shares); err != nil {
			return err
		}
		if s.StakedShares == 0 {
			u.ResetStake(s)
		}

		e.sink.Publish(event.StakeChange{
			UserID:     userID,
			PoolID:     poolID,
			PreShares:  preShares,
			PostShares: preShares - shares,
			TokenDelta: -net,
			Action:     "unstake",
		})
		e.updatePoolGauges(pool)
		return nil
	})
}
