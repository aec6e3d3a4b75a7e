package fee

import (
	"perpcore/internal/fixed"
	"perpcore/internal/state"
)

// RewardSplit is one collection's distribution of accumulated fees.
type RewardSplit struct {
	PoolRewards    int64 // retained as pool liquidity
	StakingRewards int64 // owed to stakers via the per-stake cursor
	DaoRewards     int64 // swept to the DAO bucket
}

// SplitFeeReward divides a fee amount by the configured ratios. The DAO
// bucket takes the rounding remainder so the split conserves the total.
func SplitFeeReward(amount int64, params *state.Params) (RewardSplit, error) {
	if amount <= 0 {
		return RewardSplit{}, nil
	}
	pool, err := fixed.MulRate(amount, params.PoolRewardsRatio)
	if err != nil {
		return RewardSplit{}, err
	}
	staking, err := fixed.MulRate(amount, params.StakingRewardsRatio)
	if err != nil {
		return RewardSplit{}, err
	}
	return RewardSplit{
		PoolRewards:    pool,
		StakingRewards: staking,
		DaoRewards:     amount - pool - staking,
	}, nil
}

// CollectPoolRewards distributes the pool's accumulated fee amount.
// Pool rewards stay in the pool balance (they were collected there);
// staking rewards advance the per-stake-token cursor and push into the
// vesting ring; DAO rewards move to the DAO bucket. Collecting an empty
// accrual is a no-op, so keeper retries are safe.
func CollectPoolRewards(p *state.Pool, params *state.Params) (RewardSplit, error) {
	amount := p.FeeReward.Amount
	if amount == 0 {
		return RewardSplit{}, nil
	}
	split, err := SplitFeeReward(amount, params)
	if err != nil {
		return RewardSplit{}, err
	}

	fr := &p.FeeReward
	fr.Amount = 0

	if fr.DaoAmount, err = fixed.Add(fr.DaoAmount, split.DaoRewards); err != nil {
		return RewardSplit{}, err
	}

	// Stake-share minting rounds in the pool's favor, and so does the
	// reward cursor: truncation dust stays in the pool.
	if p.TotalSupply > 0 && split.StakingRewards > 0 {
		delta, err := fixed.MulDiv(split.StakingRewards, fixed.PerTokenPrecision, p.TotalSupply)
		if err != nil {
			return RewardSplit{}, err
		}
		fr.LastRewardDeltas[2] = fr.LastRewardDeltas[1]
		fr.LastRewardDeltas[1] = fr.LastRewardDeltas[0]
		fr.LastRewardDeltas[0] = delta
		if fr.CumulativeRewardsPerStakeToken, err = fixed.Add(fr.CumulativeRewardsPerStakeToken, delta); err != nil {
			return RewardSplit{}, err
		}
	} else if split.StakingRewards > 0 {
		// Nobody staked: staking share falls back to pool liquidity.
		split.PoolRewards += split.StakingRewards
		split.StakingRewards = 0
	}

	return split, nil
}

// PendingStakeRewards returns the token amount a stake may realize
// right now, limited to the vested portion of the cursor.
func PendingStakeRewards(s *state.UserStake, p *state.Pool) (int64, error) {
	if s.StakedShares == 0 {
		return 0, nil
	}
	vested := p.FeeReward.VestedRewardsPerStakeToken()
	if vested <= s.OpenRewardsPerStakeToken {
		return 0, nil
	}
	return fixed.MulPerTokenRate(s.StakedShares, vested-s.OpenRewardsPerStakeToken)
}

// RealizeStakeRewards advances the stake's snapshot to the vested
// cursor and returns the realized token amount.
func RealizeStakeRewards(s *state.UserStake, p *state.Pool) (int64, error) {
	amount, err := PendingStakeRewards(s, p)
	if err != nil {
		return 0, err
	}
	s.OpenRewardsPerStakeToken = p.FeeReward.VestedRewardsPerStakeToken()
	return amount, nil
}
