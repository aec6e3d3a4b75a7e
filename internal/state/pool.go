package state

import (
	"perpcore/internal/errs"
	"perpcore/internal/fixed"
)

// PoolStatus gates staking operations without touching trading.
type PoolStatus uint8

const (
	PoolStatusNormal PoolStatus = iota
	PoolStatusStakePaused
	PoolStatusUnStakePaused
)

// PoolBalance is the liquidity ledger of one pool.
//
// Invariant after every operation: HoldAmount <= Amount + UnsettledAmount.
type PoolBalance struct {
	Amount          int64 // token units held in the pool vault
	HoldAmount      int64 // reserved against open leveraged exposure
	UnsettledAmount int64 // fees/PnL booked but not yet moved between vaults (signed)
	LossAmount      int64 // cumulative realized trader wins paid out
}

// BorrowingFee is the per-pool utilization-based accrual cursor.
type BorrowingFee struct {
	CumulativePerToken int64 // PerTokenPrecision
	UpdatedAt          int64 // unix seconds
}

// FeeReward accrues trading/funding/borrowing/staking fees awaiting
// keeper collection, and tracks the per-stake-token reward cursor.
//
// LastRewardDeltas keeps the most recent three per-stake deltas; rewards
// from those collections have not vested yet, which stops a stake placed
// right before a collection from skimming it.
type FeeReward struct {
	Amount                         int64    // undistributed fee amount, token units
	DaoAmount                      int64    // DAO bucket awaiting sweep, token units
	CumulativeRewardsPerStakeToken int64    // PerTokenPrecision
	LastRewardDeltas               [3]int64 // newest first
}

// VestedRewardsPerStakeToken is the cursor stakers may realize against.
func (f *FeeReward) VestedRewardsPerStakeToken() int64 {
	v := f.CumulativeRewardsPerStakeToken
	for _, d := range f.LastRewardDeltas {
		v -= d
	}
	if v < 0 {
		return 0
	}
	return v
}

// PoolConfig is per-pool admin configuration.
type PoolConfig struct {
	MinimumStakeAmount    int64
	MinimumUnStakeAmount  int64
	StakeFeeRate          int64 // RatePrecision
	UnStakeFeeRate        int64 // RatePrecision
	BorrowingInterestRate int64 // SmallRatePrecision, per second
	PoolLiquidityLimit    int64 // RatePrecision, max share of liquidity on hold
}

// Pool is a liquidity pool for one token backing trader PnL.
type Pool struct {
	ID      string
	Name    string
	MintKey string
	Stable  bool

	Balance      PoolBalance
	BorrowingFee BorrowingFee
	FeeReward    FeeReward

	TotalSupply         int64 // outstanding stake shares
	Status              PoolStatus
	InsuranceFundAmount int64 // token units

	Config PoolConfig
}

// AddAmount credits pool liquidity.
func (p *Pool) AddAmount(amount int64) error {
	if amount < 0 {
		return errs.ErrInvalidParam
	}
	v, err := fixed.Add(p.Balance.Amount, amount)
	if err != nil {
		return err
	}
	p.Balance.Amount = v
	return nil
}

// SubAmount debits pool liquidity; the debit may not break the hold
// invariant.
func (p *Pool) SubAmount(amount int64) error {
	if amount < 0 {
		return errs.ErrInvalidParam
	}
	if p.Balance.Amount < amount {
		return errs.ErrPoolAvailableLiquidityNotEnough
	}
	next := p.Balance.Amount - amount
	if p.Balance.HoldAmount > next+p.Balance.UnsettledAmount {
		return errs.ErrPoolAvailableLiquidityNotEnough
	}
	p.Balance.Amount = next
	return nil
}

// HoldLiquidity reserves amount against leveraged exposure. Fails when
// the reservation would exceed backing liquidity or the configured
// liquidity-share cap.
func (p *Pool) HoldLiquidity(amount int64) error {
	if amount < 0 {
		return errs.ErrInvalidParam
	}
	hold, err := fixed.Add(p.Balance.HoldAmount, amount)
	if err != nil {
		return err
	}
	backing, err := fixed.Add(p.Balance.Amount, p.Balance.UnsettledAmount)
	if err != nil {
		return err
	}
	if hold > backing {
		return errs.ErrPoolAvailableLiquidityNotEnough
	}
	if p.Config.PoolLiquidityLimit > 0 {
		limit, err := fixed.MulRate(backing, p.Config.PoolLiquidityLimit)
		if err != nil {
			return err
		}
		if hold > limit {
			return errs.ErrPoolAvailableLiquidityNotEnough
		}
	}
	p.Balance.HoldAmount = hold
	return nil
}

// ReleaseLiquidity returns a hold to the free side.
func (p *Pool) ReleaseLiquidity(amount int64) error {
	if amount < 0 {
		return errs.ErrInvalidParam
	}
	// Rounding on pro-rata releases can leave a dust-sized residue.
	if amount > p.Balance.HoldAmount {
		amount = p.Balance.HoldAmount
	}
	p.Balance.HoldAmount -= amount
	return nil
}

// AddUnsettled books a signed fee/PnL amount against the pool without
// moving vault balances.
func (p *Pool) AddUnsettled(amount int64) error {
	v, err := fixed.Add(p.Balance.UnsettledAmount, amount)
	if err != nil {
		return err
	}
	p.Balance.UnsettledAmount = v
	return nil
}

// AddLoss records a realized payout to traders.
func (p *Pool) AddLoss(amount int64) error {
	if amount < 0 {
		return errs.ErrInvalidParam
	}
	v, err := fixed.Add(p.Balance.LossAmount, amount)
	if err != nil {
		return err
	}
	p.Balance.LossAmount = v
	return nil
}

// AddInsurance credits the insurance fund.
func (p *Pool) AddInsurance(amount int64) error {
	if amount < 0 {
		return errs.ErrInvalidParam
	}
	v, err := fixed.Add(p.InsuranceFundAmount, amount)
	if err != nil {
		return err
	}
	p.InsuranceFundAmount = v
	return nil
}

// AddFeeReward accrues a collected fee awaiting distribution.
func (p *Pool) AddFeeReward(amount int64) error {
	if amount < 0 {
		return errs.ErrInvalidParam
	}
	v, err := fixed.Add(p.FeeReward.Amount, amount)
	if err != nil {
		return err
	}
	p.FeeReward.Amount = v
	return nil
}

// AvailableLiquidity is what unstaking may draw on: liquidity not
// reserved against open exposure.
func (p *Pool) AvailableLiquidity() int64 {
	backing := p.Balance.Amount + p.Balance.UnsettledAmount
	if backing <= p.Balance.HoldAmount {
		return 0
	}
	return backing - p.Balance.HoldAmount
}

// Utilization returns hold/(amount+unsettled) scaled by
// SmallRatePrecision; zero when the pool has no backing liquidity.
func (p *Pool) Utilization() (int64, error) {
	backing, err := fixed.Add(p.Balance.Amount, p.Balance.UnsettledAmount)
	if err != nil {
		return 0, err
	}
	if backing <= 0 || p.Balance.HoldAmount <= 0 {
		return 0, nil
	}
	return fixed.MulDiv(p.Balance.HoldAmount, fixed.SmallRatePrecision, backing)
}

// Clone deep-copies the pool record.
func (p *Pool) Clone() *Pool {
	c := *p
	return &c
}
