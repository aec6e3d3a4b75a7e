package fee

import (
	"perpcore/internal/fixed"
	"perpcore/internal/state"
)

// UpdatePoolBorrowing accrues the pool's utilization-based borrowing
// rate since its last update and returns the per-token delta added.
func UpdatePoolBorrowing(p *state.Pool, now int64) (int64, error) {
	bf := &p.BorrowingFee
	if bf.UpdatedAt == 0 {
		bf.UpdatedAt = now
		return 0, nil
	}
	elapsed := now - bf.UpdatedAt
	if elapsed <= 0 {
		return 0, nil
	}
	bf.UpdatedAt = now

	util, err := p.Utilization()
	if err != nil {
		return 0, err
	}
	if util == 0 || p.Config.BorrowingInterestRate == 0 {
		return 0, nil
	}

	rateTimesElapsed, err := fixed.Mul(p.Config.BorrowingInterestRate, elapsed)
	if err != nil {
		return 0, err
	}
	delta, err := fixed.MulSmallRate(util, rateTimesElapsed)
	if err != nil {
		return 0, err
	}
	if bf.CumulativePerToken, err = fixed.Add(bf.CumulativePerToken, delta); err != nil {
		return 0, err
	}
	return delta, nil
}

// PositionUnrealizedBorrowing returns the borrowing fee a position owes
// since its last realization, in margin-mint token units. The fee is
// charged on borrowed capital: initial margin times (leverage - 1).
func PositionUnrealizedBorrowing(p *state.UserPosition, pool *state.Pool) (int64, error) {
	if p.PositionSize == 0 || p.Leverage <= 1 {
		return 0, nil
	}
	diff, err := fixed.Sub(pool.BorrowingFee.CumulativePerToken, p.OpenBorrowingFeePerToken)
	if err != nil {
		return 0, err
	}
	if diff <= 0 {
		return 0, nil
	}
	borrowed, err := fixed.Mul(p.InitialMargin, p.Leverage-1)
	if err != nil {
		return 0, err
	}
	return fixed.MulPerTokenRate(borrowed, diff)
}

// RealizeBorrowing resets the position's borrowing snapshot to the
// pool's cumulative cursor and returns the realized token amount.
func RealizeBorrowing(p *state.UserPosition, pool *state.Pool) (int64, error) {
	amount, err := PositionUnrealizedBorrowing(p, pool)
	if err != nil {
		return 0, err
	}
	p.OpenBorrowingFeePerToken = pool.BorrowingFee.CumulativePerToken
	return amount, nil
}
