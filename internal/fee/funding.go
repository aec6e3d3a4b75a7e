// Package fee holds the per-market funding accrual, the per-pool
// borrowing accrual, and the keeper fee-reward split. All accrual is
// time-gated on the record's own cursor, so calling an update twice in
// one operation is harmless.
package fee

import (
	"perpcore/internal/errs"
	"perpcore/internal/fixed"
	"perpcore/internal/state"
)

// FundingDelta reports what one funding update added to the cursors.
type FundingDelta struct {
	LongPerSize  int64 // PerTokenPrecision, signed
	ShortPerSize int64
}

// UpdateMarketFunding accrues funding between long and short open
// interest since the market's last update. Run before any position
// mutation touching the market.
//
// Rate per second is |L-S|/(L+S) scaled by the market's base rate; the
// larger side pays, the smaller receives, and each side's per-size delta
// is capped to bound the impact of a single update.
func UpdateMarketFunding(m *state.Market, params *state.Params, now int64) (FundingDelta, error) {
	ff := &m.FundingFee
	if ff.UpdatedAt == 0 {
		ff.UpdatedAt = now
		return FundingDelta{}, nil
	}
	elapsed := now - ff.UpdatedAt
	if elapsed <= 0 {
		return FundingDelta{}, nil
	}

	long := m.LongOpenInterest.Size
	short := m.ShortOpenInterest.Size
	if long == short {
		// Balanced (or empty) interest accrues nothing.
		ff.UpdatedAt = now
		ff.LongHourlyRate = 0
		ff.ShortHourlyRate = 0
		return FundingDelta{}, nil
	}

	baseRate := m.Config.FundingFeeBaseRate
	if baseRate == 0 {
		baseRate = params.FundingFeeBaseRate
	}
	maxBaseRate := m.Config.MaxFundingBaseRate
	if maxBaseRate == 0 {
		maxBaseRate = params.MaxFundingBaseRate
	}

	imbalance, err := fixed.Abs(long - short)
	if err != nil {
		return FundingDelta{}, err
	}
	total, err := fixed.Add(long, short)
	if err != nil {
		return FundingDelta{}, err
	}
	ratePerSecond, err := fixed.MulDiv(imbalance, baseRate, total)
	if err != nil {
		return FundingDelta{}, err
	}

	rateTimesElapsed, err := fixed.Mul(ratePerSecond, elapsed)
	if err != nil {
		return FundingDelta{}, err
	}
	totalFee, err := fixed.MulSmallRate(fixed.Max(long, short), rateTimesElapsed)
	if err != nil {
		return FundingDelta{}, err
	}

	// Per-size delta ceiling, PerTokenPrecision scale.
	maxPerSize, err := fixed.MulSmallRate(maxBaseRate, ratePerSecond)
	if err != nil {
		return FundingDelta{}, err
	}

	perSize := func(oi int64) (int64, error) {
		if oi == 0 {
			return 0, nil
		}
		d, err := fixed.MulDiv(totalFee, fixed.PerTokenPrecision, oi)
		if err != nil {
			return 0, err
		}
		if maxPerSize > 0 && d > maxPerSize {
			d = maxPerSize
		}
		return d, nil
	}

	var delta FundingDelta
	hourly, err := fixed.Mul(ratePerSecond, 3600)
	if err != nil {
		return FundingDelta{}, err
	}

	if long > short {
		payer, err := perSize(long)
		if err != nil {
			return FundingDelta{}, err
		}
		receiver, err := perSize(short)
		if err != nil {
			return FundingDelta{}, err
		}
		delta.LongPerSize = payer
		delta.ShortPerSize = -receiver
		ff.LongHourlyRate = hourly
		ff.ShortHourlyRate = -hourly
	} else {
		payer, err := perSize(short)
		if err != nil {
			return FundingDelta{}, err
		}
		receiver, err := perSize(long)
		if err != nil {
			return FundingDelta{}, err
		}
		delta.ShortPerSize = payer
		delta.LongPerSize = -receiver
		ff.ShortHourlyRate = hourly
		ff.LongHourlyRate = -hourly
	}

	if ff.LongCumulativePerSize, err = fixed.Add(ff.LongCumulativePerSize, delta.LongPerSize); err != nil {
		return FundingDelta{}, err
	}
	if ff.ShortCumulativePerSize, err = fixed.Add(ff.ShortCumulativePerSize, delta.ShortPerSize); err != nil {
		return FundingDelta{}, err
	}
	ff.UpdatedAt = now
	return delta, nil
}

// PositionUnrealizedFundingUSD returns the USD funding accrued by a
// position since its last realization; positive means the position
// pays.
func PositionUnrealizedFundingUSD(p *state.UserPosition, m *state.Market) (int64, error) {
	if p.PositionSize == 0 {
		return 0, nil
	}
	if err := checkDirection(p.Side); err != nil {
		return 0, err
	}
	cum := m.CumulativeFundingPerSize(p.Side)
	diff, err := fixed.Sub(cum, p.OpenFundingFeePerSize)
	if err != nil {
		return 0, err
	}
	return fixed.MulPerTokenRate(p.PositionSize, diff)
}

// RealizeFunding resets the position's funding snapshot to the current
// cumulative cursor and returns the realized USD amount.
func RealizeFunding(p *state.UserPosition, m *state.Market) (int64, error) {
	usd, err := PositionUnrealizedFundingUSD(p, m)
	if err != nil {
		return 0, err
	}
	p.OpenFundingFeePerSize = m.CumulativeFundingPerSize(p.Side)
	return usd, nil
}

// checkDirection guards against a position record whose side has no
// cumulative cursor.
func checkDirection(side state.Side) error {
	if side != state.SideLong && side != state.SideShort {
		return errs.ErrInvalidParam
	}
	return nil
}
