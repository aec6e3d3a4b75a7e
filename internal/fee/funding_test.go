package fee_test

import (
	"testing"

	"perpcore/internal/fee"
	"perpcore/internal/fixed"
	"perpcore/internal/state"
)

const (
	t0     = int64(1_700_000_000)
	oneUSD = fixed.PricePrecision
)

func market(longOI, shortOI int64) *state.Market {
	return &state.Market{
		Symbol:            "BTC-PERP",
		LongOpenInterest:  state.MarketPosition{Size: longOI},
		ShortOpenInterest: state.MarketPosition{Size: shortOI},
		FundingFee:        state.MarketFundingFee{UpdatedAt: t0},
	}
}

func TestUpdateMarketFunding_FirstTouchOnlySetsCursor(t *testing.T) {
	m := market(1_000*oneUSD, 0)
	m.FundingFee.UpdatedAt = 0

	delta, err := fee.UpdateMarketFunding(m, state.DefaultParams(), t0)
	if err != nil {
		t.Fatal(err)
	}
	if delta != (fee.FundingDelta{}) {
		t.Errorf("first touch accrued: %+v", delta)
	}
	if m.FundingFee.UpdatedAt != t0 {
		t.Errorf("cursor: got %d, want %d", m.FundingFee.UpdatedAt, t0)
	}
}

func TestUpdateMarketFunding_OneSidedBook(t *testing.T) {
	// Fully one-sided: rate/sec equals the base rate, and over one hour
	// each USD of long size pays baseRate*3600/1e10 of itself.
	m := market(5_000*oneUSD, 0)

	delta, err := fee.UpdateMarketFunding(m, state.DefaultParams(), t0+3600)
	if err != nil {
		t.Fatal(err)
	}

	// 30_000 * 3600 = 108_000_000 per size unit, PerTokenPrecision.
	if delta.LongPerSize != 108_000_000 {
		t.Errorf("long per size: got %d, want 108000000", delta.LongPerSize)
	}
	if delta.ShortPerSize != 0 {
		t.Errorf("short per size: got %d, want 0", delta.ShortPerSize)
	}
	if m.FundingFee.LongCumulativePerSize != 108_000_000 {
		t.Errorf("cumulative: got %d", m.FundingFee.LongCumulativePerSize)
	}
	if m.FundingFee.LongHourlyRate != 108_000_000 {
		t.Errorf("hourly rate: got %d", m.FundingFee.LongHourlyRate)
	}
	if m.FundingFee.ShortHourlyRate != -108_000_000 {
		t.Errorf("short hourly rate: got %d", m.FundingFee.ShortHourlyRate)
	}
}

func TestUpdateMarketFunding_ImbalanceScalesRate(t *testing.T) {
	// L=3000, S=1000: rate/sec = baseRate * 2000/4000 = baseRate/2.
	// Longs pay totalFee spread over 3000; shorts receive it over 1000.
	m := market(3_000*oneUSD, 1_000*oneUSD)

	delta, err := fee.UpdateMarketFunding(m, state.DefaultParams(), t0+3600)
	if err != nil {
		t.Fatal(err)
	}

	// rate/sec 15_000; totalFee = 3000*15_000*3600/1e10 USD units.
	// Per long size: totalFee*1e10/3000e8 = 54_000_000.
	if delta.LongPerSize != 54_000_000 {
		t.Errorf("long per size: got %d, want 54000000", delta.LongPerSize)
	}
	// Receivers get the same pot over a third of the size.
	if delta.ShortPerSize != -162_000_000 {
		t.Errorf("short per size: got %d, want -162000000", delta.ShortPerSize)
	}
}

func TestUpdateMarketFunding_BalancedBookIsFree(t *testing.T) {
	m := market(2_000*oneUSD, 2_000*oneUSD)
	m.FundingFee.LongHourlyRate = 99

	delta, err := fee.UpdateMarketFunding(m, state.DefaultParams(), t0+600)
	if err != nil {
		t.Fatal(err)
	}
	if delta != (fee.FundingDelta{}) {
		t.Errorf("balanced book accrued: %+v", delta)
	}
	if m.FundingFee.UpdatedAt != t0+600 {
		t.Errorf("cursor not advanced: %d", m.FundingFee.UpdatedAt)
	}
	if m.FundingFee.LongHourlyRate != 0 {
		t.Errorf("hourly rate not cleared: %d", m.FundingFee.LongHourlyRate)
	}
}

func TestUpdateMarketFunding_SameSecondIsNoOp(t *testing.T) {
	m := market(5_000*oneUSD, 0)
	if _, err := fee.UpdateMarketFunding(m, state.DefaultParams(), t0+10); err != nil {
		t.Fatal(err)
	}
	cum := m.FundingFee.LongCumulativePerSize

	if _, err := fee.UpdateMarketFunding(m, state.DefaultParams(), t0+10); err != nil {
		t.Fatal(err)
	}
	if m.FundingFee.LongCumulativePerSize != cum {
		t.Error("second update in the same second accrued")
	}
}

func TestRealizeFunding_AdvancesSnapshot(t *testing.T) {
	m := market(5_000*oneUSD, 0)
	if _, err := fee.UpdateMarketFunding(m, state.DefaultParams(), t0+3600); err != nil {
		t.Fatal(err)
	}

	p := &state.UserPosition{
		Status:       state.SlotUsing,
		Side:         state.SideLong,
		PositionSize: 5_000 * oneUSD,
	}
	usd, err := fee.RealizeFunding(p, m)
	if err != nil {
		t.Fatal(err)
	}
	// 5000 USD * 108_000_000 / 1e10 = 54 USD.
	if usd != 54*oneUSD {
		t.Errorf("realized: got %d, want %d", usd, 54*oneUSD)
	}
	if p.OpenFundingFeePerSize != m.FundingFee.LongCumulativePerSize {
		t.Error("snapshot not advanced")
	}

	// Realizing again with no new accrual pays nothing.
	usd, err = fee.RealizeFunding(p, m)
	if err != nil || usd != 0 {
		t.Errorf("second realize: got %d, %v", usd, err)
	}
}
