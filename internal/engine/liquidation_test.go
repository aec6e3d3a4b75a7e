package engine_test

import (
	"errors"
	"testing"

	"perpcore/internal/errs"
	"perpcore/internal/event"
	"perpcore/internal/state"
)

func TestIsolatedLiquidationPrice_Long(t *testing.T) {
	e := newEnv(t)
	e.seedPool(btcPoolID, 10_0000_0000)
	userID := e.newUser(1_0000_0000, 0)

	e.openIsolated(userID, state.SideLong, 1000_0000, 10)

	price, err := e.eng.IsolatedLiquidationPrice(userID, symbol)
	if err != nil {
		t.Fatalf("liq price: %v", err)
	}
	// 10x long at $50,000, 0.5% maintenance margin, no fees:
	// P = E + E*(mm - margin)/size = 50000 * (1 - 0.1 + 0.005) = 45,250.
	want := int64(45_250 * 100_000_000)
	if price != want {
		t.Errorf("liq price: got %d, want %d", price, want)
	}
}

func TestIsolatedLiquidationPrice_MonotonicInLeverage(t *testing.T) {
	e := newEnv(t)
	e.seedPool(btcPoolID, 100_0000_0000)

	// Same notional at increasing leverage: the liquidation price of a
	// long must climb toward the entry.
	var prev int64
	for i, leverage := range []int64{2, 5, 10, 20} {
		userID := e.newUser(10_0000_0000, 0)
		margin := int64(10_0000_0000) / leverage // $50,000 notional each
		e.openIsolated(userID, state.SideLong, margin, leverage)

		price, err := e.eng.IsolatedLiquidationPrice(userID, symbol)
		if err != nil {
			t.Fatalf("leverage %d: %v", leverage, err)
		}
		if i > 0 && price <= prev {
			t.Errorf("leverage %d: liq price %d should exceed %d", leverage, price, prev)
		}
		prev = price
	}
}

func TestLiquidateIsolated_HealthyIgnored(t *testing.T) {
	e := newEnv(t)
	e.seedPool(btcPoolID, 10_0000_0000)
	userID := e.newUser(1_0000_0000, 0)

	e.openIsolated(userID, state.SideLong, 1000_0000, 10)

	err := e.eng.LiquidateIsolated(userID, symbol)
	if !errors.Is(err, errs.ErrLiquidatePositionIgnore) {
		t.Errorf("got %v, want ErrLiquidatePositionIgnore", err)
	}
}

func TestLiquidateIsolated_ShortPostsInsurance(t *testing.T) {
	e := newEnv(t)
	e.seedPool(usdcPoolID, 100_000_000_000)
	userID := e.newUser(0, 6_000_000_000)

	// 10x short at $50,000 with 5,000 USDC margin.
	p := e.openIsolated(userID, state.SideShort, 5_000_000_000, 10)
	size := p.PositionSize

	// +10% busts the short.
	e.setBTCPrice(55_000 * 100_000_000)

	if err := e.eng.LiquidateIsolated(userID, symbol); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	if p := e.user(userID).Position(symbol, state.MarginModeIsolated); p != nil {
		t.Error("position should be closed")
	}

	pool := e.pool(usdcPoolID)
	// Liquidation boundary: margin exactly covers loss + maintenance
	// margin at the liquidation price; the mm penalty lands in the
	// insurance fund (0.5% of $50,000 = $250 = 250e6 usdc units).
	if pool.InsuranceFundAmount != 250_000_000 {
		t.Errorf("insurance: got %d, want 250_000_000", pool.InsuranceFundAmount)
	}
	if pool.Balance.HoldAmount != 0 {
		t.Errorf("hold after liquidation: got %d, want 0", pool.Balance.HoldAmount)
	}

	events := e.sink.OfKind(event.KindLiquidation)
	if len(events) != 1 {
		t.Fatalf("liquidation events: got %d, want 1", len(events))
	}
	liq := events[0].(event.Liquidation)
	if liq.Size != size || liq.InsuranceIn != 250_000_000 {
		t.Errorf("liquidation event: %+v", liq)
	}
}

func TestLiquidateCross(t *testing.T) {
	e := newEnv(t)
	e.seedPool(usdcPoolID, 100_000_000_000)
	userID := e.newUser(0, 5_500_000_000)

	p := e.openPortfolio(userID, state.SideShort, 500_000_000_000, 10)
	size := p.PositionSize

	// Healthy estate first.
	if err := e.eng.LiquidateCross(userID); !errors.Is(err, errs.ErrLiquidatePositionIgnore) {
		t.Fatalf("got %v, want ErrLiquidatePositionIgnore", err)
	}

	// +12%: the short's loss exceeds the whole estate. The bankruptcy
	// rate goes negative and pulls the settle price back toward the
	// entry, so the pool absorbs the gap instead of a liability entry.
	e.setBTCPrice(56_000 * 100_000_000)

	if err := e.eng.LiquidateCross(userID); err != nil {
		t.Fatalf("liquidate cross: %v", err)
	}

	u := e.user(userID)
	if got := len(u.CrossPositions()); got != 0 {
		t.Errorf("open cross positions after liquidation: got %d, want 0", got)
	}
	tok := u.Token(usdcMint)
	if tok == nil {
		t.Fatal("usdc balance missing")
	}
	if tok.Amount != 0 {
		t.Errorf("free balance should be consumed: got %d", tok.Amount)
	}
	if tok.Liability != 0 {
		t.Errorf("liability: got %d, want 0", tok.Liability)
	}
	if got := e.pool(usdcPoolID).Balance.HoldAmount; got != 0 {
		t.Errorf("pool hold after liquidation: got %d, want 0", got)
	}
	if got := e.pool(usdcPoolID).InsuranceFundAmount; got != 250_000_000 {
		t.Errorf("insurance: got %d, want 250_000_000", got)
	}

	events := e.sink.OfKind(event.KindLiquidation)
	if len(events) != 1 {
		t.Fatalf("liquidation events: got %d, want 1", len(events))
	}
	liq := events[0].(event.Liquidation)
	if liq.Size != size {
		t.Errorf("size: got %d, want %d", liq.Size, size)
	}
	// crossNetValue = 5,500 - 6,000 = -$500 against $50,000 of size.
	if liq.BankruptcyMR != -1000 {
		t.Errorf("bankruptcy rate: got %d, want -1000", liq.BankruptcyMR)
	}
	// P = 56,000 - 50,000*(0.5% - (-1%)) = 55,250.
	if liq.ExecutePrice != 55_250*100_000_000 {
		t.Errorf("execute price: got %d, want %d", liq.ExecutePrice, int64(55_250*100_000_000))
	}
}

func TestLiquidateCross_SolventEstateDrainsToZero(t *testing.T) {
	e := newEnv(t)
	e.seedPool(usdcPoolID, 100_000_000_000)
	userID := e.newUser(0, 5_500_000_000)

	e.openPortfolio(userID, state.SideShort, 500_000_000_000, 10)

	// A $5,300 loss leaves $200 of net value, under the $250
	// maintenance margin but still positive.
	e.setBTCPrice(55_300 * 100_000_000)

	if err := e.eng.LiquidateCross(userID); err != nil {
		t.Fatalf("liquidate cross: %v", err)
	}

	tok := e.user(userID).Token(usdcMint)
	if tok == nil {
		t.Fatal("usdc balance missing")
	}
	// The remaining net value is consumed by the maintenance margin
	// penalty, no more and no less.
	if tok.Amount != 0 {
		t.Errorf("free balance: got %d, want 0", tok.Amount)
	}
	if tok.Liability != 0 {
		t.Errorf("liability: got %d, want 0", tok.Liability)
	}
	if got := e.pool(usdcPoolID).InsuranceFundAmount; got != 250_000_000 {
		t.Errorf("insurance: got %d, want 250_000_000", got)
	}

	events := e.sink.OfKind(event.KindLiquidation)
	if len(events) != 1 {
		t.Fatalf("liquidation events: got %d, want 1", len(events))
	}
	liq := events[0].(event.Liquidation)
	if liq.BankruptcyMR != 400 {
		t.Errorf("bankruptcy rate: got %d, want 400", liq.BankruptcyMR)
	}
	if liq.ExecutePrice != 55_250*100_000_000 {
		t.Errorf("execute price: got %d, want %d", liq.ExecutePrice, int64(55_250*100_000_000))
	}
}

func TestLiquidateCross_TwoMarketsShareBankruptcyRate(t *testing.T) {
	e := newEnv(t)
	e.addETHMarket()
	e.seedPool(usdcPoolID, 500_000_000_000)
	userID := e.newUser(0, 4_300_000_000)

	// $50,000 BTC short and $150,000 ETH short, both at 50x.
	e.openPortfolio(userID, state.SideShort, 100_000_000_000, 50)
	e.openPortfolioOn(userID, ethSymbol, state.SideShort, 300_000_000_000, 50)

	// BTC loses $2,000 and ETH $1,500: $800 of net value against
	// $1,000 of total maintenance margin.
	e.setBTCPrice(52_000 * 100_000_000)
	e.oracle.SetPrice(ethFeed, 3_030*100_000_000, e.now)

	if err := e.eng.LiquidateCross(userID); err != nil {
		t.Fatalf("liquidate cross: %v", err)
	}

	u := e.user(userID)
	if got := len(u.CrossPositions()); got != 0 {
		t.Errorf("open cross positions: got %d, want 0", got)
	}
	tok := u.Token(usdcMint)
	if tok == nil {
		t.Fatal("usdc balance missing")
	}
	if tok.Amount != 0 || tok.Liability != 0 {
		t.Errorf("estate after liquidation: amount %d, liability %d, want 0 and 0", tok.Amount, tok.Liability)
	}
	// $250 of BTC plus $750 of ETH maintenance margin.
	if got := e.pool(usdcPoolID).InsuranceFundAmount; got != 1_000_000_000 {
		t.Errorf("insurance: got %d, want 1_000_000_000", got)
	}

	events := e.sink.OfKind(event.KindLiquidation)
	if len(events) != 2 {
		t.Fatalf("liquidation events: got %d, want 2", len(events))
	}
	prices := make(map[string]int64)
	for _, ev := range events {
		liq := ev.(event.Liquidation)
		if liq.BankruptcyMR != 400 {
			t.Errorf("%s bankruptcy rate: got %d, want 400", liq.Symbol, liq.BankruptcyMR)
		}
		prices[liq.Symbol] = liq.ExecutePrice
	}
	if prices[symbol] != 51_950*100_000_000 {
		t.Errorf("BTC execute price: got %d, want %d", prices[symbol], int64(51_950*100_000_000))
	}
	if prices[ethSymbol] != 3_027*100_000_000 {
		t.Errorf("ETH execute price: got %d, want %d", prices[ethSymbol], int64(3_027*100_000_000))
	}
}

func TestLiquidateCross_NoPositions(t *testing.T) {
	e := newEnv(t)
	userID := e.newUser(0, 1_000_000_000)

	err := e.eng.LiquidateCross(userID)
	if !errors.Is(err, errs.ErrPositionNotFound) {
		t.Errorf("got %v, want ErrPositionNotFound", err)
	}
}

func TestExecuteADL_PartialDecrease(t *testing.T) {
	e := newEnv(t)
	e.seedPool(btcPoolID, 10_0000_0000)
	userID := e.newUser(1_0000_0000, 0)

	p := e.openIsolated(userID, state.SideLong, 1000_0000, 10)
	size := p.PositionSize

	if err := e.eng.ExecuteADL(userID, symbol, state.MarginModeIsolated, size/2, btcPrice); err != nil {
		t.Fatalf("adl: %v", err)
	}

	p = e.user(userID).Position(symbol, state.MarginModeIsolated)
	if p == nil {
		t.Fatal("position should survive a partial ADL")
	}
	if p.PositionSize != size/2 {
		t.Errorf("size: got %d, want %d", p.PositionSize, size/2)
	}
	// Fair-value settlement: nothing goes to the insurance fund.
	if got := e.pool(btcPoolID).InsuranceFundAmount; got != 0 {
		t.Errorf("insurance after ADL: got %d, want 0", got)
	}

	events := e.sink.OfKind(event.KindADLExecution)
	if len(events) != 1 {
		t.Fatalf("adl events: got %d, want 1", len(events))
	}
}

func TestExecuteADL_SettlesAtKeeperPrice(t *testing.T) {
	e := newEnv(t)
	e.seedPool(btcPoolID, 10_0000_0000)
	userID := e.newUser(1_0000_0000, 0)

	p := e.openIsolated(userID, state.SideLong, 1000_0000, 10)
	size := p.PositionSize

	// The index is still $50,000; the keeper settles at $51,000 to
	// mirror the counterparty's fill.
	if err := e.eng.ExecuteADL(userID, symbol, state.MarginModeIsolated, size, 51_000*100_000_000); err != nil {
		t.Fatalf("adl: %v", err)
	}

	// $5,000 margin plus the $1,000 gain, paid out in BTC at $50,000.
	tok := e.user(userID).Token(btcMint)
	if tok == nil {
		t.Fatal("btc balance missing")
	}
	if tok.Amount != 1_0200_0000 {
		t.Errorf("balance after ADL: got %d, want 1_0200_0000", tok.Amount)
	}

	events := e.sink.OfKind(event.KindADLExecution)
	if len(events) != 1 {
		t.Fatalf("adl events: got %d, want 1", len(events))
	}
	adl := events[0].(event.ADLExecution)
	if adl.ExecutePrice != 51_000*100_000_000 {
		t.Errorf("execute price: got %d, want %d", adl.ExecutePrice, int64(51_000*100_000_000))
	}
}

func TestExecuteADL_RejectsBadPrice(t *testing.T) {
	e := newEnv(t)
	e.seedPool(btcPoolID, 10_0000_0000)
	userID := e.newUser(1_0000_0000, 0)

	p := e.openIsolated(userID, state.SideLong, 1000_0000, 10)

	err := e.eng.ExecuteADL(userID, symbol, state.MarginModeIsolated, p.PositionSize, 0)
	if !errors.Is(err, errs.ErrInvalidParam) {
		t.Errorf("got %v, want ErrInvalidParam", err)
	}
}
