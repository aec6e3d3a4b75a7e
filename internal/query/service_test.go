package query_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"perpcore/internal/event"
	"perpcore/internal/oracle"
	"perpcore/internal/projection"
	"perpcore/internal/query"
	"perpcore/internal/state"
	"perpcore/internal/store"
)

const (
	btcMint  = "btc"
	btcPrice = 50_000 * 1_0000_0000
	symbol   = "BTC-PERP"
)

func fixture(t *testing.T) (*query.Service, *store.MemoryStore, uuid.UUID) {
	t.Helper()

	st := store.NewMemoryStore()
	po := oracle.NewFixtureOracle()
	po.SetPrice("pyth:btc", btcPrice, time.Now().Unix())

	st.AddTradeToken(&state.TradeToken{Mint: btcMint, Decimals: 8, OracleKey: "pyth:btc"})
	st.AddPool(&state.Pool{
		ID:      "pool-btc",
		Name:    "BTC Pool",
		MintKey: btcMint,
		Balance: state.PoolBalance{Amount: 10_0000_0000, HoldAmount: 2_0000_0000},
		Config:  state.PoolConfig{PoolLiquidityLimit: 80_000},
	})
	st.AddMarket(&state.Market{
		Symbol:   symbol,
		PoolID:   "pool-btc",
		BaseMint: btcMint,
		LongOpenInterest: state.MarketPosition{
			Size:          5_000 * 1_0000_0000,
			AvgEntryPrice: 48_000 * 1_0000_0000,
		},
	})

	userID := uuid.New()
	u := state.NewUser(userID, time.Now().Unix())
	tok, err := u.UseToken(btcMint)
	if err != nil {
		t.Fatal(err)
	}
	if err := tok.AddAmount(1_0000_0000); err != nil {
		t.Fatal(err)
	}
	if err := tok.AddUsed(4000_0000); err != nil {
		t.Fatal(err)
	}
	st.AddUser(u)

	history := projection.NewFundingHistory(16)
	svc := query.NewService(st, po, state.DefaultParams(), history, nil)
	return svc, st, userID
}

func TestUserSummary_BalancesAndPositions(t *testing.T) {
	svc, st, userID := fixture(t)

	u, err := st.User(userID)
	if err != nil {
		t.Fatal(err)
	}
	p, err := u.UsePosition(symbol, state.MarginModeIsolated)
	if err != nil {
		t.Fatal(err)
	}
	p.Side = state.SideLong
	p.MarginMint = btcMint
	// $1,000 opened at 40k; mark 50k is +25%.
	p.PositionSize = 1_000 * 1_0000_0000
	p.EntryPrice = 40_000 * 1_0000_0000
	p.Leverage = 10

	sum, err := svc.UserSummary(userID)
	if err != nil {
		t.Fatal(err)
	}

	if len(sum.Balances) != 1 {
		t.Fatalf("balances: got %d, want 1", len(sum.Balances))
	}
	b := sum.Balances[0]
	if b.Amount != 1_0000_0000 || b.Used != 4000_0000 || b.Available != 6000_0000 {
		t.Errorf("balance: got %+v", b)
	}

	if len(sum.Positions) != 1 {
		t.Fatalf("positions: got %d, want 1", len(sum.Positions))
	}
	pos := sum.Positions[0]
	if pos.Side != "long" || pos.MarginMode != "isolated" {
		t.Errorf("position tags: %s %s", pos.Side, pos.MarginMode)
	}
	if pos.MarkPrice != btcPrice {
		t.Errorf("mark price: got %d, want %d", pos.MarkPrice, btcPrice)
	}
	if pos.UnrealizedPnLUSD != 250*1_0000_0000 {
		t.Errorf("unrealized pnl: got %d, want %d", pos.UnrealizedPnLUSD, int64(250*1_0000_0000))
	}
}

func TestUserSummary_ShortPnLInverts(t *testing.T) {
	svc, st, userID := fixture(t)

	u, _ := st.User(userID)
	p, err := u.UsePosition(symbol, state.MarginModeIsolated)
	if err != nil {
		t.Fatal(err)
	}
	p.Side = state.SideShort
	p.PositionSize = 1_000 * 1_0000_0000
	p.EntryPrice = 40_000 * 1_0000_0000

	sum, err := svc.UserSummary(userID)
	if err != nil {
		t.Fatal(err)
	}
	if got := sum.Positions[0].UnrealizedPnLUSD; got != -250*1_0000_0000 {
		t.Errorf("unrealized pnl: got %d, want %d", got, int64(-250*1_0000_0000))
	}
}

func TestUserSummary_UnknownUser(t *testing.T) {
	svc, _, _ := fixture(t)
	if _, err := svc.UserSummary(uuid.New()); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestPoolSummary(t *testing.T) {
	svc, _, _ := fixture(t)

	sum, err := svc.PoolSummary("pool-btc")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Amount != 10_0000_0000 || sum.HoldAmount != 2_0000_0000 {
		t.Errorf("liquidity: got %+v", sum)
	}
	if sum.AvailableLiquidity != 8_0000_0000 {
		t.Errorf("available: got %d, want %d", sum.AvailableLiquidity, int64(8_0000_0000))
	}
	if sum.Status != "normal" {
		t.Errorf("status: got %q", sum.Status)
	}
	if sum.Utilization != 2_000_000_000 {
		t.Errorf("utilization: got %d, want 2_000_000_000", sum.Utilization)
	}
}

func TestMarketSummary(t *testing.T) {
	svc, _, _ := fixture(t)

	sum, err := svc.MarketSummary(symbol)
	if err != nil {
		t.Fatal(err)
	}
	if sum.IndexPrice != btcPrice {
		t.Errorf("index: got %d, want %d", sum.IndexPrice, btcPrice)
	}
	if sum.LongOI.SizeUSD != 5_000*1_0000_0000 {
		t.Errorf("long oi: got %d", sum.LongOI.SizeUSD)
	}
	if sum.ShortOI.SizeUSD != 0 {
		t.Errorf("short oi: got %d", sum.ShortOI.SizeUSD)
	}
}

func TestFundingRates_FromHistory(t *testing.T) {
	st := store.NewMemoryStore()
	po := oracle.NewFixtureOracle()
	history := projection.NewFundingHistory(4)
	history.Record(event.FundingUpdate{Symbol: symbol, LongHourlyRate: 42}, time.Unix(1_700_000_000, 0))
	svc := query.NewService(st, po, state.DefaultParams(), history, nil)

	got := svc.FundingRates(symbol, 10)
	if len(got) != 1 || got[0].LongHourlyRate != 42 {
		t.Errorf("funding rates: got %+v", got)
	}
}
