package engine_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"perpcore/internal/engine"
	"perpcore/internal/event"
	"perpcore/internal/fixed"
	"perpcore/internal/oracle"
	"perpcore/internal/state"
	"perpcore/internal/store"
	"perpcore/internal/vault"
)

// Fixture constants. BTC is the base collateral at $50,000, USDC the
// stable collateral at $1.
const (
	btcMint  = "btc"
	usdcMint = "usdc"

	btcFeed  = "BTC/USD"
	usdcFeed = "USDC/USD"

	btcPoolID  = "pool-btc"
	usdcPoolID = "pool-usdc"

	symbol = "BTC-PERP"

	btcPrice  = 50_000 * 100_000_000
	usdcPrice = 1 * 100_000_000

	// Second market, registered on demand by addETHMarket.
	ethMint   = "eth"
	ethFeed   = "ETH/USD"
	ethPoolID = "pool-eth"
	ethSymbol = "ETH-PERP"
	ethPrice  = 3_000 * 100_000_000

	startTime = int64(1_700_000_000)
)

type env struct {
	t      *testing.T
	now    int64
	store  *store.MemoryStore
	oracle *oracle.FixtureOracle
	ledger *vault.MemoryLedger
	sink   *event.MemorySink
	params *state.Params
	eng    *engine.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		t:      t,
		now:    startTime,
		store:  store.NewMemoryStore(),
		oracle: oracle.NewFixtureOracle(),
		ledger: vault.NewMemoryLedger(),
		sink:   event.NewMemorySink(),
	}

	e.params = state.DefaultParams()
	e.params.MinOrderMarginUSD = 1 * fixed.PricePrecision

	e.store.AddTradeToken(&state.TradeToken{
		Mint: btcMint, Name: "BTC", Decimals: 8, OracleKey: btcFeed,
		Discount: fixed.RatePrecision, LiquidationFactor: fixed.RatePrecision,
	})
	e.store.AddTradeToken(&state.TradeToken{
		Mint: usdcMint, Name: "USDC", Decimals: 6, OracleKey: usdcFeed,
		Discount: fixed.RatePrecision, LiquidationFactor: fixed.RatePrecision,
	})

	e.store.AddPool(&state.Pool{
		ID: btcPoolID, Name: "BTC pool", MintKey: btcMint,
		Config: state.PoolConfig{MinimumStakeAmount: 1, MinimumUnStakeAmount: 1},
	})
	e.store.AddPool(&state.Pool{
		ID: usdcPoolID, Name: "USDC pool", MintKey: usdcMint, Stable: true,
		Config: state.PoolConfig{MinimumStakeAmount: 1, MinimumUnStakeAmount: 1},
	})

	e.store.AddMarket(&state.Market{
		Symbol:       symbol,
		PoolID:       btcPoolID,
		StablePoolID: usdcPoolID,
		BaseMint:     btcMint,
		StableMint:   usdcMint,
		Config: state.MarketConfig{
			TickSize:              fixed.PricePrecision, // $1
			MaximumLeverage:       50,
			MinimumLeverage:       1,
			MaintenanceMarginRate: 500, // 0.5%
		},
	})

	e.setPrices()

	eng, err := engine.New(engine.Config{
		Store:  e.store,
		Oracle: e.oracle,
		Ledger: e.ledger,
		Sink:   e.sink,
		Params: e.params,
		Logger: zerolog.Nop(),
		Now:    func() int64 { return e.now },
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	e.eng = eng
	return e
}

func (e *env) setPrices() {
	e.oracle.SetPrice(btcFeed, btcPrice, e.now)
	e.oracle.SetPrice(usdcFeed, usdcPrice, e.now)
}

// advance moves the clock and republishes prices so they stay fresh.
func (e *env) advance(seconds int64) {
	e.now += seconds
	e.setPrices()
}

// setBTCPrice republishes the BTC feed at a new price.
func (e *env) setBTCPrice(price int64) {
	e.oracle.SetPrice(btcFeed, price, e.now)
}

// addETHMarket registers an ETH perp that shares the USDC stable pool
// with BTC-PERP.
func (e *env) addETHMarket() {
	e.t.Helper()
	e.store.AddTradeToken(&state.TradeToken{
		Mint: ethMint, Name: "ETH", Decimals: 8, OracleKey: ethFeed,
		Discount: fixed.RatePrecision, LiquidationFactor: fixed.RatePrecision,
	})
	e.store.AddPool(&state.Pool{
		ID: ethPoolID, Name: "ETH pool", MintKey: ethMint,
		Config: state.PoolConfig{MinimumStakeAmount: 1, MinimumUnStakeAmount: 1},
	})
	e.store.AddMarket(&state.Market{
		Symbol:       ethSymbol,
		PoolID:       ethPoolID,
		StablePoolID: usdcPoolID,
		BaseMint:     ethMint,
		StableMint:   usdcMint,
		Config: state.MarketConfig{
			TickSize:              fixed.PricePrecision,
			MaximumLeverage:       50,
			MinimumLeverage:       1,
			MaintenanceMarginRate: 500,
		},
	})
	e.oracle.SetPrice(ethFeed, ethPrice, e.now)
}

// newUser creates a user with wallet funds and deposits them.
func (e *env) newUser(btcAmount, usdcAmount int64) uuid.UUID {
	e.t.Helper()
	id := uuid.New()
	e.store.AddUser(state.NewUser(id, e.now))
	if btcAmount > 0 {
		e.ledger.Credit(btcMint, engine.UserAccount(id), btcAmount)
		if err := e.eng.Deposit(id, btcMint, btcAmount); err != nil {
			e.t.Fatalf("deposit btc: %v", err)
		}
	}
	if usdcAmount > 0 {
		e.ledger.Credit(usdcMint, engine.UserAccount(id), usdcAmount)
		if err := e.eng.Deposit(id, usdcMint, usdcAmount); err != nil {
			e.t.Fatalf("deposit usdc: %v", err)
		}
	}
	return id
}

// seedPool puts liquidity into a pool directly, bypassing staking.
func (e *env) seedPool(poolID string, amount int64) {
	e.t.Helper()
	p, err := e.store.Pool(poolID)
	if err != nil {
		e.t.Fatalf("pool %s: %v", poolID, err)
	}
	if err := p.AddAmount(amount); err != nil {
		e.t.Fatalf("seed pool: %v", err)
	}
	e.ledger.Credit(p.MintKey, engine.PoolVault(poolID), amount)
}

func (e *env) market() *state.Market {
	e.t.Helper()
	m, err := e.store.Market(symbol)
	if err != nil {
		e.t.Fatalf("market: %v", err)
	}
	return m
}

func (e *env) pool(id string) *state.Pool {
	e.t.Helper()
	p, err := e.store.Pool(id)
	if err != nil {
		e.t.Fatalf("pool %s: %v", id, err)
	}
	return p
}

func (e *env) user(id uuid.UUID) *state.User {
	e.t.Helper()
	u, err := e.store.User(id)
	if err != nil {
		e.t.Fatalf("user: %v", err)
	}
	return u
}

// openIsolated places and fills a market increase order with isolated
// margin and returns the position.
func (e *env) openIsolated(userID uuid.UUID, side state.Side, marginToken, leverage int64) *state.UserPosition {
	e.t.Helper()
	orderID, err := e.eng.PlaceOrder(userID, engine.OrderParams{
		Symbol:     symbol,
		MarginMode: state.MarginModeIsolated,
		Side:       side,
		Effect:     state.OrderEffectIncrease,
		OrderType:  state.OrderTypeMarket,
		Margin:     marginToken,
		Leverage:   leverage,
	})
	if err != nil {
		e.t.Fatalf("place order: %v", err)
	}
	if err := e.eng.ExecuteOrder(userID, orderID); err != nil {
		e.t.Fatalf("execute order: %v", err)
	}
	p := e.user(userID).Position(symbol, state.MarginModeIsolated)
	if p == nil {
		e.t.Fatal("position not opened")
	}
	return p
}

// openPortfolio places and fills a market increase order with portfolio
// margin and returns the position.
func (e *env) openPortfolio(userID uuid.UUID, side state.Side, marginUSD, leverage int64) *state.UserPosition {
	e.t.Helper()
	return e.openPortfolioOn(userID, symbol, side, marginUSD, leverage)
}

func (e *env) openPortfolioOn(userID uuid.UUID, sym string, side state.Side, marginUSD, leverage int64) *state.UserPosition {
	e.t.Helper()
	orderID, err := e.eng.PlaceOrder(userID, engine.OrderParams{
		Symbol:     sym,
		MarginMode: state.MarginModePortfolio,
		Side:       side,
		Effect:     state.OrderEffectIncrease,
		OrderType:  state.OrderTypeMarket,
		Margin:     marginUSD,
		Leverage:   leverage,
	})
	if err != nil {
		e.t.Fatalf("place order: %v", err)
	}
	if err := e.eng.ExecuteOrder(userID, orderID); err != nil {
		e.t.Fatalf("execute order: %v", err)
	}
	p := e.user(userID).Position(sym, state.MarginModePortfolio)
	if p == nil {
		e.t.Fatal("position not opened")
	}
	return p
}

// closeFull fills a market decrease order for the whole position.
func (e *env) closeFull(userID uuid.UUID, mode state.MarginMode, side state.Side, size int64) error {
	e.t.Helper()
	orderID, err := e.eng.PlaceOrder(userID, engine.OrderParams{
		Symbol:     symbol,
		MarginMode: mode,
		Side:       side,
		Effect:     state.OrderEffectDecrease,
		OrderType:  state.OrderTypeMarket,
		Size:       size,
	})
	if err != nil {
		return err
	}
	return e.eng.ExecuteOrder(userID, orderID)
}
