package ingestion_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"perpcore/internal/engine"
	"perpcore/internal/event"
	"perpcore/internal/fixed"
	"perpcore/internal/ingestion"
	"perpcore/internal/oracle"
	"perpcore/internal/state"
	"perpcore/internal/store"
	"perpcore/internal/vault"
)

func newDispatcherEnv(t *testing.T, log zerolog.Logger) (*ingestion.Dispatcher, *store.MemoryStore, *vault.MemoryLedger, uuid.UUID) {
	t.Helper()

	st := store.NewMemoryStore()
	st.AddTradeToken(&state.TradeToken{
		Mint: "usdc", Name: "USDC", Decimals: 6, OracleKey: "USDC/USD",
		Discount: fixed.RatePrecision, LiquidationFactor: fixed.RatePrecision,
	})
	userID := uuid.New()
	st.AddUser(state.NewUser(userID, 1_700_000_000))

	po := oracle.NewFixtureOracle()
	po.SetPrice("USDC/USD", fixed.PricePrecision, 1_700_000_000)

	lg := vault.NewMemoryLedger()
	lg.Credit("usdc", engine.UserAccount(userID), 10_000_000)

	eng, err := engine.New(engine.Config{
		Store:  st,
		Oracle: po,
		Ledger: lg,
		Sink:   event.NewMemorySink(),
		Params: state.DefaultParams(),
		Logger: zerolog.Nop(),
		Now:    func() int64 { return 1_700_000_000 },
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	return ingestion.NewDispatcher(eng, nil, 16, log), st, lg, userID
}

func TestDispatcher_AppliesDeposit(t *testing.T) {
	d, st, _, userID := newDispatcherEnv(t, zerolog.Nop())

	err := d.Apply(ingestion.DepositCommand{
		ID: uuid.New(), UserID: userID, Mint: "usdc", Amount: 1_000_000,
	})
	if err != nil {
		t.Fatal(err)
	}

	u, err := st.User(userID)
	if err != nil {
		t.Fatal(err)
	}
	if tok := u.Token("usdc"); tok == nil || tok.Amount != 1_000_000 {
		t.Errorf("deposited balance not reflected: %+v", tok)
	}
}

func TestDispatcher_StateHashCheckpoint(t *testing.T) {
	var buf bytes.Buffer
	d, st, _, userID := newDispatcherEnv(t, zerolog.New(&buf))
	d.TrackStateHash(st, 2)

	for i := 0; i < 2; i++ {
		err := d.Apply(ingestion.DepositCommand{
			ID: uuid.New(), UserID: userID, Mint: "usdc", Amount: 1_000,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	if !strings.Contains(buf.String(), "state checkpoint") {
		t.Errorf("no checkpoint logged after interval: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "state_hash") {
		t.Error("checkpoint log missing state hash")
	}
}

func TestDispatcher_RejectedCommandDoesNotCheckpoint(t *testing.T) {
	var buf bytes.Buffer
	d, st, _, _ := newDispatcherEnv(t, zerolog.New(&buf))
	d.TrackStateHash(st, 1)

	err := d.Apply(ingestion.DepositCommand{
		ID: uuid.New(), UserID: uuid.New(), Mint: "usdc", Amount: 1_000,
	})
	if err == nil {
		t.Fatal("expected unknown user rejection")
	}
	if strings.Contains(buf.String(), "state checkpoint") {
		t.Error("rejected command advanced the checkpoint counter")
	}
}
