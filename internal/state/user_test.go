package state_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"perpcore/internal/errs"
	"perpcore/internal/state"
)

func TestUseToken_ClaimsAndReuses(t *testing.T) {
	u := state.NewUser(uuid.New(), 0)

	tok, err := u.UseToken("btc")
	if err != nil {
		t.Fatal(err)
	}
	if tok.Status != state.SlotUsing || tok.Mint != "btc" {
		t.Fatalf("claimed slot: %+v", tok)
	}

	again, err := u.UseToken("btc")
	if err != nil {
		t.Fatal(err)
	}
	if again != tok {
		t.Error("second UseToken returned a different slot")
	}
	if u.Token("eth") != nil {
		t.Error("unclaimed mint resolved")
	}
}

func TestUseToken_ArenaExhausted(t *testing.T) {
	u := state.NewUser(uuid.New(), 0)
	for i := 0; i < state.MaxUserTokens; i++ {
		if _, err := u.UseToken(string(rune('a' + i))); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := u.UseToken("overflow"); !errors.Is(err, errs.ErrNoMoreTokenSpace) {
		t.Errorf("full arena: got %v", err)
	}
}

func TestUserToken_UsedCannotDropBelowLiability(t *testing.T) {
	tok := &state.UserToken{Status: state.SlotUsing, Mint: "usdc"}
	if err := tok.AddAmount(1_000); err != nil {
		t.Fatal(err)
	}
	if err := tok.AddUsed(600); err != nil {
		t.Fatal(err)
	}
	if err := tok.AddLiability(200); err != nil {
		t.Fatal(err)
	}
	// Used is now 800 with 200 of it backing the liability.
	if err := tok.SubUsed(700); !errors.Is(err, errs.ErrAmountNotEnough) {
		t.Errorf("release below liability: got %v", err)
	}
	if err := tok.SubUsed(600); err != nil {
		t.Errorf("release to liability floor: %v", err)
	}
}

func TestUserToken_RepayLiability(t *testing.T) {
	tok := &state.UserToken{Status: state.SlotUsing, Mint: "usdc"}
	if err := tok.AddAmount(150); err != nil {
		t.Fatal(err)
	}
	if err := tok.AddLiability(400); err != nil {
		t.Fatal(err)
	}

	// Repay is capped by both the liability and the free balance.
	repaid, err := tok.RepayLiability(1_000)
	if err != nil {
		t.Fatal(err)
	}
	if repaid != 150 {
		t.Errorf("repaid: got %d, want 150", repaid)
	}
	if tok.Amount != 0 || tok.Liability != 250 || tok.UsedAmount != 250 {
		t.Errorf("after repay: %+v", tok)
	}
}

func TestUserToken_Available(t *testing.T) {
	tok := &state.UserToken{Amount: 500, UsedAmount: 200}
	if got := tok.Available(); got != 300 {
		t.Errorf("available: got %d, want 300", got)
	}
	tok.UsedAmount = 700
	if got := tok.Available(); got != 0 {
		t.Errorf("overpledged available: got %d, want 0", got)
	}
}

func TestHold_RoundTrip(t *testing.T) {
	u := state.NewUser(uuid.New(), 0)
	if err := u.AddHold(500); err != nil {
		t.Fatal(err)
	}
	if err := u.SubHold(600); !errors.Is(err, errs.ErrAmountNotEnough) {
		t.Errorf("over-release: got %v", err)
	}
	if err := u.SubHold(500); err != nil {
		t.Fatal(err)
	}
	if u.Hold != 0 {
		t.Errorf("hold: got %d, want 0", u.Hold)
	}
}

func TestResetPosition_FreesSlot(t *testing.T) {
	u := state.NewUser(uuid.New(), 0)
	p, err := u.UsePosition("BTC-PERP", state.MarginModeIsolated)
	if err != nil {
		t.Fatal(err)
	}
	p.PositionSize = 100

	u.ResetPosition(p)
	if u.Position("BTC-PERP", state.MarginModeIsolated) != nil {
		t.Error("reset slot still resolves")
	}
	if len(u.OpenPositions()) != 0 {
		t.Error("reset slot still listed as open")
	}
}

func TestOrders_AddFindReset(t *testing.T) {
	u := state.NewUser(uuid.New(), 0)
	id := uuid.New()
	o, err := u.AddOrder(state.UserOrder{OrderID: id, Symbol: "BTC-PERP"})
	if err != nil {
		t.Fatal(err)
	}
	if u.Order(id) != o {
		t.Error("order lookup missed")
	}
	u.ResetOrder(o)
	if u.Order(id) != nil {
		t.Error("reset order still resolves")
	}
}
