package engine_test

import (
	"errors"
	"testing"

	"perpcore/internal/engine"
	"perpcore/internal/errs"
	"perpcore/internal/state"
)

func TestStake_FirstStakerMintsByTokens(t *testing.T) {
	e := newEnv(t)
	userID := e.newUser(10_0000_0000, 0)

	if err := e.eng.Stake(userID, btcPoolID, 10_0000_0000); err != nil {
		t.Fatalf("stake: %v", err)
	}

	pool := e.pool(btcPoolID)
	if pool.TotalSupply != 10_0000_0000 {
		t.Errorf("total supply: got %d, want 10_0000_0000", pool.TotalSupply)
	}
	if pool.Balance.Amount != 10_0000_0000 {
		t.Errorf("pool amount: got %d, want 10_0000_0000", pool.Balance.Amount)
	}
	s := e.user(userID).Stake(btcPoolID)
	if s == nil || s.StakedShares != 10_0000_0000 {
		t.Fatalf("stake shares: got %+v, want 10_0000_0000", s)
	}
	if got := e.ledger.Balance(btcMint, engine.PoolVault(btcPoolID)); got != 10_0000_0000 {
		t.Errorf("pool vault: got %d, want 10_0000_0000", got)
	}
	if got := e.user(userID).Token(btcMint).Amount; got != 0 {
		t.Errorf("user balance: got %d, want 0", got)
	}
}

func TestStake_SecondStakerPricedAtNAV(t *testing.T) {
	e := newEnv(t)
	alice := e.newUser(10_0000_0000, 0)
	bob := e.newUser(2_0000_0000, 0)

	if err := e.eng.Stake(alice, btcPoolID, 10_0000_0000); err != nil {
		t.Fatalf("stake alice: %v", err)
	}
	// Pool doubles in value: 10 shares now back 20 tokens.
	e.seedPool(btcPoolID, 10_0000_0000)

	if err := e.eng.Stake(bob, btcPoolID, 2_0000_0000); err != nil {
		t.Fatalf("stake bob: %v", err)
	}
	s := e.user(bob).Stake(btcPoolID)
	if s == nil || s.StakedShares != 1_0000_0000 {
		t.Fatalf("bob shares: got %+v, want 1_0000_0000", s)
	}
}

func TestUnStake_RoundTrip(t *testing.T) {
	e := newEnv(t)
	userID := e.newUser(10_0000_0000, 0)

	if err := e.eng.Stake(userID, btcPoolID, 10_0000_0000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := e.eng.UnStake(userID, btcPoolID, 5_0000_0000); err != nil {
		t.Fatalf("unstake half: %v", err)
	}

	pool := e.pool(btcPoolID)
	if pool.TotalSupply != 5_0000_0000 {
		t.Errorf("supply after half: got %d, want 5_0000_0000", pool.TotalSupply)
	}
	if got := e.user(userID).Token(btcMint).Amount; got != 5_0000_0000 {
		t.Errorf("balance after half: got %d, want 5_0000_0000", got)
	}

	if err := e.eng.UnStake(userID, btcPoolID, 5_0000_0000); err != nil {
		t.Fatalf("unstake rest: %v", err)
	}
	if got := e.user(userID).Token(btcMint).Amount; got != 10_0000_0000 {
		t.Errorf("balance after full exit: got %d, want 10_0000_0000", got)
	}
	if s := e.user(userID).Stake(btcPoolID); s != nil {
		t.Error("stake slot should be freed at zero shares")
	}
	if pool.Balance.Amount != 0 || pool.TotalSupply != 0 {
		t.Errorf("pool drained: amount=%d supply=%d", pool.Balance.Amount, pool.TotalSupply)
	}
}

func TestStake_StatusGating(t *testing.T) {
	e := newEnv(t)
	userID := e.newUser(10_0000_0000, 0)

	pool := e.pool(btcPoolID)
	pool.Status = state.PoolStatusStakePaused
	if err := e.eng.Stake(userID, btcPoolID, 1_0000_0000); !errors.Is(err, errs.ErrPoolStatusNotNormal) {
		t.Errorf("stake while paused: got %v, want ErrPoolStatusNotNormal", err)
	}

	pool.Status = state.PoolStatusNormal
	if err := e.eng.Stake(userID, btcPoolID, 1_0000_0000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	pool.Status = state.PoolStatusUnStakePaused
	if err := e.eng.UnStake(userID, btcPoolID, 1_0000_0000); !errors.Is(err, errs.ErrPoolStatusNotNormal) {
		t.Errorf("unstake while paused: got %v, want ErrPoolStatusNotNormal", err)
	}
}

func TestUnStake_BoundedByHeldLiquidity(t *testing.T) {
	e := newEnv(t)
	staker := e.newUser(10_0000_0000, 0)
	trader := e.newUser(1_0000_0000, 0)

	if err := e.eng.Stake(staker, btcPoolID, 10_0000_0000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	// A 10x long holds 0.9 BTC of the staked liquidity.
	e.openIsolated(trader, state.SideLong, 1000_0000, 10)

	err := e.eng.UnStake(staker, btcPoolID, 10_0000_0000)
	if !errors.Is(err, errs.ErrPoolAvailableLiquidityNotEnough) {
		t.Errorf("full exit against open exposure: got %v, want ErrPoolAvailableLiquidityNotEnough", err)
	}
}

func TestUnStake_BelowMinimumRejected(t *testing.T) {
	e := newEnv(t)
	userID := e.newUser(10_0000_0000, 0)

	if err := e.eng.Stake(userID, btcPoolID, 10_0000_0000); err != nil {
		t.Fatalf("stake: %v", err)
	}
	e.pool(btcPoolID).Config.MinimumUnStakeAmount = 1_0000_0000

	err := e.eng.UnStake(userID, btcPoolID, 100)
	if !errors.Is(err, errs.ErrUnStakeTooSmall) {
		t.Errorf("got %v, want ErrUnStakeTooSmall", err)
	}
}
