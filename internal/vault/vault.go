// Package vault defines the token-ledger contract: moving real token
// balances between vault accounts. The engine never touches the ledger
// until all validation for an operation has passed, so a failed
// operation leaves no externally visible effect.
package vault

import (
	"fmt"
	"sync"

	"perpcore/internal/errs"
)

// Authority says who signs a transfer.
type Authority uint8

const (
	// AuthorityUser transfers are signed by the owning user.
	AuthorityUser Authority = iota
	// AuthorityProtocol transfers are signed by the protocol's derived
	// signer (pool vault payouts, fee sweeps).
	AuthorityProtocol
)

// TokenLedger executes transfers between vault accounts. Amounts are
// native token units and are truncated to the ledger's integer width at
// this boundary.
type TokenLedger interface {
	Transfer(mint, from, to string, amount int64, auth Authority) error
}

// MemoryLedger is an in-memory ledger for tests and the local runner.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64 // key: mint/account
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]int64)}
}

func key(mint, account string) string { return mint + "/" + account }

// Credit seeds an account balance.
func (l *MemoryLedger) Credit(mint, account string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[key(mint, account)] += amount
}

// Balance reads an account balance.
func (l *MemoryLedger) Balance(mint, account string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[key(mint, account)]
}

func (l *MemoryLedger) Transfer(mint, from, to string, amount int64, auth Authority) error {
	if amount < 0 {
		return fmt.Errorf("negative transfer %d: %w", amount, errs.ErrTransferFailed)
	}
	if amount == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fk := key(mint, from)
	if l.balances[fk] < amount {
		return fmt.Errorf("%s has %d, need %d: %w", from, l.balances[fk], amount, errs.ErrTransferFailed)
	}
	l.balances[fk] -= amount
	l.balances[key(mint, to)] += amount
	return nil
}
