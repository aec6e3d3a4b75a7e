package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"perpcore/internal/vault"
)

// Journal is one executed transfer: Amount moved from Debit to Credit.
// Amounts are always positive; direction is carried by the accounts.
type Journal struct {
	JournalID uuid.UUID
	Sequence  int64
	Mint      string
	Debit     AccountKey // account the tokens left
	Credit    AccountKey // account the tokens entered
	Amount    int64
	Authority vault.Authority
	At        time.Time
}

// Validate checks journal well-formedness.
func (j Journal) Validate() error {
	if j.Amount <= 0 {
		return fmt.Errorf("journal %s: non-positive amount %d", j.JournalID, j.Amount)
	}
	if j.Mint == "" {
		return fmt.Errorf("journal %s: empty mint", j.JournalID)
	}
	if j.Debit.Kind == AccountUnknown || j.Credit.Kind == AccountUnknown {
		return fmt.Errorf("journal %s: unknown account", j.JournalID)
	}
	if j.Debit == j.Credit {
		return fmt.Errorf("journal %s: self transfer %s", j.JournalID, j.Debit)
	}
	return nil
}
