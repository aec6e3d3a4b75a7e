package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"perpcore/internal/vault"
)

// Journaled wraps a token ledger and records a journal entry for every
// transfer that succeeds. The journal is the audit trail: replaying it
// through a Tracker reproduces the wrapped ledger's balances.
type Journaled struct {
	inner vault.TokenLedger
	now   func() time.Time

	mu       sync.Mutex
	seq      int64
	journals []Journal
}

func NewJournaled(inner vault.TokenLedger, now func() time.Time) *Journaled {
	if now == nil {
		now = time.Now
	}
	return &Journaled{inner: inner, now: now}
}

// Transfer executes on the wrapped ledger, then journals. A zero-amount
// transfer is a no-op on both.
func (l *Journaled) Transfer(mint, from, to string, amount int64, auth vault.Authority) error {
	if amount == 0 {
		return nil
	}
	debit, err := ParseAccount(from)
	if err != nil {
		return err
	}
	credit, err := ParseAccount(to)
	if err != nil {
		return err
	}
	if err := l.inner.Transfer(mint, from, to, amount, auth); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.journals = append(l.journals, Journal{
		JournalID: uuid.New(),
		Sequence:  l.seq,
		Mint:      mint,
		Debit:     debit,
		Credit:    credit,
		Amount:    amount,
		Authority: auth,
		At:        l.now(),
	})
	return nil
}

// Journals returns a copy of everything recorded so far.
func (l *Journaled) Journals() []Journal {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Journal, len(l.journals))
	copy(out, l.journals)
	return out
}

// JournalsSince returns entries with sequence greater than seq.
func (l *Journaled) JournalsSince(seq int64) []Journal {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Journal
	for _, j := range l.journals {
		if j.Sequence > seq {
			out = append(out, j)
		}
	}
	return out
}
