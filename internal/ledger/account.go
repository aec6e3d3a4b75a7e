// Package ledger records a double-entry journal over the vault-account
// transfers the engine performs, so every token that moved can be
// traced and the vault balances re-derived independently of the
// settlement records.
package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountKind classifies a vault account string.
type AccountKind uint8

const (
	AccountUnknown AccountKind = iota
	// AccountUser is a user's external wallet, "user:<uuid>".
	AccountUser
	// AccountUserFunds is the shared deposit vault, "vault:user-funds".
	AccountUserFunds
	// AccountDao is the DAO treasury vault, "vault:dao".
	AccountDao
	// AccountPoolVault is a pool's custody vault, "vault:pool:<id>".
	AccountPoolVault
)

func (k AccountKind) String() string {
	switch k {
	case AccountUser:
		return "user"
	case AccountUserFunds:
		return "user_funds"
	case AccountDao:
		return "dao"
	case AccountPoolVault:
		return "pool_vault"
	}
	return "unknown"
}

// AccountKey is a parsed vault account.
type AccountKey struct {
	Kind   AccountKind
	UserID uuid.UUID // AccountUser only
	PoolID string    // AccountPoolVault only
}

// ParseAccount decodes the account strings the engine uses on the
// vault ledger.
func ParseAccount(s string) (AccountKey, error) {
	switch {
	case s == "vault:user-funds":
		return AccountKey{Kind: AccountUserFunds}, nil
	case s == "vault:dao":
		return AccountKey{Kind: AccountDao}, nil
	case strings.HasPrefix(s, "vault:pool:"):
		id := strings.TrimPrefix(s, "vault:pool:")
		if id == "" {
			return AccountKey{}, fmt.Errorf("empty pool id in account %q", s)
		}
		return AccountKey{Kind: AccountPoolVault, PoolID: id}, nil
	case strings.HasPrefix(s, "user:"):
		id, err := uuid.Parse(strings.TrimPrefix(s, "user:"))
		if err != nil {
			return AccountKey{}, fmt.Errorf("bad user id in account %q: %w", s, err)
		}
		return AccountKey{Kind: AccountUser, UserID: id}, nil
	}
	return AccountKey{}, fmt.Errorf("unknown account form %q", s)
}

// String renders the key back to its vault account string.
func (k AccountKey) String() string {
	switch k.Kind {
	case AccountUser:
		return "user:" + k.UserID.String()
	case AccountUserFunds:
		return "vault:user-funds"
	case AccountDao:
		return "vault:dao"
	case AccountPoolVault:
		return "vault:pool:" + k.PoolID
	}
	return "unknown"
}
