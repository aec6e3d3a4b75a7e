// Package store defines the record-store contract the engine borrows
// records through. The host owns the records and guarantees
// all-or-nothing commit of one logical operation; MemoryStore provides
// that behavior for tests and the local runner via snapshot/restore.
package store

import (
	"fmt"

	"github.com/google/uuid"

	"perpcore/internal/errs"
	"perpcore/internal/state"
)

// UserRepository resolves user records by identity.
type UserRepository interface {
	User(id uuid.UUID) (*state.User, error)
	Users() []*state.User
}

// PoolRepository resolves pool records by id.
type PoolRepository interface {
	Pool(id string) (*state.Pool, error)
	Pools() []*state.Pool
}

// MarketRepository resolves market records by symbol.
type MarketRepository interface {
	Market(symbol string) (*state.Market, error)
	Markets() []*state.Market
}

// TradeTokenRepository resolves trade-token records by mint.
type TradeTokenRepository interface {
	TradeToken(mint string) (*state.TradeToken, error)
	TradeTokens() []*state.TradeToken
}

// Store is everything the engine needs for one operation.
type Store interface {
	UserRepository
	PoolRepository
	MarketRepository
	TradeTokenRepository
}

// MemoryStore holds all records in memory.
type MemoryStore struct {
	users   map[uuid.UUID]*state.User
	pools   map[string]*state.Pool
	markets map[string]*state.Market
	tokens  map[string]*state.TradeToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[uuid.UUID]*state.User),
		pools:   make(map[string]*state.Pool),
		markets: make(map[string]*state.Market),
		tokens:  make(map[string]*state.TradeToken),
	}
}

func (s *MemoryStore) AddUser(u *state.User) { s.users[u.ID] = u }
func (s *MemoryStore) AddPool(p *state.Pool) { s.pools[p.ID] = p }
func (s *MemoryStore) AddMarket(m *state.Market) { s.markets[m.Symbol] = m }
func (s *MemoryStore) AddTradeToken(t *state.TradeToken) { s.tokens[t.Mint] = t }

func (s *MemoryStore) User(id uuid.UUID) (*state.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, errs.ErrUserNotFound)
	}
	return u, nil
}

func (s *MemoryStore) Users() []*state.User {
	out := make([]*state.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out
}

func (s *MemoryStore) Pool(id string) (*state.Pool, error) {
	p, ok := s.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", id, errs.ErrPoolNotFound)
	}
	return p, nil
}

func (s *MemoryStore) Pools() []*state.Pool {
	out := make([]*state.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, p)
	}
	return out
}

func (s *MemoryStore) Market(symbol string) (*state.Market, error) {
	m, ok := s.markets[symbol]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", symbol, errs.ErrMarketNotFound)
	}
	return m, nil
}

func (s *MemoryStore) Markets() []*state.Market {
	out := make([]*state.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	return out
}

func (s *MemoryStore) TradeToken(mint string) (*state.TradeToken, error) {
	t, ok := s.tokens[mint]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", mint, errs.ErrTradeTokenNotFound)
	}
	return t, nil
}

func (s *MemoryStore) TradeTokens() []*state.TradeToken {
	out := make([]*state.TradeToken, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, t)
	}
	return out
}

// Snapshot deep-copies every record so a failed operation can be rolled
// back with Restore.
func (s *MemoryStore) Snapshot() *MemoryStore {
	c := NewMemoryStore()
	for id, u := range s.users {
		c.users[id] = u.Clone()
	}
	for id, p := range s.pools {
		c.pools[id] = p.Clone()
	}
	for sym, m := range s.markets {
		c.markets[sym] = m.Clone()
	}
	for mint, t := range s.tokens {
		c.tokens[mint] = t.Clone()
	}
	return c
}

// Restore overwrites record contents from a snapshot taken before the
// failed operation. Pointer identity of live records is preserved.
func (s *MemoryStore) Restore(snap *MemoryStore) {
	for id, u := range s.users {
		if old, ok := snap.users[id]; ok {
			*u = *old
		} else {
			delete(s.users, id)
		}
	}
	for id, p := range s.pools {
		if old, ok := snap.pools[id]; ok {
			*p = *old
		} else {
			delete(s.pools, id)
		}
	}
	for sym, m := range s.markets {
		if old, ok := snap.markets[sym]; ok {
			*m = *old
		} else {
			delete(s.markets, sym)
		}
	}
	for mint, t := range s.tokens {
		if old, ok := snap.tokens[mint]; ok {
			*t = *old
		} else {
			delete(s.tokens, mint)
		}
	}
}
