// Package query serves read-only views over the settlement store and
// the projection tables. The host serializes store reads with engine
// operations; the Postgres reads are independent.
package query

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"perpcore/internal/fee"
	"perpcore/internal/fixed"
	"perpcore/internal/oracle"
	"perpcore/internal/projection"
	"perpcore/internal/state"
	"perpcore/internal/store"
)

type Service struct {
	store   store.Store
	oracle  oracle.PriceOracle
	params  *state.Params
	history *projection.FundingHistory
	db      *sql.DB // nil disables history queries
	mu      *sync.RWMutex
	now     func() int64
}

func NewService(st store.Store, po oracle.PriceOracle, params *state.Params, history *projection.FundingHistory, db *sql.DB) *Service {
	return &Service{
		store:   st,
		oracle:  po,
		params:  params,
		history: history,
		db:      db,
		now:     func() int64 { return time.Now().Unix() },
	}
}

// GuardState makes store reads take the read side of mu, pairing with
// the dispatcher's write side over the same records.
func (s *Service) GuardState(mu *sync.RWMutex) {
	s.mu = mu
}

func (s *Service) rlock() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// UserSummary renders a user's balances, positions, orders and stakes.
// Mark prices and unrealized PnL are resolved at query time; a stale
// oracle leaves those fields zero rather than failing the whole view.
func (s *Service) UserSummary(userID uuid.UUID) (UserSummary, error) {
	defer s.rlock()()

	u, err := s.store.User(userID)
	if err != nil {
		return UserSummary{}, err
	}

	out := UserSummary{UserID: u.ID, HoldUSD: u.Hold}

	for i := range u.Tokens {
		t := &u.Tokens[i]
		if t.Status != state.SlotUsing {
			continue
		}
		out.Balances = append(out.Balances, TokenBalance{
			Mint:      t.Mint,
			Amount:    t.Amount,
			Used:      t.UsedAmount,
			Liability: t.Liability,
			Available: t.Available(),
		})
	}

	for _, p := range u.OpenPositions() {
		pos := Position{
			Symbol:           p.Symbol,
			MarginMode:       p.MarginMode.String(),
			Side:             p.Side.String(),
			SizeUSD:          p.PositionSize,
			EntryPrice:       p.EntryPrice,
			Leverage:         p.Leverage,
			InitialMargin:    p.InitialMargin,
			InitialMarginUSD: p.InitialMarginUSD,
			RealizedPnL:      p.RealizedPnL,
			RealizedFunding:  p.RealizedFundingFee,
			RealizedBorrow:   p.RealizedBorrowingFee,
			UpdatedAt:        p.UpdatedAt,
		}
		if mark, err := s.markPrice(p.Symbol); err == nil {
			pos.MarkPrice = mark
			if pnl, err := unrealizedPnLUSD(p, mark); err == nil {
				pos.UnrealizedPnLUSD = pnl
			}
		}
		out.Positions = append(out.Positions, pos)
	}

	for _, o := range u.OpenOrders() {
		out.Orders = append(out.Orders, Order{
			OrderID:    o.OrderID,
			Symbol:     o.Symbol,
			MarginMode: o.MarginMode.String(),
			Side:       o.Side.String(),
			Effect:     effectString(o.Effect),
			Price:      o.Price,
			SizeUSD:    o.Size,
			Margin:     o.Margin,
			Leverage:   o.Leverage,
			CreatedAt:  o.CreatedAt,
		})
	}

	for i := range u.Stakes {
		st := &u.Stakes[i]
		if st.Status != state.SlotUsing {
			continue
		}
		entry := Stake{PoolID: st.PoolID, Shares: st.StakedShares}
		if p, err := s.store.Pool(st.PoolID); err == nil {
			if pending, err := fee.PendingStakeRewards(st, p); err == nil {
				entry.PendingRewards = pending
			}
		}
		out.Stakes = append(out.Stakes, entry)
	}

	return out, nil
}

// PoolSummary renders one pool's liquidity and reward state.
func (s *Service) PoolSummary(poolID string) (PoolSummary, error) {
	defer s.rlock()()

	p, err := s.store.Pool(poolID)
	if err != nil {
		return PoolSummary{}, err
	}
	out := PoolSummary{
		PoolID:             p.ID,
		Name:               p.Name,
		Mint:               p.MintKey,
		Stable:             p.Stable,
		Status:             poolStatusString(p.Status),
		Amount:             p.Balance.Amount,
		HoldAmount:         p.Balance.HoldAmount,
		UnsettledAmount:    p.Balance.UnsettledAmount,
		LossAmount:         p.Balance.LossAmount,
		InsuranceFund:      p.InsuranceFundAmount,
		AvailableLiquidity: p.AvailableLiquidity(),
		TotalSupply:        p.TotalSupply,
		PendingFees:        p.FeeReward.Amount,
		PendingDaoFees:     p.FeeReward.DaoAmount,
	}
	if util, err := p.Utilization(); err == nil {
		out.Utilization = util
	}
	return out, nil
}

// MarketSummary renders one symbol's book and funding state.
func (s *Service) MarketSummary(symbol string) (MarketSummary, error) {
	defer s.rlock()()

	m, err := s.store.Market(symbol)
	if err != nil {
		return MarketSummary{}, err
	}
	out := MarketSummary{
		Symbol:          m.Symbol,
		LongOI:          OpenInterest{SizeUSD: m.LongOpenInterest.Size, AvgEntryPrice: m.LongOpenInterest.AvgEntryPrice},
		ShortOI:         OpenInterest{SizeUSD: m.ShortOpenInterest.Size, AvgEntryPrice: m.ShortOpenInterest.AvgEntryPrice},
		LongHourlyRate:  m.FundingFee.LongHourlyRate,
		ShortHourlyRate: m.FundingFee.ShortHourlyRate,
		StableLoss:      m.StableLoss,
	}
	if mark, err := s.markPrice(symbol); err == nil {
		out.IndexPrice = mark
	}
	return out, nil
}

// FundingRates returns recent funding samples for symbol, newest first,
// from the in-memory projection.
func (s *Service) FundingRates(symbol string, limit int) []projection.RateSample {
	if s.history == nil {
		return nil
	}
	return s.history.Recent(symbol, limit)
}

// LiquidationHistory reads a user's forced closes from the projection
// tables, newest first.
func (s *Service) LiquidationHistory(ctx context.Context, userID uuid.UUID, limit int) ([]LiquidationRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, symbol, margin_mode, size, execute_price, insurance_in, observed_at
		FROM projections.liquidation_history
		WHERE user_id = $1
		ORDER BY observed_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LiquidationRecord
	for rows.Next() {
		var r LiquidationRecord
		var at time.Time
		if err := rows.Scan(&r.UserID, &r.Symbol, &r.MarginMode, &r.Size, &r.ExecutePrice, &r.InsuranceIn, &at); err != nil {
			return nil, err
		}
		r.ObservedAt = at.Unix()
		out = append(out, r)
	}
	return out, rows.Err()
}

// markPrice resolves the symbol's base token oracle price.
func (s *Service) markPrice(symbol string) (int64, error) {
	m, err := s.store.Market(symbol)
	if err != nil {
		return 0, err
	}
	tt, err := s.store.TradeToken(m.BaseMint)
	if err != nil {
		return 0, err
	}
	p, err := s.oracle.PriceOf(tt.OracleKey, s.now(), s.params.MaxPriceAgeSeconds)
	if err != nil {
		return 0, err
	}
	return p.Price, nil
}

// unrealizedPnLUSD prices the open size at mark against entry.
func unrealizedPnLUSD(p *state.UserPosition, mark int64) (int64, error) {
	diff, err := fixed.Sub(mark, p.EntryPrice)
	if err != nil {
		return 0, err
	}
	if p.Side == state.SideShort {
		diff = -diff
	}
	return fixed.MulDiv(p.PositionSize, diff, p.EntryPrice)
}

func effectString(e state.OrderEffect) string {
	if e == state.OrderEffectDecrease {
		return "decrease"
	}
	return "increase"
}

func poolStatusString(s state.PoolStatus) string {
	switch s {
	case state.PoolStatusStakePaused:
		return "stake_paused"
	case state.PoolStatusUnStakePaused:
		return "unstake_paused"
	}
	return "normal"
}
