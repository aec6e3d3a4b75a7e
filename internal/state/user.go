package state

import (
	"github.com/google/uuid"

	"perpcore/internal/errs"
	"perpcore/internal/fixed"
)

// Per-user capacity bounds. Slot arrays are fixed-size arenas; a slot is
// logically absent until its status becomes SlotUsing.
const (
	MaxUserTokens    = 12
	MaxUserPositions = 10
	MaxUserOrders    = 10
	MaxUserStakes    = 12
)

// SlotStatus tags a slot in a fixed-capacity arena.
type SlotStatus uint8

const (
	SlotInit SlotStatus = iota
	SlotUsing
)

// Side is the direction of a leveraged exposure.
type Side uint8

const (
	SideNone Side = iota
	SideLong
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return "none"
	}
}

// Opposite returns the other trading direction.
func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	default:
		return SideNone
	}
}

// MarginMode selects where position collateral lives: a dedicated pool
// vault (isolated) or the user's shared balance (portfolio/cross).
type MarginMode uint8

const (
	MarginModeIsolated MarginMode = iota
	MarginModePortfolio
)

func (m MarginMode) String() string {
	if m == MarginModePortfolio {
		return "portfolio"
	}
	return "isolated"
}

// UserToken is a per-mint collateral balance.
// Invariant: Liability > 0 implies UsedAmount >= Liability.
type UserToken struct {
	Status     SlotStatus
	Mint       string
	Amount     int64 // native token units
	UsedAmount int64 // pledged against open exposure
	Liability  int64 // unpaid shortfall
}

// UserPosition is one leveraged exposure keyed by (symbol, margin mode).
// Invariant: PositionSize == 0 iff the slot is free.
type UserPosition struct {
	Status     SlotStatus
	Symbol     string
	MarginMode MarginMode
	Side       Side
	MarginMint string

	PositionSize     int64 // USD, PricePrecision
	EntryPrice       int64 // PricePrecision, rounded to tick
	Leverage         int64
	InitialMargin    int64 // margin-mint token units
	InitialMarginUSD int64 // PricePrecision
	HoldPoolAmount   int64 // pool token units locked against this position

	// Per-unit accrual snapshots taken at open / last realization.
	OpenBorrowingFeePerToken int64 // PerTokenPrecision
	OpenFundingFeePerSize    int64 // PerTokenPrecision

	// Realized amounts, margin-mint token units.
	RealizedBorrowingFee int64
	RealizedFundingFee   int64
	RealizedPnL          int64

	UpdatedAt int64
}

// OrderType distinguishes how an order prices its fill.
type OrderType uint8

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
	OrderTypeStop
)

// StopKind refines stop orders.
type StopKind uint8

const (
	StopNone StopKind = iota
	StopLoss
	TakeProfit
)

// OrderEffect says whether a fill grows or shrinks the position.
type OrderEffect uint8

const (
	OrderEffectIncrease OrderEffect = iota
	OrderEffectDecrease
)

// UserOrder is a pending instruction to change a position.
type UserOrder struct {
	Status     SlotStatus
	OrderID    uuid.UUID
	Symbol     string
	MarginMode MarginMode
	Side       Side
	Effect     OrderEffect
	OrderType  OrderType
	StopKind   StopKind
	MarginMint string

	Price     int64 // trigger/limit price, 0 for market
	Size      int64 // USD size to increase/decrease
	Margin    int64 // isolated: token amount delivered; portfolio: USD held
	Leverage  int64
	CreatedAt int64
}

// UserStake is a per-pool share balance with a rewards-accrual snapshot.
type UserStake struct {
	Status                   SlotStatus
	PoolID                   string
	StakedShares             int64
	OpenRewardsPerStakeToken int64 // PerTokenPrecision
}

// User owns bounded arenas of tokens, positions, orders and stakes,
// plus a scalar USD hold reserved by pending portfolio-margin orders.
type User struct {
	ID        uuid.UUID
	Hold      int64 // USD, PricePrecision
	Tokens    [MaxUserTokens]UserToken
	Positions [MaxUserPositions]UserPosition
	Orders    [MaxUserOrders]UserOrder
	Stakes    [MaxUserStakes]UserStake
	CreatedAt int64
}

func NewUser(id uuid.UUID, now int64) *User {
	return &User{ID: id, CreatedAt: now}
}

// --- token slots ---

// Token returns the using slot for mint, or nil.
func (u *User) Token(mint string) *UserToken {
	for i := range u.Tokens {
		if u.Tokens[i].Status == SlotUsing && u.Tokens[i].Mint == mint {
			return &u.Tokens[i]
		}
	}
	return nil
}

// UseToken returns the slot for mint, claiming the first free slot on
// first use.
func (u *User) UseToken(mint string) (*UserToken, error) {
	if t := u.Token(mint); t != nil {
		return t, nil
	}
	for i := range u.Tokens {
		if u.Tokens[i].Status == SlotInit {
			u.Tokens[i] = UserToken{Status: SlotUsing, Mint: mint}
			return &u.Tokens[i], nil
		}
	}
	return nil, errs.ErrNoMoreTokenSpace
}

// AddAmount credits a token balance.
func (t *UserToken) AddAmount(amount int64) error {
	if amount < 0 {
		return errs.ErrInvalidParam
	}
	v, err := fixed.Add(t.Amount, amount)
	if err != nil {
		return err
	}
	t.Amount = v
	return nil
}

// SubAmount debits a token balance, failing when it would go negative.
func (t *UserToken) SubAmount(amount int64) error {
	if amount < 0 {
		return errs.ErrInvalidParam
	}
	if t.Amount < amount {
		return errs.ErrAmountNotEnough
	}
	t.Amount -= amount
	return nil
}

// AddUsed pledges amount against open exposure.
func (t *UserToken) AddUsed(amount int64) error {
	if amount < 0 {
		return errs.ErrInvalidParam
	}
	v, err := fixed.Add(t.UsedAmount, amount)
	if err != nil {
		return err
	}
	t.UsedAmount = v
	return nil
}

// SubUsed releases pledged amount. The release must keep
// UsedAmount >= Liability while any liability is outstanding.
func (t *UserToken) SubUsed(amount int64) error {
	if amount < 0 || t.UsedAmount < amount {
		return errs.ErrAmountNotEnough
	}
	next := t.UsedAmount - amount
	if t.Liability > 0 && next < t.Liability {
		return errs.ErrAmountNotEnough
	}
	t.UsedAmount = next
	return nil
}

// AddLiability records an unpaid shortfall, pledging the same amount so
// the liability invariant holds.
func (t *UserToken) AddLiability(amount int64) error {
	if amount < 0 {
		return errs.ErrInvalidParam
	}
	l, err := fixed.Add(t.Liability, amount)
	if err != nil {
		return err
	}
	u, err := fixed.Add(t.UsedAmount, amount)
	if err != nil {
		return err
	}
	t.Liability = l
	t.UsedAmount = u
	return nil
}

// RepayLiability pays down liability from the free balance and returns
// the amount actually repaid.
func (t *UserToken) RepayLiability(amount int64) (int64, error) {
	if amount < 0 {
		return 0, errs.ErrInvalidParam
	}
	repay := fixed.Min(amount, t.Liability)
	repay = fixed.Min(repay, t.Amount)
	if repay == 0 {
		return 0, nil
	}
	t.Amount -= repay
	t.Liability -= repay
	t.UsedAmount -= repay
	return repay, nil
}

// Available returns the unpledged balance.
func (t *UserToken) Available() int64 {
	if t.Amount <= t.UsedAmount {
		return 0
	}
	return t.Amount - t.UsedAmount
}

// --- position slots ---

// Position returns the using slot for (symbol, mode), or nil.
func (u *User) Position(symbol string, mode MarginMode) *UserPosition {
	for i := range u.Positions {
		p := &u.Positions[i]
		if p.Status == SlotUsing && p.Symbol == symbol && p.MarginMode == mode {
			return p
		}
	}
	return nil
}

// UsePosition returns the slot for (symbol, mode), claiming a free slot
// on first increase.
func (u *User) UsePosition(symbol string, mode MarginMode) (*UserPosition, error) {
	if p := u.Position(symbol, mode); p != nil {
		return p, nil
	}
	for i := range u.Positions {
		if u.Positions[i].Status == SlotInit {
			u.Positions[i] = UserPosition{Status: SlotUsing, Symbol: symbol, MarginMode: mode}
			return &u.Positions[i], nil
		}
	}
	return nil, errs.ErrNoMorePositionSpace
}

// ResetPosition frees a fully decreased slot.
func (u *User) ResetPosition(p *UserPosition) {
	*p = UserPosition{}
}

// OpenPositions returns all using position slots.
func (u *User) OpenPositions() []*UserPosition {
	out := make([]*UserPosition, 0, MaxUserPositions)
	for i := range u.Positions {
		if u.Positions[i].Status == SlotUsing {
			out = append(out, &u.Positions[i])
		}
	}
	return out
}

// CrossPositions returns all using portfolio-margin slots.
func (u *User) CrossPositions() []*UserPosition {
	out := make([]*UserPosition, 0, MaxUserPositions)
	for i := range u.Positions {
		p := &u.Positions[i]
		if p.Status == SlotUsing && p.MarginMode == MarginModePortfolio {
			out = append(out, p)
		}
	}
	return out
}

// --- order slots ---

// AddOrder claims the first free order slot.
func (u *User) AddOrder(o UserOrder) (*UserOrder, error) {
	for i := range u.Orders {
		if u.Orders[i].Status == SlotInit {
			o.Status = SlotUsing
			u.Orders[i] = o
			return &u.Orders[i], nil
		}
	}
	return nil, errs.ErrNoMoreOrderSpace
}

// Order returns the using slot with the given id, or nil.
func (u *User) Order(id uuid.UUID) *UserOrder {
	for i := range u.Orders {
		if u.Orders[i].Status == SlotUsing && u.Orders[i].OrderID == id {
			return &u.Orders[i]
		}
	}
	return nil
}

// ResetOrder frees an order slot after fill or cancel.
func (u *User) ResetOrder(o *UserOrder) {
	*o = UserOrder{}
}

// OpenOrders returns all using order slots.
func (u *User) OpenOrders() []*UserOrder {
	out := make([]*UserOrder, 0, MaxUserOrders)
	for i := range u.Orders {
		if u.Orders[i].Status == SlotUsing {
			out = append(out, &u.Orders[i])
		}
	}
	return out
}

// --- stake slots ---

// Stake returns the using slot for pool, or nil.
func (u *User) Stake(poolID string) *UserStake {
	for i := range u.Stakes {
		if u.Stakes[i].Status == SlotUsing && u.Stakes[i].PoolID == poolID {
			return &u.Stakes[i]
		}
	}
	return nil
}

// UseStake returns the slot for pool, claiming a free slot on first
// stake.
func (u *User) UseStake(poolID string) (*UserStake, error) {
	if s := u.Stake(poolID); s != nil {
		return s, nil
	}
	for i := range u.Stakes {
		if u.Stakes[i].Status == SlotInit {
			u.Stakes[i] = UserStake{Status: SlotUsing, PoolID: poolID}
			return &u.Stakes[i], nil
		}
	}
	return nil, errs.ErrNoMoreStakeSpace
}

// ResetStake frees a stake slot holding no shares.
func (u *User) ResetStake(s *UserStake) {
	*s = UserStake{}
}

// --- portfolio hold ---

// AddHold reserves USD value for a pending portfolio-margin order.
func (u *User) AddHold(usd int64) error {
	if usd < 0 {
		return errs.ErrInvalidParam
	}
	v, err := fixed.Add(u.Hold, usd)
	if err != nil {
		return err
	}
	u.Hold = v
	return nil
}

// SubHold releases reserved USD value.
func (u *User) SubHold(usd int64) error {
	if usd < 0 || u.Hold < usd {
		return errs.ErrAmountNotEnough
	}
	u.Hold -= usd
	return nil
}

// Clone deep-copies the user record. Arenas are value arrays, so the
// struct copy is already deep.
func (u *User) Clone() *User {
	c := *u
	return &c
}
