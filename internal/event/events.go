// Package event carries the append-only change notifications the engine
// emits for off-chain indexers. Sinks are fire-and-forget: the engine
// never reads events back and a sink failure never fails an operation.
package event

import (
	"github.com/google/uuid"
)

// Kind discriminates event payloads.
type Kind string

const (
	KindBalanceChange   Kind = "balance_change"
	KindHoldChange      Kind = "hold_change"
	KindPositionChange  Kind = "position_change"
	KindOrderChange     Kind = "order_change"
	KindStakeChange     Kind = "stake_change"
	KindPoolChange      Kind = "pool_change"
	KindLiquidation     Kind = "liquidation"
	KindADLExecution    Kind = "adl_execution"
	KindRewardsCollect  Kind = "rewards_collect"
	KindRebalance       Kind = "rebalance"
	KindFundingUpdate   Kind = "funding_update"
	KindBorrowingUpdate Kind = "borrowing_update"
)

// Event is implemented by every payload.
type Event interface {
	EventKind() Kind
}

// BalanceChange reports a user token balance mutation.
type BalanceChange struct {
	UserID     uuid.UUID `json:"user_id"`
	Mint       string    `json:"mint"`
	PreAmount  int64     `json:"pre_amount"`
	PostAmount int64     `json:"post_amount"`
	PreUsed    int64     `json:"pre_used"`
	PostUsed   int64     `json:"post_used"`
	Liability  int64     `json:"liability"`
	Reason     string    `json:"reason"`
}

func (e BalanceChange) EventKind() Kind { return KindBalanceChange }

// HoldChange reports a portfolio hold mutation.
type HoldChange struct {
	UserID   uuid.UUID `json:"user_id"`
	PreHold  int64     `json:"pre_hold"`
	PostHold int64     `json:"post_hold"`
	Reason   string    `json:"reason"`
}

func (e HoldChange) EventKind() Kind { return KindHoldChange }

// PositionChange reports an increase, decrease or close.
type PositionChange struct {
	UserID        uuid.UUID `json:"user_id"`
	Symbol        string    `json:"symbol"`
	MarginMode    string    `json:"margin_mode"`
	Side          string    `json:"side"`
	PreSize       int64     `json:"pre_size"`
	PostSize      int64     `json:"post_size"`
	EntryPrice    int64     `json:"entry_price"`
	ExecutePrice  int64     `json:"execute_price"`
	RealizedPnL   int64     `json:"realized_pnl"`
	SettleFee     int64     `json:"settle_fee"`
	IsLiquidation bool      `json:"is_liquidation"`
}

func (e PositionChange) EventKind() Kind { return KindPositionChange }

// OrderChange reports placement, fill or cancellation.
type OrderChange struct {
	UserID  uuid.UUID `json:"user_id"`
	OrderID uuid.UUID `json:"order_id"`
	Symbol  string    `json:"symbol"`
	Action  string    `json:"action"` // placed | filled | cancelled
}

func (e OrderChange) EventKind() Kind { return KindOrderChange }

// StakeChange reports stake share mint/burn.
type StakeChange struct {
	UserID    uuid.UUID `json:"user_id"`
	PoolID    string    `json:"pool_id"`
	PreShares int64     `json:"pre_shares"`
	PostShares int64    `json:"post_shares"`
	TokenDelta int64    `json:"token_delta"`
	Action    string    `json:"action"` // stake | unstake | auto_compound
}

func (e StakeChange) EventKind() Kind { return KindStakeChange }

// PoolChange reports pool balance movements.
type PoolChange struct {
	PoolID        string `json:"pool_id"`
	Amount        int64  `json:"amount"`
	HoldAmount    int64  `json:"hold_amount"`
	Unsettled     int64  `json:"unsettled"`
	InsuranceFund int64  `json:"insurance_fund"`
	Reason        string `json:"reason"`
}

func (e PoolChange) EventKind() Kind { return KindPoolChange }

// Liquidation reports a forced close.
type Liquidation struct {
	UserID       uuid.UUID `json:"user_id"`
	Symbol       string    `json:"symbol"`
	MarginMode   string    `json:"margin_mode"`
	Size         int64     `json:"size"`
	ExecutePrice int64     `json:"execute_price"`
	BankruptcyMR int64     `json:"bankruptcy_mr,omitempty"`
	InsuranceIn  int64     `json:"insurance_in"`
}

func (e Liquidation) EventKind() Kind { return KindLiquidation }

// ADLExecution reports an auto-deleveraging decrease.
type ADLExecution struct {
	UserID       uuid.UUID `json:"user_id"`
	Symbol       string    `json:"symbol"`
	Size         int64     `json:"size"`
	ExecutePrice int64     `json:"execute_price"`
}

func (e ADLExecution) EventKind() Kind { return KindADLExecution }

// RewardsCollect reports staker reward realization.
type RewardsCollect struct {
	UserID uuid.UUID `json:"user_id"`
	PoolID string    `json:"pool_id"`
	Amount int64     `json:"amount"`
}

func (e RewardsCollect) EventKind() Kind { return KindRewardsCollect }

// Rebalance reports an unsettled-amount settlement pass.
type Rebalance struct {
	Symbol         string `json:"symbol"`
	BaseSettled    int64  `json:"base_settled"`
	StableSettled  int64  `json:"stable_settled"`
	StableLossMove int64  `json:"stable_loss_move"`
}

func (e Rebalance) EventKind() Kind { return KindRebalance }

// FundingUpdate reports a funding accrual tick.
type FundingUpdate struct {
	Symbol          string `json:"symbol"`
	LongPerSize     int64  `json:"long_per_size"`
	ShortPerSize    int64  `json:"short_per_size"`
	LongHourlyRate  int64  `json:"long_hourly_rate"`
	ShortHourlyRate int64  `json:"short_hourly_rate"`
}

func (e FundingUpdate) EventKind() Kind { return KindFundingUpdate }

// BorrowingUpdate reports a borrowing accrual tick.
type BorrowingUpdate struct {
	PoolID      string `json:"pool_id"`
	PerToken    int64  `json:"per_token"`
	Utilization int64  `json:"utilization"`
}

func (e BorrowingUpdate) EventKind() Kind { return KindBorrowingUpdate }
