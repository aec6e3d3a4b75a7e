package query

import "github.com/google/uuid"

// TokenBalance is one collateral slot of a user account.
type TokenBalance struct {
	Mint      string `json:"mint"`
	Amount    int64  `json:"amount"`
	Used      int64  `json:"used"`
	Liability int64  `json:"liability"`
	Available int64  `json:"available"`
}

// Position is one open exposure with mark-price derived values.
type Position struct {
	Symbol           string `json:"symbol"`
	MarginMode       string `json:"margin_mode"`
	Side             string `json:"side"`
	SizeUSD          int64  `json:"size_usd"`
	EntryPrice       int64  `json:"entry_price"`
	MarkPrice        int64  `json:"mark_price"`
	Leverage         int64  `json:"leverage"`
	InitialMargin    int64  `json:"initial_margin"`
	InitialMarginUSD int64  `json:"initial_margin_usd"`
	UnrealizedPnLUSD int64  `json:"unrealized_pnl_usd"`
	RealizedPnL      int64  `json:"realized_pnl"`
	RealizedFunding  int64  `json:"realized_funding"`
	RealizedBorrow   int64  `json:"realized_borrowing"`
	UpdatedAt        int64  `json:"updated_at"`
}

// Order is one pending instruction.
type Order struct {
	OrderID    uuid.UUID `json:"order_id"`
	Symbol     string    `json:"symbol"`
	MarginMode string    `json:"margin_mode"`
	Side       string    `json:"side"`
	Effect     string    `json:"effect"`
	Price      int64     `json:"price"`
	SizeUSD    int64     `json:"size_usd"`
	Margin     int64     `json:"margin"`
	Leverage   int64     `json:"leverage"`
	CreatedAt  int64     `json:"created_at"`
}

// Stake is one pool share balance with unvested-adjusted pending
// rewards.
type Stake struct {
	PoolID         string `json:"pool_id"`
	Shares         int64  `json:"shares"`
	PendingRewards int64  `json:"pending_rewards"`
}

// UserSummary is the full account view.
type UserSummary struct {
	UserID    uuid.UUID      `json:"user_id"`
	HoldUSD   int64          `json:"hold_usd"`
	Balances  []TokenBalance `json:"balances"`
	Positions []Position     `json:"positions"`
	Orders    []Order        `json:"orders"`
	Stakes    []Stake        `json:"stakes"`
}

// PoolSummary is the liquidity and rewards view of one pool.
type PoolSummary struct {
	PoolID             string `json:"pool_id"`
	Name               string `json:"name"`
	Mint               string `json:"mint"`
	Stable             bool   `json:"stable"`
	Status             string `json:"status"`
	Amount             int64  `json:"amount"`
	HoldAmount         int64  `json:"hold_amount"`
	UnsettledAmount    int64  `json:"unsettled_amount"`
	LossAmount         int64  `json:"loss_amount"`
	InsuranceFund      int64  `json:"insurance_fund"`
	AvailableLiquidity int64  `json:"available_liquidity"`
	Utilization        int64  `json:"utilization"`
	TotalSupply        int64  `json:"total_supply"`
	PendingFees        int64  `json:"pending_fees"`
	PendingDaoFees     int64  `json:"pending_dao_fees"`
}

// OpenInterest is one side's aggregate book.
type OpenInterest struct {
	SizeUSD       int64 `json:"size_usd"`
	AvgEntryPrice int64 `json:"avg_entry_price"`
}

// MarketSummary is the trading view of one symbol.
type MarketSummary struct {
	Symbol          string       `json:"symbol"`
	IndexPrice      int64        `json:"index_price"`
	LongOI          OpenInterest `json:"long_open_interest"`
	ShortOI         OpenInterest `json:"short_open_interest"`
	LongHourlyRate  int64        `json:"long_hourly_rate"`
	ShortHourlyRate int64        `json:"short_hourly_rate"`
	StableLoss      int64        `json:"stable_loss"`
}

// LiquidationRecord is one forced close read back from projections.
type LiquidationRecord struct {
	UserID       uuid.UUID `json:"user_id"`
	Symbol       string    `json:"symbol"`
	MarginMode   string    `json:"margin_mode"`
	Size         int64     `json:"size"`
	ExecutePrice int64     `json:"execute_price"`
	InsuranceIn  int64     `json:"insurance_in"`
	ObservedAt   int64     `json:"observed_at"` // unix seconds
}
