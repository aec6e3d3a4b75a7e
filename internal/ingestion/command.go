// Package ingestion feeds externally submitted commands into the
// settlement engine. NATS JetStream is the transport: each command kind
// has its own subject, the subscriber funnels raw messages into a
// single channel, and the dispatcher applies them to the engine one at
// a time so settlement stays strictly sequential.
package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"perpcore/internal/engine"
	"perpcore/internal/state"
)

// Command is a parsed, validated instruction for the engine. The id is
// assigned by the producer and used for redelivery deduplication.
type Command interface {
	CommandKind() string
	CommandID() uuid.UUID
}

type DepositCommand struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Mint   string
	Amount int64
}

func (c DepositCommand) CommandKind() string { return "deposit" }
func (c DepositCommand) CommandID() uuid.UUID { return c.ID }

type WithdrawCommand struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Mint   string
	Amount int64
}

func (c WithdrawCommand) CommandKind() string { return "withdraw" }
func (c WithdrawCommand) CommandID() uuid.UUID { return c.ID }

type PlaceOrderCommand struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Params engine.OrderParams
}

func (c PlaceOrderCommand) CommandKind() string { return "place_order" }
func (c PlaceOrderCommand) CommandID() uuid.UUID { return c.ID }

type CancelOrderCommand struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	OrderID uuid.UUID
}

func (c CancelOrderCommand) CommandKind() string { return "cancel_order" }
func (c CancelOrderCommand) CommandID() uuid.UUID { return c.ID }

type ExecuteOrderCommand struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	OrderID uuid.UUID
}

func (c ExecuteOrderCommand) CommandKind() string { return "execute_order" }
func (c ExecuteOrderCommand) CommandID() uuid.UUID { return c.ID }

type AddMarginCommand struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Symbol string
	Amount int64
}

func (c AddMarginCommand) CommandKind() string { return "add_margin" }
func (c AddMarginCommand) CommandID() uuid.UUID { return c.ID }

type UpdateLeverageCommand struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Symbol   string
	Mode     state.MarginMode
	Leverage int64
}

func (c UpdateLeverageCommand) CommandKind() string { return "update_leverage" }
func (c UpdateLeverageCommand) CommandID() uuid.UUID { return c.ID }

type LiquidateIsolatedCommand struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Symbol string
}

func (c LiquidateIsolatedCommand) CommandKind() string { return "liquidate_isolated" }
func (c LiquidateIsolatedCommand) CommandID() uuid.UUID { return c.ID }

type LiquidateCrossCommand struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (c LiquidateCrossCommand) CommandKind() string { return "liquidate_cross" }
func (c LiquidateCrossCommand) CommandID() uuid.UUID { return c.ID }

type ExecuteADLCommand struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Symbol string
	Mode   state.MarginMode
	Size   int64
	Price  int64
}

func (c ExecuteADLCommand) CommandKind() string { return "execute_adl" }
func (c ExecuteADLCommand) CommandID() uuid.UUID { return c.ID }

type StakeCommand struct {
	ID     uuid.UUID
	UserID uuid.UUID
	PoolID string
	Amount int64
}

func (c StakeCommand) CommandKind() string { return "stake" }
func (c StakeCommand) CommandID() uuid.UUID { return c.ID }

type UnStakeCommand struct {
	ID     uuid.UUID
	UserID uuid.UUID
	PoolID string
	Shares int64
}

func (c UnStakeCommand) CommandKind() string { return "unstake" }
func (c UnStakeCommand) CommandID() uuid.UUID { return c.ID }

type CollectPoolFeesCommand struct {
	ID     uuid.UUID
	PoolID string
}

func (c CollectPoolFeesCommand) CommandKind() string { return "collect_pool_fees" }
func (c CollectPoolFeesCommand) CommandID() uuid.UUID { return c.ID }

type CollectRewardsCommand struct {
	ID     uuid.UUID
	UserID uuid.UUID
	PoolID string
}

func (c CollectRewardsCommand) CommandKind() string { return "collect_rewards" }
func (c CollectRewardsCommand) CommandID() uuid.UUID { return c.ID }

type AutoCompoundCommand struct {
	ID     uuid.UUID
	UserID uuid.UUID
	PoolID string
}

func (c AutoCompoundCommand) CommandKind() string { return "auto_compound" }
func (c AutoCompoundCommand) CommandID() uuid.UUID { return c.ID }

type RebalanceCommand struct {
	ID     uuid.UUID
	Symbol string
}

func (c RebalanceCommand) CommandKind() string { return "rebalance" }
func (c RebalanceCommand) CommandID() uuid.UUID { return c.ID }

// ParseCommand converts a raw payload into a typed command. Field names
// use snake_case to match upstream producers.
func ParseCommand(kind string, data []byte) (Command, error) {
	switch kind {
	case "deposit":
		return parseDeposit(data)
	case "withdraw":
		return parseWithdraw(data)
	case "place_order":
		return parsePlaceOrder(data)
	case "cancel_order":
		return parseCancelOrder(data)
	case "execute_order":
		return parseExecuteOrder(data)
	case "add_margin":
		return parseAddMargin(data)
	case "update_leverage":
		return parseUpdateLeverage(data)
	case "liquidate_isolated":
		return parseLiquidateIsolated(data)
	case "liquidate_cross":
		return parseLiquidateCross(data)
	case "execute_adl":
		return parseExecuteADL(data)
	case "stake":
		return parseStake(data)
	case "unstake":
		return parseUnStake(data)
	case "collect_pool_fees":
		return parseCollectPoolFees(data)
	case "collect_rewards":
		return parseCollectRewards(data)
	case "auto_compound":
		return parseAutoCompound(data)
	case "rebalance":
		return parseRebalance(data)
	default:
		return nil, fmt.Errorf("unknown command kind: %s", kind)
	}
}

// --- JSON wire formats ---

type transferJSON struct {
	CommandID string `json:"command_id"`
	UserID    string `json:"user_id"`
	Mint      string `json:"mint"`
	Amount    int64  `json:"amount"`
}

func parseDeposit(data []byte) (Command, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse deposit: %w", err)
	}
	id, userID, err := parseIDs(j.CommandID, j.UserID)
	if err != nil {
		return nil, err
	}
	return DepositCommand{ID: id, UserID: userID, Mint: j.Mint, Amount: j.Amount}, nil
}

func parseWithdraw(data []byte) (Command, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse withdraw: %w", err)
	}
	id, userID, err := parseIDs(j.CommandID, j.UserID)
	if err != nil {
		return nil, err
	}
	return WithdrawCommand{ID: id, UserID: userID, Mint: j.Mint, Amount: j.Amount}, nil
}

type placeOrderJSON struct {
	CommandID  string `json:"command_id"`
	UserID     string `json:"user_id"`
	Symbol     string `json:"symbol"`
	MarginMode string `json:"margin_mode"` // "isolated" or "portfolio"
	Side       string `json:"side"`        // "long" or "short"
	Effect     string `json:"effect"`      // "increase" or "decrease"
	OrderType  string `json:"order_type"`  // "market", "limit", "stop"
	StopKind   string `json:"stop_kind"`   // "", "stop_loss", "take_profit"
	Price      int64  `json:"price"`
	Size       int64  `json:"size"`
	Margin     int64  `json:"margin"`
	Leverage   int64  `json:"leverage"`
}

func parsePlaceOrder(data []byte) (Command, error) {
	var j placeOrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse place_order: %w", err)
	}
	id, userID, err := parseIDs(j.CommandID, j.UserID)
	if err != nil {
		return nil, err
	}
	mode, err := parseMarginMode(j.MarginMode)
	if err != nil {
		return nil, err
	}
	side, err := parseSide(j.Side)
	if err != nil {
		return nil, err
	}
	effect, err := parseEffect(j.Effect)
	if err != nil {
		return nil, err
	}
	orderType, err := parseOrderType(j.OrderType)
	if err != nil {
		return nil, err
	}
	stopKind, err := parseStopKind(j.StopKind)
	if err != nil {
		return nil, err
	}
	return PlaceOrderCommand{
		ID:     id,
		UserID: userID,
		Params: engine.OrderParams{
			Symbol:     j.Symbol,
			MarginMode: mode,
			Side:       side,
			Effect:     effect,
			OrderType:  orderType,
			StopKind:   stopKind,
			Price:      j.Price,
			Size:       j.Size,
			Margin:     j.Margin,
			Leverage:   j.Leverage,
		},
	}, nil
}

type orderRefJSON struct {
	CommandID string `json:"command_id"`
	UserID    string `json:"user_id"`
	OrderID   string `json:"order_id"`
}

func parseCancelOrder(data []byte) (Command, error) {
	var j orderRefJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse cancel_order: %w", err)
	}
	id, userID, err := parseIDs(j.CommandID, j.UserID)
	if err != nil {
		return nil, err
	}
	orderID, err := uuid.Parse(j.OrderID)
	if err != nil {
		return nil, fmt.Errorf("parse order_id: %w", err)
	}
	return CancelOrderCommand{ID: id, UserID: userID, OrderID: orderID}, nil
}

func parseExecuteOrder(data []byte) (Command, error) {
	var j orderRefJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse execute_order: %w", err)
	}
	id, userID, err := parseIDs(j.CommandID, j.UserID)
	if err != nil {
		return nil, err
	}
	orderID, err := uuid.Parse(j.OrderID)
	if err != nil {
		return nil, fmt.Errorf("parse order_id: %w", err)
	}
	return ExecuteOrderCommand{ID: id, UserID: userID, OrderID: orderID}, nil
}

type addMarginJSON struct {
	CommandID string `json:"command_id"`
	UserID    string `json:"user_id"`
	Symbol    string `json:"symbol"`
	Amount    int64  `json:"amount"`
}

func parseAddMargin(data []byte) (Command, error) {
	var j addMarginJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse add_margin: %w", err)
	}
	id, userID, err := parseIDs(j.CommandID, j.UserID)
	if err != nil {
		return nil, err
	}
	return AddMarginCommand{ID: id, UserID: userID, Symbol: j.Symbol, Amount: j.Amount}, nil
}

type updateLeverageJSON struct {
	CommandID  string `json:"command_id"`
	UserID     string `json:"user_id"`
	Symbol     string `json:"symbol"`
	MarginMode string `json:"margin_mode"`
	Leverage   int64  `json:"leverage"`
}

func parseUpdateLeverage(data []byte) (Command, error) {
	var j updateLeverageJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse update_leverage: %w", err)
	}
	id, userID, err := parseIDs(j.CommandID, j.UserID)
	if err != nil {
		return nil, err
	}
	mode, err := parseMarginMode(j.MarginMode)
	if err != nil {
		return nil, err
	}
	return UpdateLeverageCommand{ID: id, UserID: userID, Symbol: j.Symbol, Mode: mode, Leverage: j.Leverage}, nil
}

type liquidateJSON struct {
	CommandID string `json:"command_id"`
	UserID    string `json:"user_id"`
	Symbol    string `json:"symbol"`
}

func parseLiquidateIsolated(data []byte) (Command, error) {
	var j liquidateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse liquidate_isolated: %w", err)
	}
	id, userID, err := parseIDs(j.CommandID, j.UserID)
	if err != nil {
		return nil, err
	}
	return LiquidateIsolatedCommand{ID: id, UserID: userID, Symbol: j.Symbol}, nil
}

func parseLiquidateCross(data []byte) (Command, error) {
	var j liquidateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse liquidate_cross: %w", err)
	}
	id, userID, err := parseIDs(j.CommandID, j.UserID)
	if err != nil {
		return nil, err
	}
	return LiquidateCrossCommand{ID: id, UserID: userID}, nil
}

type adlJSON struct {
	CommandID  string `json:"command_id"`
	UserID     string `json:"user_id"`
	Symbol     string `json:"symbol"`
	MarginMode string `json:"margin_mode"`
	Size       int64  `json:"size"`
	Price      int64  `json:"price"`
}

func parseExecuteADL(data []byte) (Command, error) {
	var j adlJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse execute_adl: %w", err)
	}
	id, userID, err := parseIDs(j.CommandID, j.UserID)
	if err != nil {
		return nil, err
	}
	mode, err := parseMarginMode(j.MarginMode)
	if err != nil {
		return nil, err
	}
	return ExecuteADLCommand{ID: id, UserID: userID, Symbol: j.Symbol, Mode: mode, Size: j.Size, Price: j.Price}, nil
}

type stakeJSON struct {
	CommandID string `json:"command_id"`
	UserID    string `json:"user_id"`
	PoolID    string `json:"pool_id"`
	Amount    int64  `json:"amount"`
	Shares    int64  `json:"shares"`
}

func parseStake(data []byte) (Command, error) {
	var j stakeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse stake: %w", err)
	}
	id, userID, err := parseIDs(j.CommandID, j.UserID)
	if err != nil {
		return nil, err
	}
	return StakeCommand{ID: id, UserID: userID, PoolID: j.PoolID, Amount: j.Amount}, nil
}

func parseUnStake(data []byte) (Command, error) {
	var j stakeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse unstake: %w", err)
	}
	id, userID, err := parseIDs(j.CommandID, j.UserID)
	if err != nil {
		return nil, err
	}
	return UnStakeCommand{ID: id, UserID: userID, PoolID: j.PoolID, Shares: j.Shares}, nil
}

type poolJSON struct {
	CommandID string `json:"command_id"`
	UserID    string `json:"user_id"`
	PoolID    string `json:"pool_id"`
}

func parseCollectPoolFees(data []byte) (Command, error) {
	var j poolJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse collect_pool_fees: %w", err)
	}
	id, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	return CollectPoolFeesCommand{ID: id, PoolID: j.PoolID}, nil
}

func parseCollectRewards(data []byte) (Command, error) {
	var j poolJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse collect_rewards: %w", err)
	}
	id, userID, err := parseIDs(j.CommandID, j.UserID)
	if err != nil {
		return nil, err
	}
	return CollectRewardsCommand{ID: id, UserID: userID, PoolID: j.PoolID}, nil
}

func parseAutoCompound(data []byte) (Command, error) {
	var j poolJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse auto_compound: %w", err)
	}
	id, userID, err := parseIDs(j.CommandID, j.UserID)
	if err != nil {
		return nil, err
	}
	return AutoCompoundCommand{ID: id, UserID: userID, PoolID: j.PoolID}, nil
}

type rebalanceJSON struct {
	CommandID string `json:"command_id"`
	Symbol    string `json:"symbol"`
}

func parseRebalance(data []byte) (Command, error) {
	var j rebalanceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse rebalance: %w", err)
	}
	id, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	return RebalanceCommand{ID: id, Symbol: j.Symbol}, nil
}

// --- field parsing helpers ---

func parseIDs(commandID, userID string) (uuid.UUID, uuid.UUID, error) {
	id, err := uuid.Parse(commandID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("parse command_id: %w", err)
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("parse user_id: %w", err)
	}
	return id, uid, nil
}

func parseMarginMode(s string) (state.MarginMode, error) {
	switch s {
	case "isolated":
		return state.MarginModeIsolated, nil
	case "portfolio":
		return state.MarginModePortfolio, nil
	}
	return 0, fmt.Errorf("unknown margin_mode: %q", s)
}

func parseSide(s string) (state.Side, error) {
	switch s {
	case "long":
		return state.SideLong, nil
	case "short":
		return state.SideShort, nil
	}
	return 0, fmt.Errorf("unknown side: %q", s)
}

func parseEffect(s string) (state.OrderEffect, error) {
	switch s {
	case "increase":
		return state.OrderEffectIncrease, nil
	case "decrease":
		return state.OrderEffectDecrease, nil
	}
	return 0, fmt.Errorf("unknown effect: %q", s)
}

func parseOrderType(s string) (state.OrderType, error) {
	switch s {
	case "market":
		return state.OrderTypeMarket, nil
	case "limit":
		return state.OrderTypeLimit, nil
	case "stop":
		return state.OrderTypeStop, nil
	}
	return 0, fmt.Errorf("unknown order_type: %q", s)
}

func parseStopKind(s string) (state.StopKind, error) {
	switch s {
	case "":
		return state.StopNone, nil
	case "stop_loss":
		return state.StopLoss, nil
	case "take_profit":
		return state.TakeProfit, nil
	}
	return 0, fmt.Errorf("unknown stop_kind: %q", s)
}
