package ingestion

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"perpcore/internal/engine"
	"perpcore/internal/errs"
	"perpcore/internal/store"
)

// Dispatcher parses raw commands and applies them to the engine in
// arrival order. Engine rejections are deterministic, so every parsed
// command is ACKed whether it succeeded or not; re-running it would
// only fail the same way. Unparseable payloads are ACKed too — a poison
// message never converges through redelivery.
type Dispatcher struct {
	eng  *engine.Engine
	seen *Dedupe
	ch   <-chan RawCommand
	mu   *sync.RWMutex
	log  zerolog.Logger

	// State-hash checkpointing; see TrackStateHash.
	digester interface{ Digest() ([]byte, error) }
	chain    *store.HashChain
	interval int64
	applied  int64
}

func NewDispatcher(eng *engine.Engine, ch <-chan RawCommand, dedupeCapacity int, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		eng:  eng,
		seen: NewDedupe(dedupeCapacity),
		ch:   ch,
		log:  log,
	}
}

// Run consumes the channel until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-d.ch:
			if !ok {
				return nil
			}
			d.handle(raw)
		}
	}
}

func (d *Dispatcher) handle(raw RawCommand) {
	cmd, err := ParseCommand(raw.Kind, raw.Data)
	if err != nil {
		d.log.Warn().Err(err).Str("kind", raw.Kind).Msg("dropping unparseable command")
		raw.Ack()
		return
	}
	if d.seen.Seen(cmd.CommandID()) {
		raw.Ack()
		return
	}

	if err := d.Apply(cmd); err != nil {
		d.log.Info().
			Err(err).
			Str("kind", cmd.CommandKind()).
			Str("command_id", cmd.CommandID().String()).
			Str("code", errs.CodeOf(err).String()).
			Msg("command rejected")
	}
	d.seen.Mark(cmd.CommandID())
	raw.Ack()
}

// GuardState makes Apply hold mu for the duration of each operation.
// Readers of the same store take the read side.
func (d *Dispatcher) GuardState(mu *sync.RWMutex) {
	d.mu = mu
}

// TrackStateHash extends a hash chain over the store digest every
// interval applied commands. Two replicas consuming the same stream
// compare chain tips to confirm they settled identically.
func (d *Dispatcher) TrackStateHash(digester interface{ Digest() ([]byte, error) }, interval int64) {
	if interval <= 0 {
		interval = 256
	}
	d.digester = digester
	d.chain = store.NewHashChain()
	d.interval = interval
}

func (d *Dispatcher) checkpoint() {
	digest, err := d.digester.Digest()
	if err != nil {
		d.log.Error().Err(err).Msg("state digest failed")
		return
	}
	tip := d.chain.Extend(d.applied, digest)
	d.log.Info().
		Int64("applied", d.applied).
		Hex("state_hash", tip[:]).
		Msg("state checkpoint")
}

// Apply routes a typed command to its engine operation.
func (d *Dispatcher) Apply(cmd Command) error {
	if d.mu != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	err := d.apply(cmd)
	if err == nil && d.chain != nil {
		d.applied++
		if d.applied%d.interval == 0 {
			d.checkpoint()
		}
	}
	return err
}

func (d *Dispatcher) apply(cmd Command) error {
	switch c := cmd.(type) {
	case DepositCommand:
		return d.eng.Deposit(c.UserID, c.Mint, c.Amount)
	case WithdrawCommand:
		return d.eng.Withdraw(c.UserID, c.Mint, c.Amount)
	case PlaceOrderCommand:
		_, err := d.eng.PlaceOrder(c.UserID, c.Params)
		return err
	case CancelOrderCommand:
		return d.eng.CancelOrder(c.UserID, c.OrderID)
	case ExecuteOrderCommand:
		return d.eng.ExecuteOrder(c.UserID, c.OrderID)
	case AddMarginCommand:
		return d.eng.AddPositionMargin(c.UserID, c.Symbol, c.Amount)
	case UpdateLeverageCommand:
		return d.eng.UpdatePositionLeverage(c.UserID, c.Symbol, c.Mode, c.Leverage)
	case LiquidateIsolatedCommand:
		return d.eng.LiquidateIsolated(c.UserID, c.Symbol)
	case LiquidateCrossCommand:
		return d.eng.LiquidateCross(c.UserID)
	case ExecuteADLCommand:
		return d.eng.ExecuteADL(c.UserID, c.Symbol, c.Mode, c.Size, c.Price)
	case StakeCommand:
		return d.eng.Stake(c.UserID, c.PoolID, c.Amount)
	case UnStakeCommand:
		return d.eng.UnStake(c.UserID, c.PoolID, c.Shares)
	case CollectPoolFeesCommand:
		return d.eng.CollectPoolFees(c.PoolID)
	case CollectRewardsCommand:
		return d.eng.CollectRewards(c.UserID, c.PoolID)
	case AutoCompoundCommand:
		return d.eng.AutoCompound(c.UserID, c.PoolID)
	case RebalanceCommand:
		return d.eng.Rebalance(c.Symbol)
	}
	return errs.ErrInvalidParam
}
