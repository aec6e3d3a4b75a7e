// Package engine implements the settlement and risk core: the
// position/margin lifecycle, funding and borrowing accrual, liquidation
// and ADL pricing, pool staking economics, and fee distribution.
//
// Each exported operation is one logical unit of work. The host
// guarantees serialized execution; when the store supports snapshots
// the engine rolls every record mutation of a failed operation back, so
// commits are all-or-nothing. The engine additionally orders its own
// steps so every validation precedes the first externally visible
// effect (a token transfer).
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"perpcore/internal/errs"
	"perpcore/internal/event"
	"perpcore/internal/fee"
	"perpcore/internal/fixed"
	"perpcore/internal/observability"
	"perpcore/internal/oracle"
	"perpcore/internal/state"
	"perpcore/internal/store"
	"perpcore/internal/vault"
)

// Vault account naming. One shared vault holds user internal balances;
// each pool has its own vault for liquidity and isolated margin.
const (
	VaultUserFunds = "vault:user-funds"
	VaultDao       = "vault:dao"
)

// PoolVault is the ledger account of a pool's vault.
func PoolVault(poolID string) string { return "vault:pool:" + poolID }

const (
	vaultAuthorityUser     = vault.AuthorityUser
	vaultAuthorityProtocol = vault.AuthorityProtocol
)

// UserAccount is the ledger account of a user's external wallet.
func UserAccount(id uuid.UUID) string { return "user:" + id.String() }

// Config wires an Engine.
type Config struct {
	Store   store.Store
	Oracle  oracle.PriceOracle
	Ledger  vault.TokenLedger
	Sink    event.Sink
	Params  *state.Params
	Metrics *observability.Metrics
	Logger  zerolog.Logger
	// Now returns the operation timestamp in unix seconds. Injectable
	// for tests; defaults to wall clock.
	Now func() int64
}

// transactionalStore is implemented by stores that can roll a failed
// operation back.
type transactionalStore interface {
	Snapshot() *store.MemoryStore
	Restore(*store.MemoryStore)
}

// Engine is the settlement core. Not safe for concurrent use; the host
// serializes operations.
type Engine struct {
	store   store.Store
	tx      transactionalStore
	oracle  oracle.PriceOracle
	ledger  vault.TokenLedger
	sink    event.Sink
	params  *state.Params
	metrics *observability.Metrics
	log     zerolog.Logger
	now     func() int64
}

func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil || cfg.Oracle == nil || cfg.Ledger == nil || cfg.Params == nil {
		return nil, errs.ErrInvalidParam
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	sink := cfg.Sink
	if sink == nil {
		sink = event.NopSink{}
	}
	now := cfg.Now
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	tx, _ := cfg.Store.(transactionalStore)
	return &Engine{
		store:   cfg.Store,
		tx:      tx,
		oracle:  cfg.Oracle,
		ledger:  cfg.Ledger,
		sink:    sink,
		params:  cfg.Params,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
		now:     now,
	}, nil
}

// apply wraps an operation with rollback, metrics and logging. A
// snapshot taken before the operation is restored on any error, so a
// rejection partway through an operation discards every record
// mutation made up to that point.
func (e *Engine) apply(op string, fn func() error) error {
	start := time.Now()
	var snap *store.MemoryStore
	if e.tx != nil {
		snap = e.tx.Snapshot()
	}
	err := fn()
	if err != nil && e.tx != nil {
		e.tx.Restore(snap)
	}
	if e.metrics != nil {
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			e.metrics.OpsRejected.WithLabelValues(op, errs.CodeOf(err).String()).Inc()
		} else {
			e.metrics.OpsApplied.WithLabelValues(op).Inc()
		}
	}
	if err != nil {
		e.log.Debug().Err(err).Str("op", op).Msg("operation rejected")
	}
	return err
}

// tokenPrice resolves a trade token's oracle price.
func (e *Engine) tokenPrice(t *state.TradeToken) (int64, error) {
	p, err := e.oracle.PriceOf(t.OracleKey, e.now(), e.params.MaxPriceAgeSeconds)
	if err != nil {
		return 0, err
	}
	return p.Price, nil
}

// accrueMarket runs funding for the market and borrowing for both of
// its pools. Accrual is gated on each record's own update cursor, so a
// second call inside the same operation is a no-op and a shared
// resource is never double-charged.
func (e *Engine) accrueMarket(m *state.Market, basePool, stablePool *state.Pool) error {
	now := e.now()
	delta, err := fee.UpdateMarketFunding(m, e.params, now)
	if err != nil {
		return err
	}
	if delta.LongPerSize != 0 || delta.ShortPerSize != 0 {
		if e.metrics != nil {
			e.metrics.FundingUpdates.WithLabelValues(m.Symbol).Inc()
		}
		e.sink.Publish(event.FundingUpdate{
			Symbol:          m.Symbol,
			LongPerSize:     delta.LongPerSize,
			ShortPerSize:    delta.ShortPerSize,
			LongHourlyRate:  m.FundingFee.LongHourlyRate,
			ShortHourlyRate: m.FundingFee.ShortHourlyRate,
		})
	}
	for _, p := range []*state.Pool{basePool, stablePool} {
		if p == nil {
			continue
		}
		d, err := fee.UpdatePoolBorrowing(p, now)
		if err != nil {
			return err
		}
		if d != 0 {
			if e.metrics != nil {
				e.metrics.BorrowingUpdates.WithLabelValues(p.ID).Inc()
			}
			util, _ := p.Utilization()
			e.sink.Publish(event.BorrowingUpdate{
				PoolID:      p.ID,
				PerToken:    p.BorrowingFee.CumulativePerToken,
				Utilization: util,
			})
		}
	}
	return nil
}

// marketPools loads the base and stable pools of a market.
func (e *Engine) marketPools(m *state.Market) (basePool, stablePool *state.Pool, err error) {
	basePool, err = e.store.Pool(m.PoolID)
	if err != nil {
		return nil, nil, err
	}
	stablePool, err = e.store.Pool(m.StablePoolID)
	if err != nil {
		return nil, nil, err
	}
	return basePool, stablePool, nil
}

// availableValueUSD is the user's free collateral value: discounted
// unpledged balances, minus liability at its liquidation premium, minus
// the portfolio hold.
func (e *Engine) availableValueUSD(u *state.User) (int64, error) {
	total, err := e.collateralValueUSD(u, true)
	if err != nil {
		return 0, err
	}
	return fixed.Sub(total, u.Hold)
}

// netValueUSD is the user's total collateral value including pledged
// balances, used for cross-margin solvency.
func (e *Engine) netValueUSD(u *state.User) (int64, error) {
	return e.collateralValueUSD(u, false)
}

func (e *Engine) collateralValueUSD(u *state.User, freeOnly bool) (int64, error) {
	var total int64
	for i := range u.Tokens {
		t := &u.Tokens[i]
		if t.Status != state.SlotUsing {
			continue
		}
		tt, err := e.store.TradeToken(t.Mint)
		if err != nil {
			return 0, err
		}
		price, err := e.tokenPrice(tt)
		if err != nil {
			return 0, err
		}
		amount := t.Amount
		if freeOnly {
			amount = t.Available()
		}
		if amount > 0 {
			usd, err := fixed.TokenToUSD(amount, price, tt.Decimals)
			if err != nil {
				return 0, err
			}
			if usd, err = fixed.MulRate(usd, tt.Discount); err != nil {
				return 0, err
			}
			if total, err = fixed.Add(total, usd); err != nil {
				return 0, err
			}
		}
		if t.Liability > 0 {
			usd, err := fixed.TokenToUSD(t.Liability, price, tt.Decimals)
			if err != nil {
				return 0, err
			}
			if usd, err = fixed.MulRate(usd, tt.LiquidationFactor); err != nil {
				return 0, err
			}
			if total, err = fixed.Sub(total, usd); err != nil {
				return 0, err
			}
		}
	}
	return total, nil
}

// updatePoolGauges refreshes per-pool metric gauges.
func (e *Engine) updatePoolGauges(p *state.Pool) {
	if e.metrics == nil {
		return
	}
	e.metrics.PoolLiquidity.WithLabelValues(p.ID).Set(float64(p.Balance.Amount))
	e.metrics.PoolHoldAmount.WithLabelValues(p.ID).Set(float64(p.Balance.HoldAmount))
	e.metrics.InsuranceFund.WithLabelValues(p.ID).Set(float64(p.InsuranceFundAmount))
}

// updateMarketGauges refreshes per-market metric gauges.
func (e *Engine) updateMarketGauges(m *state.Market) {
	if e.metrics == nil {
		return
	}
	e.metrics.MarketLongOI.WithLabelValues(m.Symbol).Set(float64(m.LongOpenInterest.Size))
	e.metrics.MarketShortOI.WithLabelValues(m.Symbol).Set(float64(m.ShortOpenInterest.Size))
	e.metrics.StableLossAmount.WithLabelValues(m.Symbol).Set(float64(m.StableLoss))
}
