// Package projection maintains queryable read models from engine
// events: funding and borrowing rate history, pool statistics and
// liquidation history in Postgres, plus an in-memory rate cache for
// the query service. Projections are eventually consistent and can be
// rebuilt from event_log.changes.
package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"perpcore/internal/event"
)

// Worker is an event.Sink that projects engine events into Postgres.
// Publish is non-blocking: a full buffer drops the event, since the
// tables can be rebuilt from the change log.
type Worker struct {
	db      *sql.DB
	ch      chan event.Event
	history *FundingHistory
	log     zerolog.Logger
}

func NewWorker(db *sql.DB, history *FundingHistory, log zerolog.Logger) *Worker {
	return &Worker{
		db:      db,
		ch:      make(chan event.Event, 1024),
		history: history,
		log:     log,
	}
}

func (w *Worker) Publish(ev event.Event) {
	select {
	case w.ch <- ev:
	default:
		w.log.Warn().Str("kind", string(ev.EventKind())).Msg("projection buffer full, dropping")
	}
}

// Run applies buffered events until ctx is cancelled. Apply failures
// are logged and skipped.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-w.ch:
			if err := w.apply(ctx, ev, time.Now().UTC()); err != nil {
				w.log.Warn().Err(err).Str("kind", string(ev.EventKind())).Msg("projection apply failed")
			}
		}
	}
}

func (w *Worker) apply(ctx context.Context, ev event.Event, at time.Time) error {
	switch e := ev.(type) {
	case event.FundingUpdate:
		if w.history != nil {
			w.history.Record(e, at)
		}
		_, err := w.db.ExecContext(ctx, `
			INSERT INTO projections.funding_rates
				(symbol, long_per_size, short_per_size, long_hourly_rate, short_hourly_rate, observed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, e.Symbol, e.LongPerSize, e.ShortPerSize, e.LongHourlyRate, e.ShortHourlyRate, at)
		return err

	case event.BorrowingUpdate:
		_, err := w.db.ExecContext(ctx, `
			INSERT INTO projections.borrowing_rates (pool_id, per_token, utilization, observed_at)
			VALUES ($1, $2, $3, $4)
		`, e.PoolID, e.PerToken, e.Utilization, at)
		return err

	case event.PoolChange:
		_, err := w.db.ExecContext(ctx, `
			INSERT INTO projections.pool_stats
				(pool_id, amount, hold_amount, unsettled, insurance_fund, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (pool_id) DO UPDATE SET
				amount = $2, hold_amount = $3, unsettled = $4, insurance_fund = $5, updated_at = $6
		`, e.PoolID, e.Amount, e.HoldAmount, e.Unsettled, e.InsuranceFund, at)
		return err

	case event.Liquidation:
		_, err := w.db.ExecContext(ctx, `
			INSERT INTO projections.liquidation_history
				(user_id, symbol, margin_mode, size, execute_price, insurance_in, observed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, e.UserID, e.Symbol, e.MarginMode, e.Size, e.ExecutePrice, e.InsuranceIn, at)
		return err

	case event.ADLExecution:
		_, err := w.db.ExecContext(ctx, `
			INSERT INTO projections.liquidation_history
				(user_id, symbol, margin_mode, size, execute_price, insurance_in, observed_at)
			VALUES ($1, $2, 'adl', $3, $4, 0, $5)
		`, e.UserID, e.Symbol, e.Size, e.ExecutePrice, at)
		return err
	}

	// Other kinds carry no projection.
	return nil
}

// Rebuild truncates the projection tables and replays event_log.changes
// through the same apply path.
func Rebuild(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	for _, stmt := range []string{
		`TRUNCATE projections.funding_rates`,
		`TRUNCATE projections.borrowing_rates`,
		`TRUNCATE projections.pool_stats`,
		`TRUNCATE projections.liquidation_history`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT kind, payload, timestamp FROM event_log.changes ORDER BY sequence
	`)
	if err != nil {
		return fmt.Errorf("read change log: %w", err)
	}
	defer rows.Close()

	w := &Worker{db: db, log: log}
	var replayed int
	for rows.Next() {
		var kind string
		var payload []byte
		var at time.Time
		if err := rows.Scan(&kind, &payload, &at); err != nil {
			return err
		}
		ev, err := decodeEvent(event.Kind(kind), payload)
		if err != nil {
			log.Warn().Err(err).Str("kind", kind).Msg("skipping undecodable change")
			continue
		}
		if ev == nil {
			continue
		}
		if err := w.apply(ctx, ev, at); err != nil {
			return fmt.Errorf("replay %s: %w", kind, err)
		}
		replayed++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	log.Info().Int("events", replayed).Msg("projection rebuild complete")
	return nil
}

func decodeEvent(kind event.Kind, payload []byte) (event.Event, error) {
	switch kind {
	case event.KindFundingUpdate:
		var e event.FundingUpdate
		return e, json.Unmarshal(payload, &e)
	case event.KindBorrowingUpdate:
		var e event.BorrowingUpdate
		return e, json.Unmarshal(payload, &e)
	case event.KindPoolChange:
		var e event.PoolChange
		return e, json.Unmarshal(payload, &e)
	case event.KindLiquidation:
		var e event.Liquidation
		return e, json.Unmarshal(payload, &e)
	case event.KindADLExecution:
		var e event.ADLExecution
		return e, json.Unmarshal(payload, &e)
	}
	return nil, nil
}
