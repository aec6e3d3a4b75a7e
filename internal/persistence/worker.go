package persistence

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"perpcore/internal/event"
)

// LogSink is an event.Sink that batches change rows into Postgres. The
// channel send is non-blocking: settlement never stalls on the database,
// and a full buffer drops the event (the authoritative records live in
// the store, not here).
type LogSink struct {
	writer       *ChangeLogWriter
	ch           chan event.Event
	batchSize    int
	flushTimeout time.Duration
	seq          atomic.Int64
	log          zerolog.Logger
}

func NewLogSink(db *sql.DB, batchSize int, flushTimeout time.Duration, log zerolog.Logger) *LogSink {
	if batchSize <= 0 {
		batchSize = 50
	}
	if flushTimeout <= 0 {
		flushTimeout = 10 * time.Millisecond
	}
	return &LogSink{
		writer:       NewChangeLogWriter(db),
		ch:           make(chan event.Event, batchSize*32),
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          log,
	}
}

func (s *LogSink) Publish(ev event.Event) {
	select {
	case s.ch <- ev:
	default:
		s.log.Warn().Str("kind", string(ev.EventKind())).Msg("change log buffer full, dropping")
	}
}

// Run drains the buffer, flushing when the batch is full or the flush
// timeout expires. Blocks until ctx is cancelled.
func (s *LogSink) Run(ctx context.Context) error {
	batch := make([]ChangeRow, 0, s.batchSize)
	timer := time.NewTimer(s.flushTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.writer.WriteBatch(ctx, batch); err != nil {
			s.log.Error().Err(err).Int("rows", len(batch)).Msg("change log flush failed")
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return ctx.Err()

		case ev := <-s.ch:
			row, err := EncodeEvent(s.seq.Add(1), ev, time.Now().UTC())
			if err != nil {
				s.log.Error().Err(err).Msg("encode change row")
				continue
			}
			batch = append(batch, row)
			if len(batch) >= s.batchSize {
				flush()
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(s.flushTimeout)
			}

		case <-timer.C:
			flush()
			timer.Reset(s.flushTimeout)
		}
	}
}
