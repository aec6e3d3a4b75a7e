package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSSink publishes engine events to a JetStream stream for downstream
// indexers. Subjects follow perp.core.events.{kind}. Publishing is
// asynchronous through a buffered channel; a full buffer drops the
// event rather than stalling settlement.
type NATSSink struct {
	js  jetstream.JetStream
	ch  chan Event
	log zerolog.Logger
}

func NewNATSSink(js jetstream.JetStream, buffer int, log zerolog.Logger) *NATSSink {
	if buffer <= 0 {
		buffer = 1024
	}
	return &NATSSink{
		js:  js,
		ch:  make(chan Event, buffer),
		log: log,
	}
}

func (s *NATSSink) Publish(ev Event) {
	select {
	case s.ch <- ev:
	default:
		s.log.Warn().Str("kind", string(ev.EventKind())).Msg("event buffer full, dropping")
	}
}

// Run drains the buffer until ctx is cancelled.
func (s *NATSSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.ch:
			if err := s.publish(ctx, ev); err != nil {
				// Non-fatal: indexers can reconcile from the event log.
				s.log.Warn().Err(err).Str("kind", string(ev.EventKind())).Msg("outbound publish failed")
			}
		}
	}
}

func (s *NATSSink) publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := fmt.Sprintf("perp.core.events.%s", ev.EventKind())
	_, err = s.js.Publish(ctx, subject, data)
	return err
}

// EnsureStream creates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "PERP_CORE_EVENTS",
		Subjects:  []string{"perp.core.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
