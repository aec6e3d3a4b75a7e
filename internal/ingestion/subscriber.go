package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// CommandStream is the JetStream stream carrying inbound commands.
// Subjects follow perp.core.cmd.{kind}.
const (
	CommandStream        = "PERP_CORE_CMDS"
	commandSubjectPrefix = "perp.core.cmd."
)

// RawCommand is a NATS message awaiting parse and dispatch. Kind is the
// subject suffix; Ack and Nak settle the JetStream delivery.
type RawCommand struct {
	Kind      string
	Data      []byte
	Timestamp time.Time
	Ack       func()
	Nak       func()
}

// Subscriber consumes the command stream and funnels messages into a
// single channel, preserving stream order for the dispatcher.
type Subscriber struct {
	js       jetstream.JetStream
	ch       chan<- RawCommand
	log      zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewSubscriber(js jetstream.JetStream, ch chan<- RawCommand, log zerolog.Logger) *Subscriber {
	return &Subscriber{js: js, ch: ch, log: log}
}

// Start creates the durable consumer. Explicit ACK with redelivery;
// the dispatcher's dedupe makes redelivered commands harmless.
func (s *Subscriber) Start(ctx context.Context) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, CommandStream, jetstream.ConsumerConfig{
		Durable:       "core-commands",
		FilterSubject: commandSubjectPrefix + ">",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create command consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		raw := RawCommand{
			Kind:      strings.TrimPrefix(msg.Subject(), commandSubjectPrefix),
			Data:      msg.Data(),
			Timestamp: time.Now(),
			Ack:       func() { _ = msg.Ack() },
			Nak:       func() { _ = msg.Nak() },
		}
		select {
		case s.ch <- raw:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume commands: %w", err)
	}
	s.consumer = cc
	s.log.Info().Str("stream", CommandStream).Msg("command subscriber started")
	return nil
}

// Stop drains the consumer.
func (s *Subscriber) Stop() {
	if s.consumer != nil {
		s.consumer.Stop()
	}
}

// EnsureCommandStream creates the inbound command stream.
func EnsureCommandStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      CommandStream,
		Subjects:  []string{commandSubjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create command stream: %w", err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream
// context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
