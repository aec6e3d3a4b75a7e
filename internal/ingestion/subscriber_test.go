package ingestion_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"perpcore/internal/ingestion"
	"perpcore/internal/testutil"
)

func TestCommandStream_PublishSubscribeRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)

	nc, js, err := ingestion.ConnectNATS(testutil.TestNATSURL(), zerolog.Nop())
	if err != nil {
		t.Skipf("test nats not available: %v", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ingestion.EnsureCommandStream(ctx, js); err != nil {
		t.Fatal(err)
	}

	ch := make(chan ingestion.RawCommand, 16)
	sub := ingestion.NewSubscriber(js, ch, zerolog.Nop())
	if err := sub.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer sub.Stop()

	cmdID := uuid.New()
	pub := ingestion.NewCommandPublisher(js)
	err = pub.Publish(ctx, "deposit", map[string]any{
		"command_id": cmdID.String(),
		"user_id":    uuid.New().String(),
		"mint":       "usdc",
		"amount":     1_000_000,
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case raw := <-ch:
		if raw.Kind != "deposit" {
			t.Errorf("kind: got %q, want %q", raw.Kind, "deposit")
		}
		cmd, err := ingestion.ParseCommand(raw.Kind, raw.Data)
		if err != nil {
			t.Fatal(err)
		}
		if cmd.CommandID() != cmdID {
			t.Errorf("command id: got %s, want %s", cmd.CommandID(), cmdID)
		}
		raw.Ack()
	case <-ctx.Done():
		t.Fatal("no command delivered before timeout")
	}
}
