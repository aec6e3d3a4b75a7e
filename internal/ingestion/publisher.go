package ingestion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// CommandPublisher submits commands to the inbound stream. Used by
// keeper jobs and operational tooling; trading front-ends publish the
// same subjects directly.
type CommandPublisher struct {
	js jetstream.JetStream
}

func NewCommandPublisher(js jetstream.JetStream) *CommandPublisher {
	return &CommandPublisher{js: js}
}

// Publish marshals payload and publishes it under the kind's subject.
// The payload must carry a command_id for dedupe.
func (p *CommandPublisher) Publish(ctx context.Context, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s command: %w", kind, err)
	}
	if _, err := p.js.Publish(ctx, commandSubjectPrefix+kind, data); err != nil {
		return fmt.Errorf("publish %s command: %w", kind, err)
	}
	return nil
}
