package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/PowerLink/internal/app/model"
)

// ClickPublisher publishes click events to NATS JetStream
type ClickPublisher struct {
	js nats.JetStreamContext
}

// NewClickPublisher creates a new click event publisher
func NewClickPublisher(js nats.JetStreamContext) *ClickPublisher {
	return &ClickPublisher{js: js}
}

// Append publishes the event. The event id doubles as the JetStream message
// id, so retried publishes are deduplicated by the stream.
func (p *ClickPublisher) Append(ctx context.Context, event *model.ClickEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode click event: %w", err)
	}

	msg := nats.NewMsg(model.ClickStreamSubject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, event.ID)

	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish click event: %w", err)
	}
	return nil
}
