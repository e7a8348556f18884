package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
	"github.com/sifan077/PowerLink/internal/infra/logger"
	metrics "github.com/sifan077/PowerLink/internal/infra/prometheus"
	"go.uber.org/zap"
)

const (
	consumerBatch   = 10
	consumerMaxWait = 5 * time.Second
)

type ackDecision int

const (
	ackMessage ackDecision = iota
	nakMessage
	termMessage
)

// EnsureClickStream creates the click stream and its durable consumer when missing.
func EnsureClickStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(model.ClickStreamName); err != nil {
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:       model.ClickStreamName,
			Subjects:   []string{model.ClickStreamSubject},
			MaxBytes:   model.ClickStreamMaxBytes,
			Duplicates: 2 * time.Minute,
		}); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	if _, err := js.ConsumerInfo(model.ClickStreamName, model.ClickConsumerName); err != nil {
		if _, err := js.AddConsumer(model.ClickStreamName, &nats.ConsumerConfig{
			Durable:   model.ClickConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		}); err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}
	return nil
}

// ClickConsumer consumes click events from NATS JetStream and stores them.
type ClickConsumer struct {
	js      nats.JetStreamContext
	store   ClickSink
	metrics *metrics.Metrics
	logger  *zap.Logger
	done    chan struct{}
}

// NewClickConsumer creates a new click event consumer
func NewClickConsumer(js nats.JetStreamContext, store ClickSink, m *metrics.Metrics, log *zap.Logger) *ClickConsumer {
	return &ClickConsumer{
		js:      js,
		store:   store,
		metrics: m,
		logger:  logger.Component(log, "click_consumer"),
		done:    make(chan struct{}),
	}
}

// Start subscribes and consumes until ctx is cancelled.
func (c *ClickConsumer) Start(ctx context.Context) error {
	if err := EnsureClickStream(c.js); err != nil {
		return err
	}

	sub, err := c.js.PullSubscribe(model.ClickStreamSubject, model.ClickConsumerName, nats.Bind(model.ClickStreamName, model.ClickConsumerName))
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(ctx, sub)
	return nil
}

// Done is closed once the consume loop has exited.
func (c *ClickConsumer) Done() <-chan struct{} {
	return c.done
}

func (c *ClickConsumer) consume(ctx context.Context, sub *nats.Subscription) {
	defer close(c.done)
	defer func() { _ = sub.Unsubscribe() }()

	for ctx.Err() == nil {
		msgs, err := sub.Fetch(consumerBatch, nats.MaxWait(consumerMaxWait))
		if err != nil && !errors.Is(err, nats.ErrTimeout) {
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				c.logger.Warn("click consumer stopped", zap.Error(err))
				return
			}
			c.logger.Error("failed to fetch messages", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			var ackErr error
			switch c.process(ctx, msg.Data) {
			case ackMessage:
				ackErr = msg.Ack()
			case termMessage:
				ackErr = msg.Term()
			default:
				ackErr = msg.Nak()
			}
			if ackErr != nil {
				c.logger.Warn("failed to acknowledge click event", zap.Error(ackErr))
			}
		}
	}
	c.logger.Info("click consumer stopped")
}

func (c *ClickConsumer) process(ctx context.Context, data []byte) ackDecision {
	var event model.ClickEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logger.Error("failed to unmarshal click event", zap.Error(err))
		return termMessage
	}

	err := c.store.Append(ctx, &event)
	c.metrics.ClickRecorded(err)
	switch {
	case err == nil:
		c.logger.Debug("click event stored",
			zap.String("event_id", event.ID),
			zap.String("link_id", event.LinkID),
			zap.Time("timestamp", event.Timestamp),
		)
		return ackMessage
	case errors.Is(err, repository.ErrLinkNotFound):
		c.logger.Info("click dropped for deleted link",
			zap.String("event_id", event.ID),
			zap.String("link_id", event.LinkID),
		)
		return ackMessage
	default:
		c.logger.Error("failed to store click event, will be redelivered",
			zap.String("event_id", event.ID),
			zap.String("link_id", event.LinkID),
			zap.Error(err),
		)
		return nakMessage
	}
}
