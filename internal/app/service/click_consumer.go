package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hoplink/hoplink/internal/app/model"
	apprepository "github.com/hoplink/hoplink/internal/app/repository"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ClickConsumer drains the click stream into Postgres and signals the
// reconcile pool for each ingested link. Delivery is at-least-once; a
// replayed event keeps its original ID, and reconciliation recomputes
// rather than applies deltas, so duplicates cannot inflate counters
// permanently.
type ClickConsumer struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	repo   apprepository.ClickEventRepository
	pool   *ReconcilePool
}

// NewClickConsumer creates a click event consumer.
func NewClickConsumer(js nats.JetStreamContext, logger *zap.Logger, repo apprepository.ClickEventRepository, pool *ReconcilePool) *ClickConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickConsumer{js: js, logger: logger, repo: repo, pool: pool}
}

// Start provisions the stream and durable consumer, then begins pulling.
func (c *ClickConsumer) Start() error {
	_, err := c.js.StreamInfo(model.ClickStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.ClickStreamName,
			Subjects: []string{model.ClickStreamSubject},
			MaxBytes: model.ClickStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	_, err = c.js.ConsumerInfo(model.ClickStreamName, model.ClickConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.ClickStreamName, &nats.ConsumerConfig{
			Durable:   model.ClickConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.ClickStreamSubject, model.ClickConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(sub)
	return nil
}

// ingestStatus classifies one delivery: stored and duplicate both ack,
// failed naks for redelivery.
type ingestStatus int

const (
	ingestStored ingestStatus = iota
	ingestDuplicate
	ingestFailed
)

func (c *ClickConsumer) consume(sub *nats.Subscription) {
	ctx := context.Background()
	for {
		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && err != nats.ErrTimeout {
			c.logger.Error("failed to fetch messages", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			if c.ingest(ctx, msg.Data) == ingestFailed {
				msg.Nak()
				continue
			}
			msg.Ack()
		}
	}
}

// ingest stores one delivery and signals reconciliation. A duplicate
// event ID means the event landed on a previous delivery whose ack was
// lost; redeliveries of it must be acked, never retried, or the message
// poisons the consumer.
func (c *ClickConsumer) ingest(ctx context.Context, data []byte) ingestStatus {
	var event model.ClickEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logger.Error("failed to unmarshal click event", zap.Error(err))
		return ingestFailed
	}

	if err := c.repo.Create(ctx, &event); err != nil {
		if errors.Is(err, apprepository.ErrDuplicateEvent) {
			c.logger.Debug("click event already ingested",
				zap.String("id", event.ID),
				zap.String("link_id", event.LinkID))
			return ingestDuplicate
		}
		c.logger.Error("failed to store click event",
			zap.String("id", event.ID),
			zap.String("link_id", event.LinkID),
			zap.Error(err))
		return ingestFailed
	}

	// Fire-and-forget reconcile signal. A full queue just means
	// the periodic sweep picks this link up instead.
	if c.pool != nil {
		if !c.pool.TryEnqueue(event.LinkID) {
			c.logger.Warn("reconcile queue full, deferring to sweep",
				zap.String("link_id", event.LinkID))
		}
	}

	c.logger.Debug("click event stored",
		zap.String("id", event.ID),
		zap.String("link_id", event.LinkID),
		zap.Time("timestamp", event.Timestamp),
	)

	return ingestStored
}
