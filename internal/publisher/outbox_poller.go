// Package publisher drains the transactional outbox into Kafka. Events
// are written to the outbox in the same transaction as the state change
// they describe, so order placement stays atomic while downstream
// consumers (payment, fulfilment) still hear about it.
package publisher

import (
	"context"
	"time"

	"github.com/fjod/go_shop/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const topic = "order-events"

// messageWriter is the slice of kafka.Writer the poller needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type OutboxPoller struct {
	tick      time.Duration
	batchSize int
	repo      repository.OutboxRepository
	writer    messageWriter
	log       *zap.Logger
}

func NewOutboxPoller(repo repository.OutboxRepository, log *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		tick:      time.Second,
		batchSize: 100,
		repo:      repo,
		writer:    w,
		log:       log,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if errPublish := p.publishToKafka(ctx, event); errPublish != nil {
			p.log.Error("failed to publish outbox event",
				zap.Int64("event_id", event.ID), zap.Error(errPublish))
			continue
		}

		if errMark := p.repo.MarkEventAsProcessed(ctx, event.ID); errMark != nil {
			p.log.Error("failed to mark outbox event processed",
				zap.Int64("event_id", event.ID), zap.Error(errMark))
			continue
		}
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id, keeps per-order ordering
		Value: event.Payload,             // already JSON from the database
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	return p.writer.WriteMessages(ctx, msg)
}
