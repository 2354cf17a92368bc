package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"storecart/internal/logger"
)

type Type string

const (
	CartCreated        Type = "cart.created"
	LineItemAdded      Type = "cart.line_item_added"
	LineItemQtyChanged Type = "cart.line_item_quantity_changed"
	LineItemRemoved    Type = "cart.line_item_removed"
	CartDeleted        Type = "cart.deleted"
	CartClaimed        Type = "cart.claimed"
	CartsExpired       Type = "cart.expired_batch"
)

const aggregateTypeCart = "cart"

// Event is the envelope published for every cart change.
type Event struct {
	ID            string                 `json:"event_id"`
	Type          Type                   `json:"event_type"`
	AggregateID   string                 `json:"aggregate_id"`
	AggregateType string                 `json:"aggregate_type"`
	StoreID       string                 `json:"store_id"`
	OccurredAt    time.Time              `json:"occurred_at"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

// New builds a cart event with a fresh id and timestamp.
func New(t Type, cartID, storeID string, data map[string]interface{}) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          t,
		AggregateID:   cartID,
		AggregateType: aggregateTypeCart,
		StoreID:       storeID,
		OccurredAt:    time.Now().UTC(),
		Data:          data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one topic keyed by cart id, so all events
// of a cart land on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewKafka(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger.OrNop(log).Named("events")}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := message(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish event failed",
			zap.String("topic", p.topic),
			zap.String("event_type", string(e.Type)),
			zap.Error(err),
		)
		return fmt.Errorf("publish %s to %s: %w", e.Type, p.topic, err)
	}
	p.logger.Debug("event published", zap.String("event_type", string(e.Type)), zap.String("cart_id", e.AggregateID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func message(e Event) (kafka.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.AggregateID),
		Value: data,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
	}, nil
}

// Noop drops every event. Used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                        { return nil }
