// Package kafka publishes order events to Kafka.
package kafka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/marketplace/internal/domain/order"
)

const (
	eventOrderPlaced = "order.placed"
	eventVersion     = 1
	producerName     = "marketplace-api"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher writes order events keyed by order id, so every event of one
// order lands on the same partition.
type Publisher struct {
	w   messageWriter
	now func() time.Time
}

// NewPublisher returns a Publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			WriteTimeout:           5 * time.Second,
			AllowAutoTopicCreation: true,
		},
		now: time.Now,
	}
}

// OrderPlaced publishes an order.placed event for o.
func (p *Publisher) OrderPlaced(ctx context.Context, o *order.Order) error {
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(o.ID, 10)),
		Value: encodeOrderPlaced(uuid.NewString(), p.now(), o),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventOrderPlaced)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing order %d: %w", o.ID, err)
	}
	return nil
}

// Close flushes pending writes.
func (p *Publisher) Close() error {
	return p.w.Close()
}

func encodeOrderPlaced(eventID string, at time.Time, o *order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("event_id")
	e.Str(eventID)
	e.FieldStart("event_type")
	e.Str(eventOrderPlaced)
	e.FieldStart("version")
	e.Int(eventVersion)
	e.FieldStart("occurred_at")
	e.Str(at.UTC().Format(time.RFC3339Nano))
	e.FieldStart("producer")
	e.Str(producerName)

	e.FieldStart("payload")
	e.ObjStart()
	e.FieldStart("order_id")
	e.Int64(o.ID)
	e.FieldStart("buyer_id")
	e.Int64(o.BuyerID)
	e.FieldStart("seller_id")
	e.Int64(o.SellerID)
	e.FieldStart("total")
	e.Str(o.Total.StringFixed(2))
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(l.ProductID)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unit_price")
		e.Str(l.UnitPrice.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()

	e.ObjEnd()
	return e.Bytes()
}
