// Package eventsink mirrors dashboard events to an external stream.
package eventsink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/KafClaw/rpcdash/internal/bus"
)

// Record is the JSON value written for each mirrored event.
type Record struct {
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives every broadcast event.
type Sink interface {
	Publish(ctx context.Context, evt *bus.Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, *bus.Event) error { return nil }
func (Nop) Close() error                              { return nil }

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes events to a topic, keyed by event name.
type Kafka struct {
	w     messageWriter
	topic string
}

// NewKafka returns a sink producing to topic on brokers. Writes are
// asynchronous; delivery failures are logged, never returned.
func NewKafka(brokers []string, topic string) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				slog.Warn("Event sink delivery failed", "topic", topic, "messages", len(messages), "error", err)
			}
		},
	}
	return &Kafka{w: w, topic: topic}
}

// Publish encodes evt and hands it to the writer.
func (k *Kafka) Publish(ctx context.Context, evt *bus.Event) error {
	value, err := json.Marshal(Record{Event: evt.Name, Data: evt.Data, Timestamp: evt.Timestamp})
	if err != nil {
		return fmt.Errorf("encode event %s: %w", evt.Name, err)
	}
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(evt.Name),
		Value:   value,
		Headers: []kafka.Header{{Key: "source", Value: []byte("rpcdash")}},
		Time:    evt.Timestamp,
	})
}

// Close flushes pending messages.
func (k *Kafka) Close() error {
	return k.w.Close()
}

// Attach subscribes s to every broadcast event on b. Connection-targeted
// replies are not mirrored.
func Attach(b *bus.MessageBus, s Sink) {
	b.Subscribe(bus.AllEvents, func(evt *bus.Event) {
		if evt.Target != "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Publish(ctx, evt); err != nil {
			slog.Warn("Event sink publish failed", "event", evt.Name, "error", err)
		}
	})
}
