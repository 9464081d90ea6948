// Package bus provides the command queue and event fan-out between
// dashboard connections, the chat session and the dispatcher.
//
// Inbound commands are consumed by exactly one dispatcher goroutine, which
// makes it the single writer of all shared state. Outbound events are
// delivered to subscribers in publish order.
package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Command origins.
const (
	SourceConn    = "conn"
	SourceSession = "session"
	SourceTimer   = "timer"
)

// Command is a unit of work for the dispatcher.
type Command struct {
	Name      string          `json:"name"`
	Source    string          `json:"source"`
	ConnID    string          `json:"conn_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Data      any             `json:"-"`
	Timestamp time.Time       `json:"timestamp"`
}

// Event is an outbound notification. An empty Target means every
// connection; otherwise only the connection with that id receives it.
type Event struct {
	Name      string    `json:"event"`
	Target    string    `json:"-"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"-"`
}

// AllEvents subscribes to every event name.
const AllEvents = "*"

// MessageBus decouples connections and the session from the dispatcher.
type MessageBus struct {
	inbound  chan *Command
	outbound chan *Event
	subs     map[string][]func(*Event)
	running  bool
	mu       sync.RWMutex
}

// NewMessageBus creates a new message bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan *Command, 100),
		outbound: make(chan *Event, 256),
		subs:     make(map[string][]func(*Event)),
	}
}

// PublishInbound queues a command for the dispatcher.
func (b *MessageBus) PublishInbound(cmd *Command) {
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	b.inbound <- cmd
}

// ConsumeInbound blocks until a command is available or context is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (*Command, error) {
	select {
	case cmd := <-b.inbound:
		return cmd, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PublishOutbound queues an event for subscribers.
func (b *MessageBus) PublishOutbound(evt *Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.outbound <- evt
}

// Subscribe registers a callback for events named name, or for all events
// when name is AllEvents.
func (b *MessageBus) Subscribe(name string, callback func(*Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[name] = append(b.subs[name], callback)
}

// DispatchOutbound runs the outbound event dispatcher.
// This should be run as a goroutine.
func (b *MessageBus) DispatchOutbound(ctx context.Context) error {
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-b.outbound:
			b.mu.RLock()
			callbacks := append([]func(*Event){}, b.subs[evt.Name]...)
			callbacks = append(callbacks, b.subs[AllEvents]...)
			b.mu.RUnlock()

			for _, cb := range callbacks {
				cb(evt)
			}
		}
	}
}

// Running reports whether DispatchOutbound is active.
func (b *MessageBus) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// InboundSize returns the number of pending commands.
func (b *MessageBus) InboundSize() int {
	return len(b.inbound)
}

// OutboundSize returns the number of pending events.
func (b *MessageBus) OutboundSize() int {
	return len(b.outbound)
}
