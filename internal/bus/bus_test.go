package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestInboundIsFIFOAndStampsTime(t *testing.T) {
	b := NewMessageBus()
	b.PublishInbound(&Command{Name: "auth", Source: SourceConn, ConnID: "c1"})
	b.PublishInbound(&Command{Name: "login", Source: SourceConn, ConnID: "c1"})
	if b.InboundSize() != 2 {
		t.Fatalf("expected 2 pending, got %d", b.InboundSize())
	}

	ctx := context.Background()
	first, err := b.ConsumeInbound(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	second, _ := b.ConsumeInbound(ctx)
	if first.Name != "auth" || second.Name != "login" {
		t.Fatalf("unexpected order %s, %s", first.Name, second.Name)
	}
	if first.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}

func TestConsumeInboundHonorsCancel(t *testing.T) {
	b := NewMessageBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.ConsumeInbound(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDispatchOutboundRoutesByName(t *testing.T) {
	b := NewMessageBus()
	var mu sync.Mutex
	var logs, all []string
	done := make(chan struct{}, 8)
	b.Subscribe("log", func(e *Event) {
		mu.Lock()
		logs = append(logs, e.Name)
		mu.Unlock()
	})
	b.Subscribe(AllEvents, func(e *Event) {
		mu.Lock()
		all = append(all, e.Name)
		mu.Unlock()
		done <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.PublishOutbound(&Event{Name: "log", Data: "x"})
	b.PublishOutbound(&Event{Name: "statusUpdate", Data: nil})
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for dispatch")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(logs) != 1 {
		t.Fatalf("expected one log delivery, got %v", logs)
	}
	if len(all) != 2 || all[0] != "log" || all[1] != "statusUpdate" {
		t.Fatalf("expected ordered wildcard delivery, got %v", all)
	}
	if !b.Running() {
		t.Fatal("expected dispatcher running")
	}
}

func TestEventWireEnvelope(t *testing.T) {
	data, err := json.Marshal(&Event{Name: "authError", Target: "c1", Data: "Invalid password"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := string(data); got != `{"event":"authError","data":"Invalid password"}` {
		t.Fatalf("unexpected envelope %s", got)
	}
}
