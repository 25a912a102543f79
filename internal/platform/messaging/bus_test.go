package messaging

import (
	"context"
	"testing"
	"time"

	"concord/contexts/community-governance/assembly-engine/adapters/memory"
	"concord/contexts/community-governance/assembly-engine/ports"
)

func TestBusDeliversToSubscribedTopic(t *testing.T) {
	bus := NewBus(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan ports.EventEnvelope, 1)
	if err := bus.Subscribe(ctx, "assembly.closed", "projector", func(_ context.Context, event ports.EventEnvelope) error {
		received <- event
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	want := ports.EventEnvelope{
		EventID:   "event-1",
		EventType: "assembly.closed",
	}
	if err := bus.Publish(ctx, "assembly.closed", want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got.EventID != want.EventID {
			t.Fatalf("event id = %s, want %s", got.EventID, want.EventID)
		}
	case <-time.After(time.Second):
		t.Fatalf("event never delivered")
	}
}

func TestBusSkipsDuplicateDeliveries(t *testing.T) {
	bus := NewBus(memory.NewStore(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan ports.EventEnvelope, 2)
	if err := bus.Subscribe(ctx, "assembly.closed", "projector", func(_ context.Context, event ports.EventEnvelope) error {
		received <- event
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	event := ports.EventEnvelope{
		EventID:   "event-1",
		EventType: "assembly.closed",
		Data:      []byte(`{"assembly_id":"assembly-1"}`),
	}
	for i := 0; i < 2; i++ {
		if err := bus.Publish(ctx, "assembly.closed", event); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatalf("event never delivered")
	}
	select {
	case extra := <-received:
		t.Fatalf("redelivered event reached handler: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusIgnoresOtherTopics(t *testing.T) {
	bus := NewBus(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan ports.EventEnvelope, 1)
	if err := bus.Subscribe(ctx, "assembly.created", "projector", func(_ context.Context, event ports.EventEnvelope) error {
		received <- event
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(ctx, "assembly.closed", ports.EventEnvelope{EventID: "event-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case event := <-received:
		t.Fatalf("unexpected delivery: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}
