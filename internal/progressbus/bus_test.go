package progressbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewBus(client), mr
}

func TestBus_PublishAndSubscribe(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()

	sub := bus.Subscribe(ctx, "job-1")
	defer sub.Close()

	// Give the subscription a moment to register with miniredis before
	// publishing, since Subscribe's underlying connection is asynchronous.
	time.Sleep(50 * time.Millisecond)

	published := Event{Event: EventProgress, Payload: map[string]interface{}{"stage": "parsing", "percent": float64(42)}}
	if err := bus.Publish(ctx, "job-1", published); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, err := sub.Next(ctx, 2*time.Second)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got == nil {
		t.Fatalf("expected an event, got nil (timeout)")
	}
	if got.Event != EventProgress {
		t.Errorf("Event = %v, want %v", got.Event, EventProgress)
	}
	if got.Payload["stage"] != "parsing" {
		t.Errorf("Payload[stage] = %v, want parsing", got.Payload["stage"])
	}
}

func TestSubscription_Next_TimesOutAsNilNil(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()
	sub := bus.Subscribe(ctx, "job-idle")
	defer sub.Close()

	event, err := sub.Next(ctx, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error on timeout: %v", err)
	}
	if event != nil {
		t.Errorf("expected nil event on timeout, got %+v", event)
	}
}

func TestBus_EventsScopedPerJobChannel(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()

	subA := bus.Subscribe(ctx, "job-a")
	defer subA.Close()
	time.Sleep(50 * time.Millisecond)

	if err := bus.Publish(ctx, "job-b", Event{Event: EventComplete, Payload: map[string]interface{}{}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	event, err := subA.Next(ctx, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event != nil {
		t.Errorf("expected job-a's subscription to not see job-b's event, got %+v", event)
	}
}
