package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recv(t *testing.T, ch <-chan []byte) Event {
	t.Helper()
	select {
	case raw, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed")
		}
		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func expectNone(t *testing.T, ch <-chan []byte) {
	t.Helper()
	select {
	case raw := <-ch:
		t.Fatalf("unexpected event: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func slotEvent(t *testing.T, evt Event) model.SlotEvent {
	t.Helper()
	var data model.SlotEvent
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	return data
}

func TestPublishReachesOnlyTopicSubscribers(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(quietLogger(), Options{})
	a := bus.Attach("a")
	b := bus.Attach("b")
	if err := bus.Subscribe("a", "clinic-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := bus.Subscribe("b", "clinic-2"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	bus.PublishSlotUpdate(ctx, "clinic-1", model.SlotEvent{TimeSlotID: "s1", IsAvailable: false, BookingID: "bk1"})

	evt := recv(t, a.Messages())
	if evt.Name != EventSlotUpdated || evt.ClinicID != "clinic-1" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if data := slotEvent(t, evt); data.TimeSlotID != "s1" || data.IsAvailable || data.BookingID != "bk1" {
		t.Fatalf("unexpected data: %+v", data)
	}
	expectNone(t, b.Messages())
}

func TestSubscribeIsIdempotentAndHasNoReplay(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(quietLogger(), Options{})
	bus.PublishSlotUpdate(ctx, "clinic-1", model.SlotEvent{TimeSlotID: "early"})

	sub := bus.Attach("a")
	for i := 0; i < 3; i++ {
		if err := bus.Subscribe("a", "clinic-1"); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}
	if got := bus.Subscribers("clinic-1"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}
	expectNone(t, sub.Messages())

	bus.PublishSlotUpdate(ctx, "clinic-1", model.SlotEvent{TimeSlotID: "late"})
	if data := slotEvent(t, recv(t, sub.Messages())); data.TimeSlotID != "late" {
		t.Fatalf("expected late event, got %+v", data)
	}
	expectNone(t, sub.Messages())
}

func TestUnsubscribeAndDetach(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(quietLogger(), Options{})
	sub := bus.Attach("a")
	if err := bus.Subscribe("a", "clinic-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	bus.Unsubscribe("a", "clinic-1")
	bus.Unsubscribe("a", "never-joined")
	bus.PublishSlotUpdate(ctx, "clinic-1", model.SlotEvent{TimeSlotID: "s1"})
	expectNone(t, sub.Messages())

	if err := bus.Subscribe("a", "clinic-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	bus.Detach("a")
	if _, ok := <-sub.Messages(); ok {
		t.Fatalf("expected closed channel after detach")
	}
	if bus.Connections() != 0 || bus.Subscribers("clinic-1") != 0 {
		t.Fatalf("expected empty bus, conns=%d subs=%d", bus.Connections(), bus.Subscribers("clinic-1"))
	}
	bus.Detach("a")
	bus.PublishSlotUpdate(ctx, "clinic-1", model.SlotEvent{TimeSlotID: "s2"})

	if err := bus.Subscribe("ghost", "clinic-1"); err != ErrUnknownConnection {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
}

func TestPublishPreservesOrder(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(quietLogger(), Options{Buffer: 16})
	sub := bus.Attach("a")
	_ = bus.Subscribe("a", "clinic-1")

	ids := []string{"s1", "s2", "s3", "s4"}
	for _, id := range ids {
		bus.PublishSlotUpdate(ctx, "clinic-1", model.SlotEvent{TimeSlotID: id})
	}
	for _, want := range ids {
		if got := slotEvent(t, recv(t, sub.Messages())).TimeSlotID; got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}

func TestSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(quietLogger(), Options{Buffer: 1})
	slow := bus.Attach("slow")
	fast := bus.Attach("fast")
	_ = bus.Subscribe("slow", "clinic-1")
	_ = bus.Subscribe("fast", "clinic-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		bus.PublishSlotUpdate(ctx, "clinic-1", model.SlotEvent{TimeSlotID: "s1"})
		<-fast.Messages()
		bus.PublishSlotUpdate(ctx, "clinic-1", model.SlotEvent{TimeSlotID: "s2"})
		<-fast.Messages()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}

	if got := slotEvent(t, recv(t, slow.Messages())).TimeSlotID; got != "s1" {
		t.Fatalf("expected s1 kept, got %s", got)
	}
	expectNone(t, slow.Messages())
}

// memoryRelay broadcasts every payload to all subscribed buses.
type memoryRelay struct {
	mu       sync.Mutex
	handlers []func(context.Context, []byte)
	ready    chan struct{}
	once     sync.Once
	want     int
}

func newMemoryRelay(want int) *memoryRelay {
	return &memoryRelay{ready: make(chan struct{}), want: want}
}

func (r *memoryRelay) Publish(ctx context.Context, _ string, payload []byte) error {
	r.mu.Lock()
	handlers := append([]func(context.Context, []byte){}, r.handlers...)
	r.mu.Unlock()
	for _, h := range handlers {
		h(ctx, payload)
	}
	return nil
}

func (r *memoryRelay) Subscribe(ctx context.Context, handle func(context.Context, []byte)) error {
	r.mu.Lock()
	r.handlers = append(r.handlers, handle)
	if len(r.handlers) == r.want {
		r.once.Do(func() { close(r.ready) })
	}
	r.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (r *memoryRelay) Close() error { return nil }

func TestRelayFansOutAcrossInstances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := newMemoryRelay(2)
	one := NewBus(quietLogger(), Options{Origin: "one", Relay: relay})
	two := NewBus(quietLogger(), Options{Origin: "two", Relay: relay})
	go func() { _ = one.Run(ctx) }()
	go func() { _ = two.Run(ctx) }()
	select {
	case <-relay.ready:
	case <-time.After(2 * time.Second):
		t.Fatalf("relay subscriptions not ready")
	}

	local := one.Attach("local")
	remote := two.Attach("remote")
	_ = one.Subscribe("local", "clinic-1")
	_ = two.Subscribe("remote", "clinic-1")

	one.PublishSlotUpdate(ctx, "clinic-1", model.SlotEvent{TimeSlotID: "s1"})

	if evt := recv(t, remote.Messages()); evt.ClinicID != "clinic-1" || slotEvent(t, evt).TimeSlotID != "s1" {
		t.Fatalf("unexpected remote event: %+v", evt)
	}
	if got := slotEvent(t, recv(t, local.Messages())).TimeSlotID; got != "s1" {
		t.Fatalf("unexpected local event: %s", got)
	}
	expectNone(t, local.Messages())
}

func TestRunWithoutRelayReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewBus(quietLogger(), Options{})
	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
}
