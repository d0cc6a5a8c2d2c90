package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/md-rashed-zaman/clinicnear/libs/kafkax"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestRelayMessageCarriesKeyOriginAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	msg := relayMessage(ctx, "node-a", "clinic-1", []byte(`{}`))
	if string(msg.Key) != "clinic-1" || string(msg.Value) != `{}` {
		t.Fatalf("unexpected key/value %q %q", msg.Key, msg.Value)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.Origin != "node-a" || meta.EventType != EventSlotUpdated {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if kafkax.HeaderValue(msg.Headers, "traceparent") == "" {
		t.Fatalf("expected traceparent header, got %+v", msg.Headers)
	}
	got := trace.SpanContextFromContext(kafkax.ExtractTraceContext(context.Background(), msg))
	if got.TraceID() != sc.TraceID() {
		t.Fatalf("trace id not propagated: %v", got.TraceID())
	}
}

func TestRelayPayloadSkipsOwnOrigin(t *testing.T) {
	msg := relayMessage(context.Background(), "node-a", "clinic-1", []byte(`x`))
	if _, ok := relayPayload(msg, "node-a"); ok {
		t.Fatal("own messages must be skipped")
	}
	payload, ok := relayPayload(msg, "node-b")
	if !ok || string(payload) != "x" {
		t.Fatalf("expected payload for other instance, got %q %v", payload, ok)
	}
}

func TestKafkaMessageRoundTripsIntoRemoteBus(t *testing.T) {
	ctx := context.Background()
	data, _ := json.Marshal(model.SlotEvent{TimeSlotID: "s1", BookingID: "b1"})
	payload, err := json.Marshal(envelope{
		Origin:   "node-a",
		ClinicID: "clinic-1",
		Event:    Event{Name: EventSlotUpdated, Data: data},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	remote := NewBus(quietLogger(), Options{Origin: "node-b"})
	sub := remote.Attach("conn")
	if err := remote.Subscribe("conn", "clinic-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	in, ok := relayPayload(relayMessage(ctx, "node-a", "clinic-1", payload), "node-b")
	if !ok {
		t.Fatal("message from another instance was dropped")
	}
	remote.receive(ctx, in)

	evt := recv(t, sub.Messages())
	if evt.Name != EventSlotUpdated || evt.ClinicID != "clinic-1" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if d := slotEvent(t, evt); d.TimeSlotID != "s1" || d.BookingID != "b1" || d.IsAvailable {
		t.Fatalf("unexpected data %+v", d)
	}
}
