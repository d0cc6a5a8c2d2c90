// Package realtime fans slot availability changes out to connected clients.
// Each clinic is a topic; delivery is best effort and never blocks the
// publisher.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/clinicnear/libs/otel"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
)

const (
	EventSlotUpdated  = "timeslot:updated"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
)

var ErrUnknownConnection = errors.New("realtime: unknown connection")

// Event is the frame delivered to subscribers.
type Event struct {
	Name     string          `json:"event"`
	ClinicID string          `json:"clinicId"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Relay carries events between service instances so subscribers on any
// instance see publishes from every instance.
type Relay interface {
	Publish(ctx context.Context, key string, payload []byte) error
	// Subscribe blocks until ctx is done, calling handle for each payload.
	Subscribe(ctx context.Context, handle func(ctx context.Context, payload []byte)) error
	Close() error
}

type envelope struct {
	Origin      string `json:"origin"`
	ClinicID    string `json:"clinicId"`
	Event       Event  `json:"event"`
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
}

type Options struct {
	// Origin identifies this instance on the relay. Defaults to a random id.
	Origin string
	// Buffer is the per-connection outbound queue length.
	Buffer int
	Relay  Relay
	// RelayQueue bounds events waiting to be sent to the relay.
	RelayQueue int
	Metrics    *metrics.Metrics
}

// Subscriber is one attached connection.
type Subscriber struct {
	id     string
	send   chan []byte
	topics map[string]struct{}
}

func (s *Subscriber) ID() string { return s.id }

// Messages is closed when the subscriber is detached.
func (s *Subscriber) Messages() <-chan []byte { return s.send }

type Bus struct {
	origin  string
	buffer  int
	relay   Relay
	outbox  chan envelope
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	conns  map[string]*Subscriber
	topics map[string]map[string]*Subscriber
}

func NewBus(logger *slog.Logger, opts Options) *Bus {
	if opts.Origin == "" {
		opts.Origin = uuid.NewString()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.RelayQueue <= 0 {
		opts.RelayQueue = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		origin:  opts.Origin,
		buffer:  opts.Buffer,
		relay:   opts.Relay,
		logger:  logger,
		metrics: opts.Metrics,
		conns:   map[string]*Subscriber{},
		topics:  map[string]map[string]*Subscriber{},
	}
	if b.relay != nil {
		b.outbox = make(chan envelope, opts.RelayQueue)
	}
	return b
}

func (b *Bus) Origin() string { return b.origin }

// Attach registers a connection. Attaching an existing id returns the
// existing subscriber.
func (b *Bus) Attach(connID string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.conns[connID]; ok {
		return s
	}
	s := &Subscriber{id: connID, send: make(chan []byte, b.buffer), topics: map[string]struct{}{}}
	b.conns[connID] = s
	b.metrics.RealtimeConnections(1)
	return s
}

// Detach drops every subscription of connID and closes its message channel.
func (b *Bus) Detach(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.conns[connID]
	if !ok {
		return
	}
	for clinicID := range s.topics {
		b.removeLocked(clinicID, connID)
	}
	delete(b.conns, connID)
	close(s.send)
	b.metrics.RealtimeConnections(-1)
}

// Subscribe adds connID to clinicID's topic. Repeating it is a no-op. Only
// events published afterwards are delivered.
func (b *Bus) Subscribe(connID, clinicID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if _, ok := s.topics[clinicID]; ok {
		return nil
	}
	set := b.topics[clinicID]
	if set == nil {
		set = map[string]*Subscriber{}
		b.topics[clinicID] = set
	}
	set[connID] = s
	s.topics[clinicID] = struct{}{}
	return nil
}

// Unsubscribe removes connID from clinicID's topic. Non-members are ignored.
func (b *Bus) Unsubscribe(connID, clinicID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.conns[connID]; ok {
		delete(s.topics, clinicID)
	}
	b.removeLocked(clinicID, connID)
}

func (b *Bus) removeLocked(clinicID, connID string) {
	set, ok := b.topics[clinicID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(b.topics, clinicID)
	}
}

// Publish delivers evt to local subscribers of clinicID and forwards it to
// the relay. It never blocks: full subscriber or relay queues drop the event.
func (b *Bus) Publish(ctx context.Context, clinicID string, evt Event) {
	evt.ClinicID = clinicID
	payload, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error("realtime: marshal event", "err", err)
		return
	}
	b.deliver(clinicID, payload)

	if b.outbox == nil {
		return
	}
	env := envelope{Origin: b.origin, ClinicID: clinicID, Event: evt}
	env.TraceParent, env.TraceState = otelx.TraceContextStrings(ctx)
	select {
	case b.outbox <- env:
	default:
		b.metrics.RealtimeDropped("relay_full")
		b.logger.Warn("realtime: relay queue full, dropping event", "clinic_id", clinicID)
	}
}

// PublishSlotUpdate broadcasts a timeslot:updated event.
func (b *Bus) PublishSlotUpdate(ctx context.Context, clinicID string, data model.SlotEvent) {
	raw, err := json.Marshal(data)
	if err != nil {
		b.logger.Error("realtime: marshal slot event", "err", err)
		return
	}
	b.Publish(ctx, clinicID, Event{Name: EventSlotUpdated, Data: raw})
}

func (b *Bus) deliver(clinicID string, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.topics[clinicID] {
		select {
		case s.send <- payload:
		default:
			b.metrics.RealtimeDropped("subscriber_full")
		}
	}
}

// notify sends a control frame to a single connection.
func (b *Bus) notify(connID string, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.conns[connID]; ok {
		select {
		case s.send <- payload:
		default:
			b.metrics.RealtimeDropped("subscriber_full")
		}
	}
}

// Run pumps events to and from the relay until ctx is done. Without a relay
// it just waits.
func (b *Bus) Run(ctx context.Context) error {
	if b.relay == nil {
		<-ctx.Done()
		return nil
	}
	go b.drain(ctx)
	err := b.relay.Subscribe(ctx, b.receive)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-b.outbox:
			payload, err := json.Marshal(env)
			if err != nil {
				continue
			}
			pctx := otelx.ContextWithTraceContext(ctx, env.TraceParent, env.TraceState)
			if err := b.relay.Publish(pctx, env.ClinicID, payload); err != nil {
				b.metrics.RelayMessage("out", "error")
				b.logger.Warn("realtime: relay publish failed", "clinic_id", env.ClinicID, "err", err)
				continue
			}
			b.metrics.RelayMessage("out", "ok")
		}
	}
}

func (b *Bus) receive(_ context.Context, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.metrics.RelayMessage("in", "malformed")
		b.logger.Warn("realtime: malformed relay message", "err", err)
		return
	}
	if env.Origin == b.origin || env.ClinicID == "" {
		return
	}
	env.Event.ClinicID = env.ClinicID
	frame, err := json.Marshal(env.Event)
	if err != nil {
		return
	}
	b.metrics.RelayMessage("in", "ok")
	b.deliver(env.ClinicID, frame)
}

// Connections returns the number of attached connections.
func (b *Bus) Connections() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// Subscribers returns how many connections follow clinicID.
func (b *Bus) Subscribers(clinicID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[clinicID])
}
