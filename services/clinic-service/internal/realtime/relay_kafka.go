package realtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicnear/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type KafkaRelayConfig struct {
	Brokers []string
	Topic   string
	// Origin makes the consumer group unique so every instance sees every
	// event.
	Origin      string
	GroupPrefix string
}

// KafkaRelay shares events across instances through a Kafka topic keyed by
// clinic id, which keeps per-clinic order.
type KafkaRelay struct {
	writer *kafka.Writer
	reader *kafka.Reader
	origin string
	logger *slog.Logger
}

func NewKafkaRelay(cfg KafkaRelayConfig, logger *slog.Logger) (*KafkaRelay, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka relay: brokers are required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "clinicnear.realtime"
	}
	if cfg.GroupPrefix == "" {
		cfg.GroupPrefix = "clinicnear-realtime"
	}
	if logger == nil {
		logger = slog.Default()
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupPrefix + "-" + cfg.Origin,
		Topic:       cfg.Topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		MaxWait:     500 * time.Millisecond,
	})
	return &KafkaRelay{writer: writer, reader: reader, origin: cfg.Origin, logger: logger}, nil
}

func (k *KafkaRelay) Publish(ctx context.Context, key string, payload []byte) error {
	return k.writer.WriteMessages(ctx, relayMessage(ctx, k.origin, key, payload))
}

// relayMessage wraps a bus payload keyed by clinic id, tagged with the
// publishing instance and the caller's trace context.
func relayMessage(ctx context.Context, origin, key string, payload []byte) kafka.Message {
	headers := kafkax.EventMeta{EventType: EventSlotUpdated, Origin: origin}.Headers()
	return kafka.Message{
		Key:     []byte(key),
		Value:   payload,
		Headers: kafkax.InjectTraceHeaders(ctx, headers),
	}
}

// relayPayload returns the bus payload of msg unless origin published it.
func relayPayload(msg kafka.Message, origin string) ([]byte, bool) {
	if kafkax.ExtractEventMeta(msg).Origin == origin {
		return nil, false
	}
	return msg.Value, true
}

func (k *KafkaRelay) Subscribe(ctx context.Context, handle func(context.Context, []byte)) error {
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Warn("kafka relay read failed", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		payload, ok := relayPayload(msg, k.origin)
		if !ok {
			continue
		}
		msgCtx, span := otel.Tracer("kafka").Start(kafkax.ExtractTraceContext(ctx, msg), "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)
		handle(msgCtx, payload)
		span.End()
	}
}

func (k *KafkaRelay) Close() error {
	return errors.Join(k.writer.Close(), k.reader.Close())
}
