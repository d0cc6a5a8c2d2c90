package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType = "event_type"
	HeaderOrigin    = "origin"
)

// EventMeta is the metadata carried on every relayed message.
type EventMeta struct {
	EventType string
	Origin    string
}

func (m EventMeta) Headers() []kafka.Header {
	var headers []kafka.Header
	if m.EventType != "" {
		headers = append(headers, kafka.Header{Key: HeaderEventType, Value: []byte(m.EventType)})
	}
	if m.Origin != "" {
		headers = append(headers, kafka.Header{Key: HeaderOrigin, Value: []byte(m.Origin)})
	}
	return headers
}

func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventType: HeaderValue(msg.Headers, HeaderEventType),
		Origin:    HeaderValue(msg.Headers, HeaderOrigin),
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
