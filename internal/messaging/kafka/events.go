package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "orderdesk.order.events"
	TopicDeadLetterQueue = "orderdesk.dlq" // Dead Letter Queue для failed messages
)

// Заголовки записей с событиями заказов.
const (
	HeaderEventID       = "x-event-id"
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// Envelope — формат сообщения, в котором outbox-события уходят в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt.UTC(),
	}
}

// ParseEnvelope разбирает envelope из сообщения Kafka.
func ParseEnvelope(message *sarama.ConsumerMessage) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &env, nil
}

// OrderUpdated декодирует payload события order.updated.
func (e *Envelope) OrderUpdated() (*domain.OrderUpdatedPayload, error) {
	if e.EventType != domain.EventOrderUpdated {
		return nil, fmt.Errorf("unexpected event type %q", e.EventType)
	}
	var p domain.OrderUpdatedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", e.EventType, err)
	}
	return &p, nil
}

// OrderDeleted декодирует payload события order.deleted.
func (e *Envelope) OrderDeleted() (*domain.OrderDeletedPayload, error) {
	if e.EventType != domain.EventOrderDeleted {
		return nil, fmt.Errorf("unexpected event type %q", e.EventType)
	}
	var p domain.OrderDeletedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", e.EventType, err)
	}
	return &p, nil
}

func headerValue(headers []*sarama.RecordHeader, key string) (string, bool) {
	for _, h := range headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value), true
		}
	}
	return "", false
}
