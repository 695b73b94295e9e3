package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// AggregateOrder — тип агрегата для событий заказа.
	AggregateOrder = "order"

	EventOrderUpdated = "order.updated"
	EventOrderDeleted = "order.deleted"
)

// OrderUpdatedPayload — тело события order.updated.
type OrderUpdatedPayload struct {
	OrderID    int64     `json:"order_id"`
	Fields     []string  `json:"fields"`
	Inserted   []int64   `json:"inserted_products,omitempty"`
	Updated    []int64   `json:"updated_products,omitempty"`
	Deleted    []int64   `json:"deleted_products,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OrderDeletedPayload — тело события order.deleted.
type OrderDeletedPayload struct {
	OrderID    int64     `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewOrderUpdatedMessage формирует outbox-сообщение об изменении заказа.
func NewOrderUpdatedMessage(orderID int64, patch OrderPatch, diff LineDiff, at time.Time) (OutboxMessage, error) {
	payload := OrderUpdatedPayload{
		OrderID:    orderID,
		Fields:     patch.ChangedFields(),
		Inserted:   productIDs(diff.Insert),
		Updated:    productIDs(diff.Update),
		Deleted:    diff.Delete,
		OccurredAt: at.UTC(),
	}
	if payload.Fields == nil {
		payload.Fields = []string{}
	}
	return newOrderMessage(orderID, EventOrderUpdated, payload, at)
}

// NewOrderDeletedMessage формирует outbox-сообщение об удалении заказа.
func NewOrderDeletedMessage(orderID int64, at time.Time) (OutboxMessage, error) {
	return newOrderMessage(orderID, EventOrderDeleted, OrderDeletedPayload{OrderID: orderID, OccurredAt: at.UTC()}, at)
}

func newOrderMessage(orderID int64, eventType string, payload any, at time.Time) (OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: AggregateOrder,
		AggregateID:   strconv.FormatInt(orderID, 10),
		EventType:     eventType,
		Payload:       body,
		CreatedAt:     at.UTC(),
	}, nil
}

func productIDs(changes []LineChange) []int64 {
	if len(changes) == 0 {
		return nil
	}
	ids := make([]int64, len(changes))
	for i, c := range changes {
		ids[i] = c.ProductID
	}
	return ids
}
