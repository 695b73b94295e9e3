package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

func TestOutboxPublisher_OrderUpdatedEnvelope(t *testing.T) {
	occurred := time.Date(2025, time.August, 12, 10, 0, 0, 0, time.UTC)
	published := occurred.Add(time.Second)
	name := "Renamed"
	msg, err := domain.NewOrderUpdatedMessage(7,
		domain.OrderPatch{Name: &name, Products: []domain.LineInput{{ProductID: 3, Quantity: 2}}},
		domain.LineDiff{Insert: []domain.LineChange{{ProductID: 3, Quantity: 2}}, Delete: []int64{1}},
		occurred)
	require.NoError(t, err)

	var got Envelope
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(pm *sarama.ProducerMessage) error {
		key, _ := pm.Key.Encode()
		if string(key) != "7" {
			return fmt.Errorf("records of one order must share key, got %q", key)
		}
		h := headersOf(pm)
		if h[HeaderEventID] != msg.ID || h[HeaderEventType] != domain.EventOrderUpdated || h[HeaderAggregateType] != domain.AggregateOrder {
			return fmt.Errorf("unexpected headers %v", h)
		}
		value, _ := pm.Value.Encode()
		return json.Unmarshal(value, &got)
	})

	publisher := NewOutboxPublisher(newProducer(mp, nil), "")
	publisher.now = func() time.Time { return published }
	require.Equal(t, TopicOrderEvents, publisher.Topic())
	require.NoError(t, publisher.Publish(context.Background(), msg))
	require.NoError(t, mp.Close())

	require.Equal(t, msg.ID, got.ID)
	require.Equal(t, "7", got.AggregateID)
	require.True(t, got.PublishedAt.Equal(published))
	payload, err := got.OrderUpdated()
	require.NoError(t, err)
	require.Equal(t, []string{"name", "products"}, payload.Fields)
	require.Equal(t, []int64{3}, payload.Inserted)
	require.Equal(t, []int64{1}, payload.Deleted)
}

func TestOutboxPublisher_Failures(t *testing.T) {
	deleted, err := domain.NewOrderDeletedMessage(9, time.Now())
	require.NoError(t, err)

	t.Run("broker error marks publish failure", func(t *testing.T) {
		mp := mocks.NewSyncProducer(t, nil)
		mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

		err := NewOutboxPublisher(newProducer(mp, nil), TopicOrderEvents).Publish(context.Background(), deleted)
		require.ErrorIs(t, err, domain.ErrOutboxPublish)
		require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
		require.NoError(t, mp.Close())
	})

	t.Run("no producer", func(t *testing.T) {
		err := NewOutboxPublisher(nil, TopicOrderEvents).Publish(context.Background(), deleted)
		require.Error(t, err)
		require.False(t, errors.Is(err, domain.ErrOutboxPublish))
	})

	t.Run("canceled context", func(t *testing.T) {
		mp := mocks.NewSyncProducer(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := NewOutboxPublisher(newProducer(mp, nil), TopicOrderEvents).Publish(ctx, deleted)
		require.ErrorIs(t, err, context.Canceled)
		require.NoError(t, mp.Close())
	})
}

func TestOutboxPublisher_KeyFallsBackToEventID(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(pm *sarama.ProducerMessage) error {
		key, _ := pm.Key.Encode()
		if string(key) != "evt-1" {
			return fmt.Errorf("unexpected key %q", key)
		}
		return nil
	})

	err := NewOutboxPublisher(newProducer(mp, nil), TopicOrderEvents).Publish(context.Background(), domain.OutboxMessage{ID: "evt-1", EventType: domain.EventOrderDeleted})
	require.NoError(t, err)
	require.NoError(t, mp.Close())
}
