package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"storefront-orders/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) PublishEvent(ctx context.Context, key string, event interface{}) error {
	args := m.Called(ctx, key, event)
	return args.Error(0)
}

func TestEventPublisherKeysByOrder(t *testing.T) {
	w := new(mockWriter)
	ep := NewEventPublisher(w)

	placed := &models.OrderPlacedEvent{OrderID: 7}
	changed := &models.OrderStatusChangedEvent{OrderID: 7}
	requested := &models.ReturnRequestedEvent{OrderID: 7}

	w.On("PublishEvent", mock.Anything, "order-7", placed).Return(nil)
	w.On("PublishEvent", mock.Anything, "order-7", changed).Return(nil)
	w.On("PublishEvent", mock.Anything, "order-7", requested).Return(errors.New("broker down"))

	ctx := context.Background()
	assert.NoError(t, ep.PublishOrderPlaced(ctx, placed))
	assert.NoError(t, ep.PublishOrderStatusChanged(ctx, changed))
	assert.EqualError(t, ep.PublishReturnRequested(ctx, requested), "broker down")

	w.AssertExpectations(t)
}

func TestHandleMessageRoutesOrderPlaced(t *testing.T) {
	event := models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID: 42,
		Total:   decimal.RequireFromString("140.4"),
		Items:   []models.OrderItemData{{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(50)}},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var got *models.OrderPlacedEvent
	eh := NewEventHandler()
	eh.OnOrderPlaced(func(ctx context.Context, e *models.OrderPlacedEvent) error {
		got = e
		return nil
	})

	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: payload}))
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.OrderID)
	assert.True(t, decimal.RequireFromString("140.4").Equal(got.Total))
	assert.Len(t, got.Items, 1)
}

func TestHandleMessageIgnoresOtherEvents(t *testing.T) {
	called := false
	eh := NewEventHandler()
	eh.OnOrderPlaced(func(ctx context.Context, e *models.OrderPlacedEvent) error {
		called = true
		return nil
	})

	payload := []byte(`{"event_id":"evt-2","event_type":"ORDER_STATUS_CHANGED"}`)
	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: payload}))
	assert.False(t, called)
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	eh := NewEventHandler()
	err := eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.ErrorIs(t, err, ErrMalformedMessage)

	eh.OnOrderPlaced(func(ctx context.Context, e *models.OrderPlacedEvent) error { return nil })
	payload := []byte(`{"event_id":"evt-3","event_type":"ORDER_PLACED","order_id":"seven"}`)
	err = eh.HandleMessage(context.Background(), kafka.Message{Value: payload})
	assert.ErrorIs(t, err, ErrMalformedMessage)
}
