package service

import (
	"context"
	"errors"
	"testing"

	"storefront-orders/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	seen      map[string]bool
	movements []models.StockMovement
	err       error
}

func (r *fakeRecorder) RecordStockMovements(ctx context.Context, eventID, eventType string, movements []models.StockMovement) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	if r.seen[eventID] {
		return false, nil
	}
	r.seen[eventID] = true
	r.movements = append(r.movements, movements...)
	return true, nil
}

func TestStockAuditorRecordsNegativeDeltas(t *testing.T) {
	rec := &fakeRecorder{seen: map[string]bool{}}
	auditor := NewStockAuditor(rec)

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeOrderPlaced},
		OrderID:   5,
		Items: []models.OrderItemData{
			{ProductID: 1, Quantity: 2},
			{ProductID: 3, Quantity: 1},
		},
	}

	require.NoError(t, auditor.HandleOrderPlaced(context.Background(), event))
	require.NoError(t, auditor.HandleOrderPlaced(context.Background(), event))

	require.Len(t, rec.movements, 2)
	assert.Equal(t, models.StockMovement{ProductID: 1, OrderID: 5, Delta: -2, Reason: models.MovementReasonCheckout}, rec.movements[0])
	assert.Equal(t, -1, rec.movements[1].Delta)
}

func TestStockAuditorPropagatesErrors(t *testing.T) {
	auditor := NewStockAuditor(&fakeRecorder{err: errors.New("db down")})
	err := auditor.HandleOrderPlaced(context.Background(), &models.OrderPlacedEvent{OrderID: 1})
	assert.ErrorContains(t, err, "db down")
}
