package service

import (
	"context"
	"fmt"

	"storefront-orders/internal/models"
	"storefront-orders/internal/util"

	"go.uber.org/zap"
)

// MovementRecorder persists stock movements once per event
type MovementRecorder interface {
	RecordStockMovements(ctx context.Context, eventID, eventType string, movements []models.StockMovement) (bool, error)
}

// StockAuditor turns placed orders into stock movement audit rows
type StockAuditor struct {
	recorder MovementRecorder
	logger   *zap.Logger
}

// NewStockAuditor creates a new stock auditor
func NewStockAuditor(recorder MovementRecorder) *StockAuditor {
	return &StockAuditor{recorder: recorder, logger: util.GetLogger()}
}

// HandleOrderPlaced records one negative movement per order line. Redelivered
// events are skipped.
func (a *StockAuditor) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	ctx, span := util.StartSpan(ctx, "StockAuditor.HandleOrderPlaced")
	defer span.End()

	movements := make([]models.StockMovement, 0, len(event.Items))
	for _, item := range event.Items {
		movements = append(movements, models.StockMovement{
			ProductID: item.ProductID,
			OrderID:   event.OrderID,
			Delta:     -item.Quantity,
			Reason:    models.MovementReasonCheckout,
		})
	}

	recorded, err := a.recorder.RecordStockMovements(ctx, event.EventID, event.EventType, movements)
	if err != nil {
		util.RecordSpanError(span, err)
		return fmt.Errorf("failed to record stock movements for order %d: %w", event.OrderID, err)
	}
	if !recorded {
		a.logger.Info("Event already processed, skipping", zap.String("event_id", event.EventID))
		return nil
	}

	util.StockMovementsRecorded.Add(float64(len(movements)))
	a.logger.Info("Stock movements recorded",
		zap.Int64("order_id", event.OrderID),
		zap.Int("lines", len(movements)))
	return nil
}
