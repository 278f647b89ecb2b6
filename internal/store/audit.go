package store

import (
	"context"
	"fmt"

	"storefront-orders/internal/models"
)

// RecordStockMovements marks the event processed and writes its movements in one
// transaction. It returns false when the event was already processed.
func (s *Store) RecordStockMovements(ctx context.Context, eventID, eventType string, movements []models.StockMovement) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	for _, m := range movements {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO stock_movements (product_id, order_id, delta, reason) VALUES ($1, $2, $3, $4)",
			m.ProductID, m.OrderID, m.Delta, m.Reason)
		if err != nil {
			return false, fmt.Errorf("failed to insert stock movement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ListStockMovements returns the audit trail for a product, oldest first
func (s *Store) ListStockMovements(ctx context.Context, productID int64) ([]models.StockMovement, error) {
	var out []models.StockMovement
	err := s.db.SelectContext(ctx, &out,
		"SELECT id, product_id, order_id, delta, reason, created_at FROM stock_movements WHERE product_id = $1 ORDER BY id",
		productID)
	return out, err
}
