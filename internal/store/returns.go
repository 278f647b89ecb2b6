package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-orders/internal/models"
)

const returnColumns = "id, order_id, customer_id, type, reason, items, status, created_at, updated_at"

// CreateReturnRequest inserts a return request. The unique index on order_id
// rejects a second request for the same order with ErrDuplicate.
func (s *Store) CreateReturnRequest(ctx context.Context, rr *models.ReturnRequest) error {
	query := `
		INSERT INTO return_requests (order_id, customer_id, type, reason, items, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		rr.OrderID, rr.CustomerID, rr.Type, rr.Reason, rr.Items, rr.Status,
	).Scan(&rr.ID, &rr.CreatedAt, &rr.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("return request for order %d: %w", rr.OrderID, ErrDuplicate)
	}
	return err
}

// GetReturnRequestByOrderID retrieves the return request linked to an order
func (s *Store) GetReturnRequestByOrderID(ctx context.Context, orderID int64) (*models.ReturnRequest, error) {
	var rr models.ReturnRequest
	err := s.db.GetContext(ctx, &rr,
		"SELECT "+returnColumns+" FROM return_requests WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("return request for order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rr, nil
}

// UpdateReturnRequestStatus sets the operator-managed status and returns the updated row
func (s *Store) UpdateReturnRequestStatus(ctx context.Context, id int64, status models.ReturnStatus) (*models.ReturnRequest, error) {
	var rr models.ReturnRequest
	err := s.db.GetContext(ctx, &rr,
		"UPDATE return_requests SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING "+returnColumns,
		status, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("return request %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rr, nil
}
