package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront-orders/internal/models"
	"storefront-orders/internal/store"
	"storefront-orders/internal/util"

	"go.uber.org/zap"
)

// ReturnRequestInput is the return/exchange payload
type ReturnRequestInput struct {
	Type   models.ReturnType   `json:"type" binding:"required,oneof=return exchange"`
	Reason string              `json:"reason" binding:"required,max=2000"`
	Items  []models.ReturnItem `json:"items" binding:"omitempty,dive"`
}

// CreateReturnRequest opens the single return or exchange request allowed on a
// delivered order. Only the order's customer may open it.
func (s *OrderService) CreateReturnRequest(ctx context.Context, customerID, orderID int64, in *ReturnRequestInput) (*models.ReturnRequest, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateReturnRequest")
	defer span.End()

	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown request type %q", ErrInvalidRequest, in.Type)
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidRequest)
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order.CustomerID != customerID {
		return nil, ErrForbidden
	}
	if order.Status != models.OrderStatusDelivered {
		return nil, ErrOrderNotDelivered
	}
	if err := checkReturnItems(order, in.Items); err != nil {
		return nil, err
	}

	rr := &models.ReturnRequest{
		OrderID:    order.ID,
		CustomerID: customerID,
		Type:       in.Type,
		Reason:     reason,
		Items:      in.Items,
		Status:     models.ReturnStatusPending,
	}
	if err := s.repo.CreateReturnRequest(ctx, rr); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateReturnRequest
		}
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("failed to create return request: %w", err)
	}

	util.ReturnRequestsTotal.WithLabelValues(string(rr.Type)).Inc()
	s.logger.Info("Return request created",
		zap.Int64("return_request_id", rr.ID),
		zap.Int64("order_id", order.ID),
		zap.String("type", string(rr.Type)))

	s.invalidateTracking(ctx, order.OrderNumber)

	event := &models.ReturnRequestedEvent{
		BaseEvent:       newBaseEvent(models.EventTypeReturnRequested),
		ReturnRequestID: rr.ID,
		OrderID:         order.ID,
		CustomerID:      customerID,
		Type:            rr.Type,
	}
	if err := s.publisher.PublishReturnRequested(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReturnRequested event",
			zap.Int64("order_id", order.ID), zap.Error(err))
	}

	return rr, nil
}

// checkReturnItems requires every listed item to reference an order line and
// not exceed the ordered quantity.
func checkReturnItems(order *models.Order, items []models.ReturnItem) error {
	ordered := make(map[int64]int, len(order.Items))
	for _, line := range order.Items {
		ordered[line.ProductID] += line.Quantity
	}

	requested := make(map[int64]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive for product %d", ErrInvalidRequest, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
	}
	for productID, qty := range requested {
		have, ok := ordered[productID]
		if !ok {
			return fmt.Errorf("%w: product %d is not part of this order", ErrInvalidRequest, productID)
		}
		if qty > have {
			return fmt.Errorf("%w: cannot return %d of product %d, only %d ordered", ErrInvalidRequest, qty, productID, have)
		}
	}
	return nil
}

// UpdateReturnStatus moves a return request through staff review
func (s *OrderService) UpdateReturnStatus(ctx context.Context, returnID int64, status models.ReturnStatus) (*models.ReturnRequest, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateReturnStatus")
	defer span.End()

	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	rr, err := s.repo.UpdateReturnRequestStatus(ctx, returnID, status)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrReturnRequestNotFound
		}
		return nil, fmt.Errorf("failed to update return request: %w", err)
	}

	s.logger.Info("Return request status updated",
		zap.Int64("return_request_id", rr.ID),
		zap.String("status", string(status)))

	if order, err := s.repo.GetOrderByID(ctx, rr.OrderID); err == nil {
		s.invalidateTracking(ctx, order.OrderNumber)
	}
	return rr, nil
}
