package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storefront-orders/internal/models"
	"storefront-orders/internal/store"
	"storefront-orders/internal/util"

	"go.uber.org/zap"
)

// TrackingView is the public tracking projection of an order
type TrackingView struct {
	Order         *models.Order         `json:"order"`
	ReturnRequest *models.ReturnRequest `json:"returnRequest,omitempty"`
}

// GetOrder returns an order with its customer and product summaries
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	s.attachCustomer(ctx, order)
	s.attachProducts(ctx, order)
	return order, nil
}

// ListOrders returns a customer's orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, customerID int64) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	orders, err := s.repo.ListOrdersByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	refs := make([]*models.Order, len(orders))
	for i := range orders {
		refs[i] = &orders[i]
	}
	s.attachProducts(ctx, refs...)
	return orders, nil
}

// UpdateStatus sets an order's status. Any valid status is accepted unless
// strict transitions are enabled, in which case the transition table applies.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, status models.OrderStatus) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	from := order.Status
	if s.opts.StrictStatusTransitions && !from.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}

	if err := s.repo.UpdateOrderStatus(ctx, orderID, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = status
	order.UpdatedAt = s.now()

	util.OrderStatusUpdatesTotal.WithLabelValues(string(status)).Inc()
	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(status)))

	s.invalidateTracking(ctx, order.OrderNumber)

	event := &models.OrderStatusChangedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		From:        from,
		To:          status,
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event",
			zap.Int64("order_id", orderID), zap.Error(err))
	}

	s.attachCustomer(ctx, order)
	s.attachProducts(ctx, order)
	return order, nil
}

// TrackOrder looks an order up by its order number. Views are served from
// the cache when present.
func (s *OrderService) TrackOrder(ctx context.Context, orderNumber string) (*TrackingView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.TrackOrder")
	defer span.End()

	if cached, ok, err := s.cache.GetTrackedOrder(ctx, orderNumber); err != nil {
		s.logger.Warn("Tracking cache read failed", zap.String("order_number", orderNumber), zap.Error(err))
	} else if ok {
		var view TrackingView
		if err := json.Unmarshal(cached, &view); err == nil {
			return &view, nil
		}
		s.logger.Warn("Discarding unreadable tracking cache entry", zap.String("order_number", orderNumber))
	}

	// the load is shared by every waiting caller, so it must outlive any one of them
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.tracking.Do(orderNumber, func() (interface{}, error) {
		return s.loadTrackingView(loadCtx, orderNumber)
	})
	if err != nil {
		return nil, err
	}
	return v.(*TrackingView), nil
}

// loadTrackingView reads the order and its return request, then caches the
// view unless an invalidation happened while it was loading.
func (s *OrderService) loadTrackingView(ctx context.Context, orderNumber string) (*TrackingView, error) {
	gen := s.trackingGen.Load()
	order, err := s.repo.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	s.attachProducts(ctx, order)

	view := &TrackingView{Order: order}
	rr, err := s.repo.GetReturnRequestByOrderID(ctx, order.ID)
	switch {
	case err == nil:
		view.ReturnRequest = rr
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to load return request: %w", err)
	}

	if s.trackingGen.Load() != gen {
		return view, nil
	}
	if data, err := json.Marshal(view); err == nil {
		if err := s.cache.SetTrackedOrder(ctx, orderNumber, data, s.opts.TrackingCacheTTL); err != nil {
			s.logger.Warn("Tracking cache write failed", zap.String("order_number", orderNumber), zap.Error(err))
		}
	}

	return view, nil
}

func (s *OrderService) invalidateTracking(ctx context.Context, orderNumber string) {
	s.trackingGen.Add(1)
	s.tracking.Forget(orderNumber)
	if err := s.cache.InvalidateTrackedOrder(ctx, orderNumber); err != nil {
		s.logger.Warn("Failed to invalidate tracking cache",
			zap.String("order_number", orderNumber), zap.Error(err))
	}
}

// ListStockMovements returns the audit trail for a product
func (s *OrderService) ListStockMovements(ctx context.Context, productID int64) ([]models.StockMovement, error) {
	movements, err := s.repo.ListStockMovements(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock movements: %w", err)
	}
	return movements, nil
}
