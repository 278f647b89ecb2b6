package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"storefront-orders/config"
	"storefront-orders/internal/models"
	"storefront-orders/internal/store"
	"storefront-orders/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Repository is the persistence surface the order service needs.
type Repository interface {
	store.Querier
	InTx(ctx context.Context, fn func(q store.Querier) error) error

	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID int64) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error

	GetCustomerSummary(ctx context.Context, id int64) (*models.CustomerSummary, error)
	GetProductSummaries(ctx context.Context, ids []int64) (map[int64]models.ProductSummary, error)

	CreateReturnRequest(ctx context.Context, rr *models.ReturnRequest) error
	GetReturnRequestByOrderID(ctx context.Context, orderID int64) (*models.ReturnRequest, error)
	UpdateReturnRequestStatus(ctx context.Context, id int64, status models.ReturnStatus) (*models.ReturnRequest, error)

	ListStockMovements(ctx context.Context, productID int64) ([]models.StockMovement, error)
}

// Cache holds idempotency locks and cached tracking views.
type Cache interface {
	AcquireIdempotencyLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseIdempotencyLock(ctx context.Context, key, token string) error
	GetTrackedOrder(ctx context.Context, orderNumber string) ([]byte, bool, error)
	SetTrackedOrder(ctx context.Context, orderNumber string, data []byte, ttl time.Duration) error
	InvalidateTrackedOrder(ctx context.Context, orderNumber string) error
}

// Publisher emits order lifecycle events.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishReturnRequested(ctx context.Context, event *models.ReturnRequestedEvent) error
}

// Options tune checkout and status behaviour.
type Options struct {
	CheckoutMode            string
	StrictStatusTransitions bool
	IdempotencyTTL          time.Duration
	TrackingCacheTTL        time.Duration
}

// OptionsFromConfig maps business configuration onto service options
func OptionsFromConfig(cfg config.BusinessConfig) Options {
	return Options{
		CheckoutMode:            cfg.CheckoutMode,
		StrictStatusTransitions: cfg.StrictStatusTransitions,
		IdempotencyTTL:          time.Duration(cfg.IdempotencyTTLSeconds) * time.Second,
		TrackingCacheTTL:        time.Duration(cfg.TrackingCacheTTLSeconds) * time.Second,
	}
}

// OrderService handles order business logic
type OrderService struct {
	repo      Repository
	cache     Cache
	publisher Publisher
	opts      Options
	logger    *zap.Logger
	now       func() time.Time

	// collapses concurrent tracking lookups for the same order number
	tracking singleflight.Group
	// bumped on every invalidation; a load that sees it move does not cache
	trackingGen atomic.Uint64
}

// NewOrderService creates a new order service
func NewOrderService(repo Repository, cache Cache, publisher Publisher, opts Options) *OrderService {
	if opts.CheckoutMode != config.CheckoutModeLegacy {
		opts.CheckoutMode = config.CheckoutModeAtomic
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 30 * time.Second
	}
	if opts.TrackingCacheTTL <= 0 {
		opts.TrackingCacheTTL = time.Minute
	}

	return &OrderService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		opts:      opts,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// PlaceOrderRequest is the checkout payload
type PlaceOrderRequest struct {
	Items           []OrderLineRequest `json:"items" binding:"required,min=1,dive"`
	ShippingAddress models.Address     `json:"shippingAddress" binding:"required"`
	Notes           string             `json:"notes" binding:"max=1000"`
	IdempotencyKey  string             `json:"idempotencyKey,omitempty" binding:"max=128"`
}

// OrderLineRequest is one requested line of a checkout
type OrderLineRequest struct {
	ProductID int64  `json:"productId" binding:"required,gt=0"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Size      string `json:"size,omitempty" binding:"max=32"`
	Color     string `json:"color,omitempty" binding:"max=32"`
}

func (r *PlaceOrderRequest) validate() error {
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrInvalidRequest)
	}
	for _, line := range r.Items {
		if line.ProductID <= 0 {
			return fmt.Errorf("%w: invalid product id %d", ErrInvalidRequest, line.ProductID)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive for product %d", ErrInvalidRequest, line.ProductID)
		}
	}
	return nil
}

// PlaceOrder validates stock, decrements it, prices the order and persists it.
// The boolean result is false when an existing order was returned for a
// repeated idempotency key.
func (s *OrderService) PlaceOrder(ctx context.Context, customerID int64, req *PlaceOrderRequest) (*models.Order, bool, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	if err := req.validate(); err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, false, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.replay(ctx, customerID, key)
		if err != nil || existing != nil {
			return existing, false, err
		}

		token, acquired, err := s.cache.AcquireIdempotencyLock(ctx, key, s.opts.IdempotencyTTL)
		switch {
		case err != nil:
			// the unique index on idempotency_key still rejects a racing duplicate
			s.logger.Warn("Idempotency lock unavailable, continuing without it",
				zap.String("idempotency_key", key), zap.Error(err))
		case !acquired:
			util.OrdersFailedTotal.WithLabelValues(failureReason(ErrCheckoutInProgress)).Inc()
			return nil, false, ErrCheckoutInProgress
		default:
			defer func() {
				if err := s.cache.ReleaseIdempotencyLock(context.Background(), key, token); err != nil {
					s.logger.Warn("Failed to release idempotency lock",
						zap.String("idempotency_key", key), zap.Error(err))
				}
			}()
		}
	}

	order := &models.Order{
		OrderNumber:     newOrderNumber(s.now()),
		CustomerID:      customerID,
		Status:          models.OrderStatusPending,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
	}
	if key != "" {
		order.IdempotencyKey = &key
	}

	start := time.Now()
	checkout := func(q store.Querier) error {
		return s.checkout(ctx, q, order, req.Items)
	}

	// A keyed checkout always runs in a transaction so that a duplicate key
	// rejected by the unique index rolls its decrements back.
	var err error
	if s.opts.CheckoutMode == config.CheckoutModeLegacy && key == "" {
		err = checkout(s.repo)
	} else {
		err = s.repo.InTx(ctx, checkout)
	}
	util.CheckoutLatency.WithLabelValues(s.opts.CheckoutMode).Observe(time.Since(start).Seconds())

	if err != nil {
		if key != "" && errors.Is(err, store.ErrDuplicate) {
			existing, replayErr := s.replay(ctx, customerID, key)
			if replayErr != nil || existing != nil {
				return existing, false, replayErr
			}
		}
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		util.RecordSpanError(span, err)
		s.logger.Info("Checkout rejected",
			zap.Int64("customer_id", customerID),
			zap.String("mode", s.opts.CheckoutMode),
			zap.Error(err))
		return nil, false, err
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.Total.StringFixed(2)))

	s.publishOrderPlaced(ctx, order)
	s.attachCustomer(ctx, order)
	s.attachProducts(ctx, order)

	return order, true, nil
}

// replay returns the order previously created with key, or nil when there is none
func (s *OrderService) replay(ctx context.Context, customerID int64, key string) (*models.Order, error) {
	existing, err := s.repo.GetOrderByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	if existing.CustomerID != customerID {
		return nil, ErrIdempotencyKeyReused
	}

	util.IdempotentReplaysTotal.Inc()
	s.logger.Info("Duplicate checkout request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", existing.ID))

	s.attachCustomer(ctx, existing)
	s.attachProducts(ctx, existing)
	return existing, nil
}

// checkout runs the resolve and line phases against q. In atomic mode q is a
// transaction, so any error discards every decrement made so far.
func (s *OrderService) checkout(ctx context.Context, q store.Querier, order *models.Order, lines []OrderLineRequest) error {
	products, err := resolveProducts(ctx, q, lines)
	if err != nil {
		return err
	}

	subtotal := decimal.Zero
	items := make([]models.OrderItem, 0, len(lines))
	decremented := 0

	for _, line := range lines {
		product := products[line.ProductID]
		if product.Stock < line.Quantity {
			return fmt.Errorf("%w for %s", ErrInsufficientStock, product.Name)
		}

		if err := q.DecrementStock(ctx, product.ID, line.Quantity); err != nil {
			if errors.Is(err, store.ErrInsufficientStock) {
				return fmt.Errorf("%w for %s", ErrInsufficientStock, product.Name)
			}
			return fmt.Errorf("failed to decrement stock for product %d: %w", product.ID, err)
		}
		product.Stock -= line.Quantity
		decremented += line.Quantity

		item := models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   product.Price,
			Size:        line.Size,
			Color:       line.Color,
		}
		subtotal = subtotal.Add(item.LineTotal())
		items = append(items, item)
	}

	totals := CalculateTotals(subtotal)
	order.Items = items
	order.Subtotal = totals.Subtotal
	order.Tax = totals.Tax
	order.Shipping = totals.Shipping
	order.Total = totals.Total

	if err := q.InsertOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	util.StockUnitsDecremented.Add(float64(decremented))
	return nil
}

// resolveProducts loads every requested product before any stock moves. Rows
// are read in ascending id order so concurrent transactions lock consistently.
func resolveProducts(ctx context.Context, q store.Querier, lines []OrderLineRequest) (map[int64]*models.Product, error) {
	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]bool, len(lines))
	for _, line := range lines {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products := make(map[int64]*models.Product, len(ids))
	for _, id := range ids {
		product, err := q.LockProduct(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: %d", ErrProductNotFound, id)
			}
			return nil, fmt.Errorf("failed to load product %d: %w", id, err)
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, product.Name)
		}
		products[id] = product
	}
	return products, nil
}

func (s *OrderService) publishOrderPlaced(ctx context.Context, order *models.Order) {
	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	event := &models.OrderPlacedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderPlaced),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Total:       order.Total,
		Items:       items,
	}

	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event",
			zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// newOrderNumber returns a human facing identifier such as ORD-20240315-4F1A9C02BD
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:10]
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// attachCustomer fills the customer summary. Failures only cost the summary.
func (s *OrderService) attachCustomer(ctx context.Context, order *models.Order) {
	customer, err := s.repo.GetCustomerSummary(ctx, order.CustomerID)
	if err != nil {
		s.logger.Warn("Failed to load customer summary",
			zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}
	order.Customer = customer
}

// attachProducts fills the product summary of every line across orders
func (s *OrderService) attachProducts(ctx context.Context, orders ...*models.Order) {
	var ids []int64
	for _, order := range orders {
		for _, item := range order.Items {
			ids = append(ids, item.ProductID)
		}
	}
	if len(ids) == 0 {
		return
	}

	summaries, err := s.repo.GetProductSummaries(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to load product summaries", zap.Error(err))
		return
	}

	for _, order := range orders {
		for i := range order.Items {
			if summary, ok := summaries[order.Items[i].ProductID]; ok {
				summary := summary
				order.Items[i].Product = &summary
			}
		}
	}
}
