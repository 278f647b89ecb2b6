package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront-orders/internal/models"
	"storefront-orders/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// fakeRepo is an in-memory Repository. InTx holds the lock for the whole
// callback and restores stock when the callback fails.
type fakeRepo struct {
	mu           sync.Mutex
	products     map[int64]*models.Product
	orders       map[int64]*models.Order
	returns      map[int64]*models.ReturnRequest
	movements    []models.StockMovement
	nextOrderID  int64
	nextReturnID int64
	insertErr    error

	// staleKeyLookups makes that many idempotency key lookups miss, like a
	// read that races a concurrent insert
	staleKeyLookups int
	// afterNumberLookup runs after an order is read by number, without the lock held
	afterNumberLookup func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		products: make(map[int64]*models.Product),
		orders:   make(map[int64]*models.Order),
		returns:  make(map[int64]*models.ReturnRequest),
	}
}

func (r *fakeRepo) addProduct(id int64, name, price string, stock int) {
	r.products[id] = &models.Product{
		ID:     id,
		Name:   name,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: true,
	}
}

func (r *fakeRepo) stock(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[id].Stock
}

func (r *fakeRepo) orderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

// txQuerier runs queries while the caller already holds the repo lock
type txQuerier struct{ r *fakeRepo }

func (q txQuerier) LockProduct(ctx context.Context, id int64) (*models.Product, error) {
	return q.r.lockProduct(id)
}

func (q txQuerier) DecrementStock(ctx context.Context, id int64, quantity int) error {
	return q.r.decrementStock(id, quantity)
}

func (q txQuerier) InsertOrder(ctx context.Context, order *models.Order) error {
	return q.r.insertOrder(order)
}

func (r *fakeRepo) InTx(ctx context.Context, fn func(q store.Querier) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[int64]int, len(r.products))
	for id, p := range r.products {
		snapshot[id] = p.Stock
	}

	if err := fn(txQuerier{r}); err != nil {
		for id, stock := range snapshot {
			r.products[id].Stock = stock
		}
		return err
	}
	return nil
}

func (r *fakeRepo) LockProduct(ctx context.Context, id int64) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lockProduct(id)
}

func (r *fakeRepo) DecrementStock(ctx context.Context, id int64, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decrementStock(id, quantity)
}

func (r *fakeRepo) InsertOrder(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertOrder(order)
}

func (r *fakeRepo) lockProduct(id int64) (*models.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) decrementStock(id int64, quantity int) error {
	p, ok := r.products[id]
	if !ok || p.Stock < quantity {
		return fmt.Errorf("product %d: %w", id, store.ErrInsufficientStock)
	}
	p.Stock -= quantity
	return nil
}

func (r *fakeRepo) insertOrder(order *models.Order) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	if order.IdempotencyKey != nil {
		for _, o := range r.orders {
			if o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
				return fmt.Errorf("order: %w", store.ErrDuplicate)
			}
		}
	}
	r.nextOrderID++
	order.ID = r.nextOrderID
	now := time.Now()
	order.CreatedAt, order.UpdatedAt = now, now

	stored := *order
	stored.Items = append([]models.OrderItem(nil), order.Items...)
	r.orders[order.ID] = &stored
	return nil
}

func (r *fakeRepo) copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp
}

func (r *fakeRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r.copyOrder(o), nil
}

func (r *fakeRepo) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	order, err := r.orderByNumber(number)
	if err == nil && r.afterNumberLookup != nil {
		r.afterNumberLookup()
	}
	return order, err
}

func (r *fakeRepo) orderByNumber(number string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.OrderNumber == number {
			return r.copyOrder(o), nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *fakeRepo) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staleKeyLookups > 0 {
		r.staleKeyLookups--
		return nil, nil
	}
	for _, o := range r.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return r.copyOrder(o), nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			out = append(out, *r.copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *fakeRepo) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.Status = status
	return nil
}

func (r *fakeRepo) GetCustomerSummary(ctx context.Context, id int64) (*models.CustomerSummary, error) {
	return &models.CustomerSummary{ID: id, Name: "Test Customer", Email: "customer@example.com"}, nil
}

func (r *fakeRepo) GetProductSummaries(ctx context.Context, ids []int64) (map[int64]models.ProductSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]models.ProductSummary, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out[id] = models.ProductSummary{ID: p.ID, Name: p.Name, Category: p.Category}
		}
	}
	return out, nil
}

func (r *fakeRepo) CreateReturnRequest(ctx context.Context, rr *models.ReturnRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.returns {
		if existing.OrderID == rr.OrderID {
			return fmt.Errorf("return request: %w", store.ErrDuplicate)
		}
	}
	r.nextReturnID++
	rr.ID = r.nextReturnID
	cp := *rr
	r.returns[rr.ID] = &cp
	return nil
}

func (r *fakeRepo) GetReturnRequestByOrderID(ctx context.Context, orderID int64) (*models.ReturnRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rr := range r.returns {
		if rr.OrderID == orderID {
			cp := *rr
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *fakeRepo) UpdateReturnRequestStatus(ctx context.Context, id int64, status models.ReturnStatus) (*models.ReturnRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rr, ok := r.returns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	rr.Status = status
	cp := *rr
	return &cp, nil
}

func (r *fakeRepo) ListStockMovements(ctx context.Context, productID int64) ([]models.StockMovement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.StockMovement
	for _, m := range r.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out, nil
}

// fakeCache is an in-memory Cache
type fakeCache struct {
	mu       sync.Mutex
	locks    map[string]string
	tracking map[string][]byte
	err      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{locks: make(map[string]string), tracking: make(map[string][]byte)}
}

func (c *fakeCache) AcquireIdempotencyLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", false, c.err
	}
	if _, held := c.locks[key]; held {
		return "", false, nil
	}
	token := "token-" + key
	c.locks[key] = token
	return token, true, nil
}

func (c *fakeCache) ReleaseIdempotencyLock(ctx context.Context, key, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locks[key] == token {
		delete(c.locks, key)
	}
	return nil
}

func (c *fakeCache) GetTrackedOrder(ctx context.Context, orderNumber string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	data, ok := c.tracking[orderNumber]
	return data, ok, nil
}

func (c *fakeCache) SetTrackedOrder(ctx context.Context, orderNumber string, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.tracking[orderNumber] = data
	return nil
}

func (c *fakeCache) InvalidateTrackedOrder(ctx context.Context, orderNumber string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracking, orderNumber)
	return nil
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockPublisher) PublishReturnRequested(ctx context.Context, event *models.ReturnRequestedEvent) error {
	return m.Called(ctx, event).Error(0)
}

// quietPublisher accepts every event
func quietPublisher() *mockPublisher {
	p := new(mockPublisher)
	p.On("PublishOrderPlaced", mock.Anything, mock.Anything).Return(nil).Maybe()
	p.On("PublishOrderStatusChanged", mock.Anything, mock.Anything).Return(nil).Maybe()
	p.On("PublishReturnRequested", mock.Anything, mock.Anything).Return(nil).Maybe()
	return p
}
