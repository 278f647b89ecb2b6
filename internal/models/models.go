package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog entry. Stock is decremented by checkouts.
type Product struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Stock     int             `db:"stock" json:"stock"`
	Category  string          `db:"category" json:"category"`
	Active    bool            `db:"active" json:"active"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// ProductSummary is the live catalog view attached to order lines for display.
type ProductSummary struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Category string `db:"category" json:"category"`
}

// CustomerSummary is the user view attached to orders for display.
type CustomerSummary struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}

// Address is stored as a JSON document on the order row.
type Address struct {
	FullName   string `json:"fullName,omitempty"`
	Street     string `json:"street" binding:"required"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode" binding:"required"`
	Country    string `json:"country" binding:"required"`
	Phone      string `json:"phone,omitempty"`
}

// Value implements driver.Valuer
func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *Address) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = Address{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Address", src)
	}
}

// Order is a persisted checkout. Items are value copies taken at checkout time,
// so later catalog edits never change historical totals.
type Order struct {
	ID              int64            `db:"id" json:"id"`
	OrderNumber     string           `db:"order_number" json:"orderNumber"`
	CustomerID      int64            `db:"customer_id" json:"customerId"`
	Items           []OrderItem      `db:"-" json:"items"`
	Subtotal        decimal.Decimal  `db:"subtotal" json:"subtotal"`
	Tax             decimal.Decimal  `db:"tax" json:"tax"`
	Shipping        decimal.Decimal  `db:"shipping" json:"shipping"`
	Total           decimal.Decimal  `db:"total" json:"total"`
	Status          OrderStatus      `db:"status" json:"status"`
	ShippingAddress Address          `db:"shipping_address" json:"shippingAddress"`
	Notes           string           `db:"notes" json:"notes,omitempty"`
	IdempotencyKey  *string          `db:"idempotency_key" json:"-"`
	Customer        *CustomerSummary `db:"-" json:"customer,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updatedAt"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"-"`
	ProductID   int64           `db:"product_id" json:"productId"`
	ProductName string          `db:"product_name" json:"productName"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unitPrice"`
	Size        string          `db:"size" json:"size,omitempty"`
	Color       string          `db:"color" json:"color,omitempty"`
	Product     *ProductSummary `db:"-" json:"product,omitempty"`
}

// LineTotal returns unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ReturnRequest is the single follow-up request a customer may open on a delivered order.
type ReturnRequest struct {
	ID         int64        `db:"id" json:"id"`
	OrderID    int64        `db:"order_id" json:"orderId"`
	CustomerID int64        `db:"customer_id" json:"customerId"`
	Type       ReturnType   `db:"type" json:"type"`
	Reason     string       `db:"reason" json:"reason"`
	Items      ReturnItems  `db:"items" json:"items,omitempty"`
	Status     ReturnStatus `db:"status" json:"status"`
	CreatedAt  time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updatedAt"`
}

// ReturnItem names a subset of the order lines a return applies to.
type ReturnItem struct {
	ProductID int64 `json:"productId" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// ReturnItems is stored as a JSON array.
type ReturnItems []ReturnItem

// Value implements driver.Valuer
func (r ReturnItems) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner
func (r *ReturnItems) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	case nil:
		*r = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into ReturnItems", src)
	}
}

// StockMovement is an audit row describing one stock change.
type StockMovement struct {
	ID        int64     `db:"id" json:"id"`
	ProductID int64     `db:"product_id" json:"productId"`
	OrderID   int64     `db:"order_id" json:"orderId"`
	Delta     int       `db:"delta" json:"delta"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Stock movement reasons
const (
	MovementReasonCheckout = "checkout"
)
