package service

import "errors"

var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrProductNotFound        = errors.New("product not found")
	ErrProductUnavailable     = errors.New("product unavailable")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrInvalidTransition      = errors.New("status transition not allowed")
	ErrOrderNotDelivered      = errors.New("return requests are only accepted for delivered orders")
	ErrDuplicateReturnRequest = errors.New("a return request already exists for this order")
	ErrReturnRequestNotFound  = errors.New("return request not found")
	ErrCheckoutInProgress     = errors.New("a checkout with this idempotency key is already in progress")
	ErrIdempotencyKeyReused   = errors.New("idempotency key already used")
	ErrForbidden              = errors.New("forbidden")
)

// failureReason is the metrics label for a rejected checkout
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrCheckoutInProgress), errors.Is(err, ErrIdempotencyKeyReused):
		return "idempotency"
	default:
		return "db_error"
	}
}
