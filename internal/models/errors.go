package models

import (
	"errors"
	"fmt"
)

// Failure reasons surfaced to callers and used as metric labels.
const (
	ReasonInvalidRequest    = "invalid_request"
	ReasonProductNotFound   = "product_not_found"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonPaymentDeclined   = "payment_declined"
	ReasonStoreUnavailable  = "store_unavailable"
)

var (
	// ErrEmptyBasket rejects a settlement with no lines. Returned before
	// any store access.
	ErrEmptyBasket = errors.New("basket is empty")

	// ErrInvalidQuantity rejects a line whose quantity is < 1. Returned
	// before any store access.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// ProductNotFoundError means a basket referenced a product id that does
// not exist in the catalog.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InsufficientStockError means the locked stock for a product was lower
// than the requested quantity.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// PaymentDeclinedError means the payment provider rejected or failed the
// charge. The settlement transaction has been rolled back in full.
type PaymentDeclinedError struct {
	Reason string
}

func (e *PaymentDeclinedError) Error() string {
	return fmt.Sprintf("payment declined: %s", e.Reason)
}

// FailureReason classifies a settlement error into the caller-facing
// taxonomy. Unknown errors are infrastructure failures.
func FailureReason(err error) string {
	var notFound *ProductNotFoundError
	var stock *InsufficientStockError
	var declined *PaymentDeclinedError

	switch {
	case errors.Is(err, ErrEmptyBasket), errors.Is(err, ErrInvalidQuantity):
		return ReasonInvalidRequest
	case errors.As(err, &notFound):
		return ReasonProductNotFound
	case errors.As(err, &stock):
		return ReasonInsufficientStock
	case errors.As(err, &declined):
		return ReasonPaymentDeclined
	default:
		return ReasonStoreUnavailable
	}
}

// IsBusinessError reports whether the error is an expected settlement
// outcome rather than an infrastructure failure.
func IsBusinessError(err error) bool {
	return FailureReason(err) != ReasonStoreUnavailable
}
