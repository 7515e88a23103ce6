package service

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart           = errors.New("cart is empty, nothing to order")
	ErrConcurrencyConflict = errors.New("cart was cleared by a concurrent checkout")
	ErrIllegalTransition   = errors.New("illegal status transition")
)

// ProductNotFoundError names the cart line whose product vanished
// between add-to-cart and checkout.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InsufficientStockError reports a line whose requested quantity exceeds
// the current stock. The caller can show the shortfall and let the
// shopper reduce the quantity.
type InsufficientStockError struct {
	ProductID int64
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d (short %d)",
		e.ProductID, e.Requested, e.Available, e.Shortfall())
}

func (e *InsufficientStockError) Shortfall() int32 {
	return e.Requested - e.Available
}
