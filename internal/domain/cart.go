package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	UserID    string     `json:"user_id"`
	Lines     []CartLine `json:"lines"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartLine struct {
	ProductID int64     `json:"product_id"`
	Quantity  int32     `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// ClampAdd returns the quantity after adding one unit of a product,
// capped at the current stock. An existing quantity never decreases.
func ClampAdd(existing, stock int32) int32 {
	next := existing + 1
	if next > stock {
		next = stock
	}
	if next < existing {
		return existing
	}
	return next
}

// ClampQuantity caps a requested quantity at the current stock.
func ClampQuantity(requested, stock int32) int32 {
	if requested > stock {
		return stock
	}
	return requested
}

// CartView is the read model returned to callers: lines joined with
// current catalog data, totals recomputed on every read.
type CartView struct {
	UserID    string          `json:"user_id"`
	Items     []CartViewItem  `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int32           `json:"item_count"`
}

type CartViewItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}
