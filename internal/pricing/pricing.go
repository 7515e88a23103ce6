// Package pricing turns order lines into subtotal, tax, shipping and total.
// Price is a pure function: no side effects, deterministic for identical
// inputs, exact decimal arithmetic throughout.
package pricing

import (
	"github.com/shopspring/decimal"
)

type Config struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShippingCost      decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		TaxRate:               decimal.NewFromFloat(0.10),
		FreeShippingThreshold: decimal.NewFromInt(100),
		FlatShippingCost:      decimal.NewFromInt(10),
	}
}

type Line struct {
	Quantity  int32
	UnitPrice decimal.Decimal
}

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Price computes totals for the given lines. Shipping is free strictly
// above the threshold, flat otherwise. No rounding is applied.
func (e *Engine) Price(lines []Line) Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt32(line.Quantity)))
	}

	tax := subtotal.Mul(e.cfg.TaxRate)

	shipping := e.cfg.FlatShippingCost
	if subtotal.GreaterThan(e.cfg.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal.Add(tax).Add(shipping),
	}
}
