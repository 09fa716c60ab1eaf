package models

import "time"

// Product represents a catalog row. Stock is mutated only by settlement.
type Product struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Image string `db:"image" json:"image"`
	Price Cents  `db:"price_cents" json:"price"`
	Stock int    `db:"stock" json:"stock"`
}

// BasketLine is one requested (product, quantity) pair. Baskets are
// transient: built by the client, consumed by settlement, never persisted.
type BasketLine struct {
	ProductID int64
	Quantity  int
}

// Order is an immutable record of a settled basket.
type Order struct {
	ID         int64       `db:"id" json:"id"`
	Total      Cents       `db:"total_cents" json:"total"`
	PaymentRef string      `db:"payment_ref" json:"payment_ref"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	Lines      []OrderLine `db:"-" json:"lines,omitempty"`
}

// OrderLine captures the unit price read under the row lock at validation
// time, so the recorded total always matches what was validated.
type OrderLine struct {
	ID        int64 `db:"id" json:"-"`
	OrderID   int64 `db:"order_id" json:"-"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice Cents `db:"unit_price_cents" json:"unit_price"`
}

// PaymentReceipt is the provider's answer to a successful charge.
type PaymentReceipt struct {
	Success   bool   `json:"success"`
	Provider  string `json:"provider"`
	Reference string `json:"reference"`
}

// Settlement is the successful outcome of settling a basket.
type Settlement struct {
	OrderID int64
	Total   Cents
	Payment PaymentReceipt
}
