package store

import (
	"context"
	"fmt"
	"math/rand"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	image TEXT NOT NULL DEFAULT '',
	price_cents BIGINT NOT NULL DEFAULT 0 CHECK (price_cents >= 0),
	stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0)
);

CREATE TABLE IF NOT EXISTS orders (
	id BIGSERIAL PRIMARY KEY,
	total_cents BIGINT NOT NULL,
	payment_ref TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS order_lines (
	id BIGSERIAL PRIMARY KEY,
	order_id BIGINT NOT NULL REFERENCES orders(id),
	product_id BIGINT NOT NULL REFERENCES products(id),
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	unit_price_cents BIGINT NOT NULL CHECK (unit_price_cents >= 0)
);
`

// InitSchema creates the tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// SeedProducts inserts sample catalog rows when the table is empty.
func (s *Store) SeedProducts(ctx context.Context, count int) (int, error) {
	var existing int
	if err := s.db.GetContext(ctx, &existing, "SELECT COUNT(*) FROM products"); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	const stmt = "INSERT INTO products (name, image, price_cents, stock) VALUES ($1, $2, $3, $4)"
	for i := 1; i <= count; i++ {
		name := fmt.Sprintf("Producto %d", i)
		image := fmt.Sprintf("https://picsum.photos/seed/p%d/300/300", i)
		priceCents := int64(1000 + rand.Intn(10000))
		stock := 1 + rand.Intn(10)

		if _, err := s.db.ExecContext(ctx, stmt, name, image, priceCents, stock); err != nil {
			return 0, fmt.Errorf("seed product %d: %w", i, err)
		}
	}
	return count, nil
}
