package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-api/internal/models"
)

// InsertOrder writes the order row and all its lines. Must run inside the
// settlement transaction so the order and the stock decrement become
// durable together. Order rows are never updated afterwards.
func (s *Store) InsertOrder(ctx context.Context, order *models.Order) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return errors.New("InsertOrder requires an active transaction")
	}

	const orderStmt = `
		INSERT INTO orders (total_cents, payment_ref)
		VALUES ($1, $2)
		RETURNING id, created_at`

	if err := tx.GetContext(ctx, order, orderStmt, order.Total, order.PaymentRef); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	const lineStmt = `
		INSERT INTO order_lines (order_id, product_id, quantity, unit_price_cents)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		if err := tx.GetContext(ctx, &line.ID, lineStmt,
			line.OrderID, line.ProductID, line.Quantity, line.UnitPrice); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT id, total_cents, payment_ref, created_at FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderLinesByOrderID retrieves all lines for an order
func (s *Store) GetOrderLinesByOrderID(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := s.db.SelectContext(ctx, &lines,
		"SELECT id, order_id, product_id, quantity, unit_price_cents FROM order_lines WHERE order_id = $1 ORDER BY id",
		orderID)
	return lines, err
}
