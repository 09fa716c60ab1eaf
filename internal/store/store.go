package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront-api/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store wraps the Postgres connection pool. It is constructed once and
// handed to the services that need it; nothing in this package holds
// process-wide state.
type Store struct {
	db *sqlx.DB
}

// NewStore connects to the database and returns a store handle.
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing handle. Used by tests and by callers
// that manage the pool themselves.
func NewStoreWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

type txKey struct{}

// WithTx runs fn inside a single transaction. The transaction rides in the
// context so every store call made from fn shares it; fn returning an error
// rolls the whole transaction back. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func txFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx
}

// LockProduct reads a product under an exclusive row lock. The lock is held
// until the surrounding transaction commits or rolls back, which is what
// serializes concurrent settlements touching the same product. Must be
// called inside WithTx.
func (s *Store) LockProduct(ctx context.Context, productID int64) (*models.Product, error) {
	tx := txFromContext(ctx)
	if tx == nil {
		return nil, errors.New("LockProduct requires an active transaction")
	}

	var product models.Product
	err := tx.GetContext(ctx, &product,
		"SELECT id, name, image, price_cents, stock FROM products WHERE id = $1 FOR UPDATE",
		productID)
	if err == sql.ErrNoRows {
		return nil, &models.ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return nil, fmt.Errorf("lock product %d: %w", productID, err)
	}
	return &product, nil
}

// DecrementStock reduces a product's stock. Callers must have locked the
// row first; the CHECK constraint on the column is the last line of defense
// against a negative balance.
func (s *Store) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return errors.New("DecrementStock requires an active transaction")
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1 WHERE id = $2",
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock for product %d: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &models.ProductNotFoundError{ProductID: productID}
	}
	return nil
}

// GetProducts retrieves the full catalog, ordered by id.
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT id, name, image, price_cents, stock FROM products ORDER BY id")
	return products, err
}

// GetProductByID retrieves a single product without locking it.
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT id, name, image, price_cents, stock FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, &models.ProductNotFoundError{ProductID: id}
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}
