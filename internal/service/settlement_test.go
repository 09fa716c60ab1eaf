package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore emulates the Postgres store: every product row carries its own
// lock that is held until the surrounding transaction ends, and mutations
// are journaled so a failed transaction rolls back completely. Concurrent
// settlements therefore contend exactly the way FOR UPDATE makes them.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[int64]*fakeRow
	orders  []models.Order
	nextID  int64
	txCount int64
}

type fakeRow struct {
	mu      sync.Mutex
	product models.Product
}

type fakeTxKey struct{}

type fakeTx struct {
	locked  []*fakeRow
	undo    []func()
	pending []*models.Order
}

func newFakeStore(products ...models.Product) *fakeStore {
	rows := make(map[int64]*fakeRow, len(products))
	for _, p := range products {
		rows[p.ID] = &fakeRow{product: p}
	}
	return &fakeStore{rows: rows}
}

func txOf(ctx context.Context) *fakeTx {
	tx, _ := ctx.Value(fakeTxKey{}).(*fakeTx)
	return tx
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	atomic.AddInt64(&f.txCount, 1)
	tx := &fakeTx{}
	err := fn(context.WithValue(ctx, fakeTxKey{}, tx))
	if err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
	} else {
		f.mu.Lock()
		for _, o := range tx.pending {
			f.orders = append(f.orders, *o)
		}
		f.mu.Unlock()
	}
	for i := len(tx.locked) - 1; i >= 0; i-- {
		tx.locked[i].mu.Unlock()
	}
	return err
}

func (f *fakeStore) LockProduct(ctx context.Context, productID int64) (*models.Product, error) {
	tx := txOf(ctx)
	if tx == nil {
		return nil, errors.New("LockProduct requires an active transaction")
	}

	f.mu.Lock()
	row, ok := f.rows[productID]
	f.mu.Unlock()
	if !ok {
		return nil, &models.ProductNotFoundError{ProductID: productID}
	}

	row.mu.Lock()
	tx.locked = append(tx.locked, row)
	p := row.product
	return &p, nil
}

func (f *fakeStore) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	tx := txOf(ctx)
	if tx == nil {
		return errors.New("DecrementStock requires an active transaction")
	}

	f.mu.Lock()
	row, ok := f.rows[productID]
	f.mu.Unlock()
	if !ok {
		return &models.ProductNotFoundError{ProductID: productID}
	}

	row.product.Stock -= quantity
	tx.undo = append(tx.undo, func() { row.product.Stock += quantity })
	return nil
}

func (f *fakeStore) InsertOrder(ctx context.Context, order *models.Order) error {
	tx := txOf(ctx)
	if tx == nil {
		return errors.New("InsertOrder requires an active transaction")
	}

	order.ID = atomic.AddInt64(&f.nextID, 1)
	order.CreatedAt = time.Now()
	tx.pending = append(tx.pending, order)
	return nil
}

func (f *fakeStore) stock(productID int64) int {
	f.mu.Lock()
	row := f.rows[productID]
	f.mu.Unlock()
	row.mu.Lock()
	defer row.mu.Unlock()
	return row.product.Stock
}

func (f *fakeStore) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

// fakeProvider approves every charge unless told otherwise.
type fakeProvider struct {
	err      error
	block    bool
	mu       sync.Mutex
	attempts int
}

func (p *fakeProvider) Charge(ctx context.Context, amount models.Cents, token string) (*models.PaymentReceipt, error) {
	p.mu.Lock()
	p.attempts++
	p.mu.Unlock()

	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	return &models.PaymentReceipt{Success: true, Provider: "fake", Reference: "TXN-test"}, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	settled []*models.OrderSettledEvent
	failed  []*models.SettlementFailedEvent
}

func (p *fakePublisher) PublishOrderSettled(ctx context.Context, e *models.OrderSettledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settled = append(p.settled, e)
	return nil
}

func (p *fakePublisher) PublishSettlementFailed(ctx context.Context, e *models.SettlementFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, e)
	return nil
}

func newTestService(store *fakeStore, provider PaymentProvider, publisher SettlementPublisher) *SettlementService {
	return NewSettlementService(store, provider, publisher, nil, time.Second)
}

func TestSettle_Success(t *testing.T) {
	store := newFakeStore(
		models.Product{ID: 1, Name: "A", Price: 1000, Stock: 5},
		models.Product{ID: 2, Name: "B", Price: 499, Stock: 3},
	)
	publisher := &fakePublisher{}
	svc := newTestService(store, &fakeProvider{}, publisher)

	result, err := svc.Settle(context.Background(), []models.BasketLine{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	}, "tok")
	require.NoError(t, err)

	assert.Equal(t, "24.99", result.Total.String())
	assert.NotZero(t, result.OrderID)
	assert.True(t, result.Payment.Success)
	assert.Equal(t, "TXN-test", result.Payment.Reference)

	assert.Equal(t, 3, store.stock(1))
	assert.Equal(t, 2, store.stock(2))

	require.Equal(t, 1, store.orderCount())
	order := store.orders[0]
	assert.Equal(t, models.Cents(2499), order.Total)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, models.Cents(1000), order.Lines[0].UnitPrice)
	assert.Equal(t, models.Cents(499), order.Lines[1].UnitPrice)

	require.Len(t, publisher.settled, 1)
	assert.Equal(t, result.OrderID, publisher.settled[0].OrderID)
}

func TestSettle_InvalidBasket(t *testing.T) {
	store := newFakeStore(models.Product{ID: 1, Price: 1000, Stock: 5})
	svc := newTestService(store, &fakeProvider{}, nil)

	_, err := svc.Settle(context.Background(), nil, "")
	assert.ErrorIs(t, err, models.ErrEmptyBasket)

	_, err = svc.Settle(context.Background(), []models.BasketLine{{ProductID: 1, Quantity: 0}}, "")
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)

	// Neither attempt may touch the store.
	assert.Zero(t, atomic.LoadInt64(&store.txCount))
	assert.Equal(t, 5, store.stock(1))
}

func TestSettle_ProductNotFound(t *testing.T) {
	store := newFakeStore(models.Product{ID: 1, Price: 1000, Stock: 5})
	svc := newTestService(store, &fakeProvider{}, nil)

	_, err := svc.Settle(context.Background(), []models.BasketLine{
		{ProductID: 1, Quantity: 1},
		{ProductID: 99, Quantity: 1},
	}, "")

	var notFound *models.ProductNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, int64(99), notFound.ProductID)

	// The passing line must not stay decremented.
	assert.Equal(t, 5, store.stock(1))
	assert.Zero(t, store.orderCount())
}

func TestSettle_InsufficientStock(t *testing.T) {
	store := newFakeStore(
		models.Product{ID: 1, Price: 1000, Stock: 5},
		models.Product{ID: 2, Price: 200, Stock: 1},
	)
	svc := newTestService(store, &fakeProvider{}, nil)

	_, err := svc.Settle(context.Background(), []models.BasketLine{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 3},
	}, "")

	var stockErr *models.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(2), stockErr.ProductID)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)

	assert.Equal(t, 5, store.stock(1))
	assert.Equal(t, 1, store.stock(2))
	assert.Zero(t, store.orderCount())
}

func TestSettle_ExactStockDrainsToZero(t *testing.T) {
	store := newFakeStore(models.Product{ID: 1, Price: 750, Stock: 4})
	svc := newTestService(store, &fakeProvider{}, nil)

	result, err := svc.Settle(context.Background(), []models.BasketLine{{ProductID: 1, Quantity: 4}}, "")
	require.NoError(t, err)
	assert.Equal(t, models.Cents(3000), result.Total)
	assert.Equal(t, 0, store.stock(1))
}

func TestSettle_DuplicateLinesCoalesced(t *testing.T) {
	store := newFakeStore(models.Product{ID: 1, Price: 1000, Stock: 4})
	svc := newTestService(store, &fakeProvider{}, nil)

	// Combined demand is 5 against stock 4. Two independent validations
	// would each pass; the coalesced one must not.
	_, err := svc.Settle(context.Background(), []models.BasketLine{
		{ProductID: 1, Quantity: 3},
		{ProductID: 1, Quantity: 2},
	}, "")

	var stockErr *models.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 5, stockErr.Requested)
	assert.Equal(t, 4, stockErr.Available)
	assert.Equal(t, 4, store.stock(1))
}

func TestSettle_DuplicateLinesWithinStockSucceed(t *testing.T) {
	store := newFakeStore(models.Product{ID: 1, Price: 100, Stock: 5})
	svc := newTestService(store, &fakeProvider{}, nil)

	result, err := svc.Settle(context.Background(), []models.BasketLine{
		{ProductID: 1, Quantity: 2},
		{ProductID: 1, Quantity: 2},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, models.Cents(400), result.Total)
	assert.Equal(t, 1, store.stock(1))

	require.Equal(t, 1, store.orderCount())
	require.Len(t, store.orders[0].Lines, 1)
	assert.Equal(t, 4, store.orders[0].Lines[0].Quantity)
}

func TestSettle_PaymentDeclinedRollsBack(t *testing.T) {
	store := newFakeStore(models.Product{ID: 1, Price: 1000, Stock: 5})
	publisher := &fakePublisher{}
	provider := &fakeProvider{err: &DeclineError{Reason: "card refused"}}
	svc := newTestService(store, provider, publisher)

	_, err := svc.Settle(context.Background(), []models.BasketLine{{ProductID: 1, Quantity: 2}}, "")

	var declined *models.PaymentDeclinedError
	require.ErrorAs(t, err, &declined)
	assert.Equal(t, "card refused", declined.Reason)

	// Stock must be back at its pre-call value and no order written.
	assert.Equal(t, 5, store.stock(1))
	assert.Zero(t, store.orderCount())

	require.Len(t, publisher.failed, 1)
	assert.Equal(t, models.ReasonPaymentDeclined, publisher.failed[0].Reason)
}

func TestSettle_ProviderErrorTreatedAsDecline(t *testing.T) {
	store := newFakeStore(models.Product{ID: 1, Price: 1000, Stock: 5})
	provider := &fakeProvider{err: errors.New("gateway unreachable")}
	svc := newTestService(store, provider, nil)

	_, err := svc.Settle(context.Background(), []models.BasketLine{{ProductID: 1, Quantity: 1}}, "")

	var declined *models.PaymentDeclinedError
	require.ErrorAs(t, err, &declined)
	assert.Equal(t, 5, store.stock(1))
	assert.Zero(t, store.orderCount())
}

func TestSettle_PaymentTimeoutRollsBack(t *testing.T) {
	store := newFakeStore(models.Product{ID: 1, Price: 1000, Stock: 5})
	provider := &fakeProvider{block: true}
	svc := NewSettlementService(store, provider, nil, nil, 20*time.Millisecond)

	start := time.Now()
	_, err := svc.Settle(context.Background(), []models.BasketLine{{ProductID: 1, Quantity: 1}}, "")

	var declined *models.PaymentDeclinedError
	require.ErrorAs(t, err, &declined)
	assert.Less(t, time.Since(start), 2*time.Second, "hung provider must not hold the lock")
	assert.Equal(t, 5, store.stock(1))
	assert.Zero(t, store.orderCount())
}

func TestSettle_ConcurrentLastUnit(t *testing.T) {
	store := newFakeStore(models.Product{ID: 1, Price: 1000, Stock: 1})
	svc := newTestService(store, &fakeProvider{}, nil)

	const n = 8
	var wg sync.WaitGroup
	var successes, stockFailures int64

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Settle(context.Background(), []models.BasketLine{{ProductID: 1, Quantity: 1}}, "")
			if err == nil {
				atomic.AddInt64(&successes, 1)
				return
			}
			var stockErr *models.InsufficientStockError
			if errors.As(err, &stockErr) {
				atomic.AddInt64(&stockFailures, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes, "exactly one settlement wins the last unit")
	assert.Equal(t, int64(n-1), stockFailures)
	assert.Equal(t, 0, store.stock(1))
	assert.Equal(t, 1, store.orderCount())
}

func TestSettle_ConcurrentNoOversell(t *testing.T) {
	const initialStock = 5
	store := newFakeStore(models.Product{ID: 1, Price: 500, Stock: initialStock})
	svc := newTestService(store, &fakeProvider{}, nil)

	const n = 12
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Settle(context.Background(), []models.BasketLine{{ProductID: 1, Quantity: 1}}, "")
		}()
	}
	wg.Wait()

	sold := 0
	for _, order := range store.orders {
		for _, line := range order.Lines {
			if line.ProductID == 1 {
				sold += line.Quantity
			}
		}
	}
	assert.Equal(t, initialStock, sold, "quantities across orders never exceed initial stock")
	assert.Equal(t, 0, store.stock(1))
}

func TestCoalesceBasket_SortsByProductID(t *testing.T) {
	lines, err := coalesceBasket([]models.BasketLine{
		{ProductID: 9, Quantity: 1},
		{ProductID: 3, Quantity: 2},
		{ProductID: 9, Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(3), lines[0].ProductID)
	assert.Equal(t, int64(9), lines[1].ProductID)
	assert.Equal(t, 2, lines[1].Quantity)
}
