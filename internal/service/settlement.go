package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"storefront-api/internal/models"
	"storefront-api/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogStore is the only mutation surface the settlement engine has for
// inventory and orders. LockProduct and DecrementStock must execute inside
// the transaction opened by WithTx; the engine never reads stock outside
// the lock.
type CatalogStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockProduct(ctx context.Context, productID int64) (*models.Product, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	InsertOrder(ctx context.Context, order *models.Order) error
}

// SettlementPublisher reports settlement outcomes after the fact. Publish
// failures never affect the settlement itself.
type SettlementPublisher interface {
	PublishOrderSettled(ctx context.Context, event *models.OrderSettledEvent) error
	PublishSettlementFailed(ctx context.Context, event *models.SettlementFailedEvent) error
}

// CacheInvalidator drops cached catalog reads whose stock just changed.
type CacheInvalidator interface {
	InvalidateProducts(ctx context.Context) error
}

// SettlementService settles baskets: it validates and reserves stock under
// row locks, charges the payment provider, and records the order, all in
// one transaction. It holds no state between calls; concurrent settlements
// are serialized per product by the store's row locks.
//
// Settlement is NOT idempotent: submitting the same basket twice creates
// two orders and decrements stock twice. Callers that retry must accept
// the risk of double-settling; there is no deduplication key.
type SettlementService struct {
	store          CatalogStore
	payments       PaymentProvider
	publisher      SettlementPublisher
	cache          CacheInvalidator
	paymentTimeout time.Duration
	logger         *zap.Logger
}

// NewSettlementService creates a settlement engine. publisher and cache
// are optional; pass nil to disable event publishing or cache
// invalidation. paymentTimeout bounds the provider call so a hung gateway
// cannot hold row locks forever.
func NewSettlementService(
	store CatalogStore,
	payments PaymentProvider,
	publisher SettlementPublisher,
	cache CacheInvalidator,
	paymentTimeout time.Duration,
) *SettlementService {
	if paymentTimeout <= 0 {
		paymentTimeout = 30 * time.Second
	}
	return &SettlementService{
		store:          store,
		payments:       payments,
		publisher:      publisher,
		cache:          cache,
		paymentTimeout: paymentTimeout,
		logger:         util.GetLogger(),
	}
}

// Settle executes the basket as a single all-or-nothing transaction.
// On any failure the transaction is rolled back: no order is written and
// no stock stays decremented. The returned error is one of the typed
// failures in the models package for expected outcomes, or a wrapped
// infrastructure error otherwise.
func (s *SettlementService) Settle(ctx context.Context, basket []models.BasketLine, paymentToken string) (*models.Settlement, error) {
	ctx, span := util.StartSpan(ctx, "SettlementService.Settle")
	defer span.End()

	util.CheckoutAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.SettlementLatency.Observe(time.Since(start).Seconds())
	}()

	lines, err := coalesceBasket(basket)
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues(models.FailureReason(err)).Inc()
		return nil, err
	}

	var result *models.Settlement
	var settledLines []models.OrderLine
	err = s.store.WithTx(ctx, func(txCtx context.Context) error {
		settled, txLines, txErr := s.settleLocked(txCtx, lines, paymentToken)
		if txErr != nil {
			return txErr
		}
		result = settled
		settledLines = txLines
		return nil
	})
	if err != nil {
		reason := models.FailureReason(err)
		util.CheckoutFailedTotal.WithLabelValues(reason).Inc()
		if models.IsBusinessError(err) {
			s.logger.Info("Settlement rejected",
				zap.String("reason", reason),
				zap.Error(err))
		} else {
			s.logger.Error("Settlement failed", zap.Error(err))
		}
		s.reportFailure(ctx, reason, err)
		return nil, err
	}

	util.CheckoutSettledTotal.Inc()
	s.logger.Info("Order settled",
		zap.Int64("order_id", result.OrderID),
		zap.String("total", result.Total.String()),
		zap.String("payment_ref", result.Payment.Reference))

	s.reportSettled(ctx, result, settledLines)
	return result, nil
}

// settleLocked runs inside the settlement transaction.
func (s *SettlementService) settleLocked(ctx context.Context, lines []models.BasketLine, paymentToken string) (*models.Settlement, []models.OrderLine, error) {
	// Lock and validate every line before touching any stock. A failure on
	// the last line must leave the earlier ones untouched.
	locked := make([]*models.Product, len(lines))
	for i, line := range lines {
		product, err := s.store.LockProduct(ctx, line.ProductID)
		if err != nil {
			return nil, nil, err
		}
		if product.Stock < line.Quantity {
			return nil, nil, &models.InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: product.Stock,
			}
		}
		locked[i] = product
	}

	// Reserve. The unit price charged is the one read under the lock.
	var total models.Cents
	orderLines := make([]models.OrderLine, len(lines))
	for i, line := range lines {
		if err := s.store.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			return nil, nil, err
		}
		orderLines[i] = models.OrderLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: locked[i].Price,
		}
		total += locked[i].Price * models.Cents(line.Quantity)
	}

	receipt, err := s.charge(ctx, total, paymentToken)
	if err != nil {
		return nil, nil, err
	}

	order := &models.Order{
		Total:      total,
		PaymentRef: receipt.Reference,
		Lines:      orderLines,
	}
	if err := s.store.InsertOrder(ctx, order); err != nil {
		return nil, nil, err
	}

	return &models.Settlement{
		OrderID: order.ID,
		Total:   total,
		Payment: *receipt,
	}, orderLines, nil
}

// charge invokes the provider with a bounded deadline. A decline, a
// provider error, and a timeout all roll back the transaction the same way.
func (s *SettlementService) charge(ctx context.Context, amount models.Cents, token string) (*models.PaymentReceipt, error) {
	chargeCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	receipt, err := s.payments.Charge(chargeCtx, amount, token)
	util.PaymentLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.PaymentFailedTotal.Inc()
		var decline *DeclineError
		if errors.As(err, &decline) {
			return nil, &models.PaymentDeclinedError{Reason: decline.Reason}
		}
		return nil, &models.PaymentDeclinedError{Reason: err.Error()}
	}

	util.PaymentSuccessTotal.Inc()
	return receipt, nil
}

// coalesceBasket validates quantities and merges duplicate product ids
// into single lines so one combined quantity is checked against stock.
// Lines come back sorted by product id, giving every settlement the same
// lock acquisition order.
func coalesceBasket(basket []models.BasketLine) ([]models.BasketLine, error) {
	if len(basket) == 0 {
		return nil, models.ErrEmptyBasket
	}

	merged := make(map[int64]int, len(basket))
	for _, line := range basket {
		if line.Quantity < 1 {
			return nil, models.ErrInvalidQuantity
		}
		merged[line.ProductID] += line.Quantity
	}

	lines := make([]models.BasketLine, 0, len(merged))
	for id, qty := range merged {
		lines = append(lines, models.BasketLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func (s *SettlementService) reportSettled(ctx context.Context, result *models.Settlement, lines []models.OrderLine) {
	if s.cache != nil {
		if err := s.cache.InvalidateProducts(ctx); err != nil {
			s.logger.Warn("Failed to invalidate catalog cache", zap.Error(err))
		}
	}

	if s.publisher == nil {
		return
	}

	items := make([]models.OrderItemData, len(lines))
	for i, line := range lines {
		items[i] = models.OrderItemData{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
	}
	event := &models.OrderSettledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderSettled,
			Timestamp: time.Now(),
		},
		OrderID:    result.OrderID,
		Total:      result.Total,
		PaymentRef: result.Payment.Reference,
		Lines:      items,
	}
	if err := s.publisher.PublishOrderSettled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderSettled event", zap.Error(err))
	}
}

func (s *SettlementService) reportFailure(ctx context.Context, reason string, cause error) {
	if s.publisher == nil || !models.IsBusinessError(cause) {
		return
	}

	event := &models.SettlementFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSettlementFailed,
			Timestamp: time.Now(),
		},
		Reason: reason,
		Detail: cause.Error(),
	}
	if err := s.publisher.PublishSettlementFailed(ctx, event); err != nil {
		s.logger.Error("Failed to publish SettlementFailed event", zap.Error(err))
	}
}
