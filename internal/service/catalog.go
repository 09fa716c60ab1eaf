package service

import (
	"context"

	"storefront-api/internal/models"
	"storefront-api/internal/util"

	"go.uber.org/zap"
)

// CatalogReader is the read path the storefront client browses before
// building a basket.
type CatalogReader interface {
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderLinesByOrderID(ctx context.Context, orderID int64) ([]models.OrderLine, error)
}

// ProductCache caches the catalog listing. A cache miss or error always
// falls through to the store.
type ProductCache interface {
	GetProducts(ctx context.Context) ([]models.Product, bool, error)
	SetProducts(ctx context.Context, products []models.Product) error
}

// CatalogService serves catalog and order reads. These are plain reads,
// never part of a settlement transaction; settlement re-reads stock under
// its own locks and ignores anything cached here.
type CatalogService struct {
	store  CatalogReader
	cache  ProductCache
	logger *zap.Logger
}

// NewCatalogService creates a catalog read service. cache may be nil.
func NewCatalogService(store CatalogReader, cache ProductCache) *CatalogService {
	return &CatalogService{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// ListProducts returns the catalog, read-through cached.
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	if s.cache != nil {
		products, ok, err := s.cache.GetProducts(ctx)
		if err != nil {
			s.logger.Warn("Catalog cache read failed, falling back to DB", zap.Error(err))
		} else if ok {
			util.CatalogCacheHits.Inc()
			return products, nil
		}
		util.CatalogCacheMisses.Inc()
	}

	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetProducts(ctx, products); err != nil {
			s.logger.Warn("Failed to populate catalog cache", zap.Error(err))
		}
	}
	return products, nil
}

// GetOrder retrieves a settled order together with its lines.
func (s *CatalogService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	lines, err := s.store.GetOrderLinesByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}
