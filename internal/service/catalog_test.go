package service

import (
	"context"
	"errors"
	"testing"

	"storefront-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	products []models.Product
	reads    int
}

func (f *fakeReader) GetProducts(ctx context.Context) ([]models.Product, error) {
	f.reads++
	return f.products, nil
}

func (f *fakeReader) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeReader) GetOrderLinesByOrderID(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	return nil, errors.New("not implemented")
}

type fakeCache struct {
	cached []models.Product
	sets   int
	err    error
}

func (f *fakeCache) GetProducts(ctx context.Context) ([]models.Product, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if f.cached == nil {
		return nil, false, nil
	}
	return f.cached, true, nil
}

func (f *fakeCache) SetProducts(ctx context.Context, products []models.Product) error {
	if f.err != nil {
		return f.err
	}
	f.cached = products
	f.sets++
	return nil
}

func TestListProducts_ReadThrough(t *testing.T) {
	reader := &fakeReader{products: []models.Product{{ID: 1, Name: "A", Price: 100, Stock: 2}}}
	cache := &fakeCache{}
	svc := NewCatalogService(reader, cache)

	// First call misses the cache and populates it.
	products, err := svc.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 1, reader.reads)
	assert.Equal(t, 1, cache.sets)

	// Second call is served from the cache.
	_, err = svc.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reader.reads)
}

func TestListProducts_CacheFailureFallsBackToStore(t *testing.T) {
	reader := &fakeReader{products: []models.Product{{ID: 1}}}
	cache := &fakeCache{err: errors.New("redis down")}
	svc := NewCatalogService(reader, cache)

	products, err := svc.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Equal(t, 1, reader.reads)
}

func TestListProducts_NoCacheConfigured(t *testing.T) {
	reader := &fakeReader{products: []models.Product{{ID: 1}}}
	svc := NewCatalogService(reader, nil)

	products, err := svc.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 1)
}
