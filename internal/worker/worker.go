package worker

import (
	"context"
	"log"

	"storefront-api/internal/broker"
	"storefront-api/internal/models"
	"storefront-api/internal/redisclient"
)

// CacheWorker consumes settlement events and drops the cached catalog
// listing so every instance behind the load balancer serves fresh stock
// counts, not just the instance that settled the order.
type CacheWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	cache        *redisclient.Client
}

// NewCacheWorker creates a new cache worker
func NewCacheWorker(consumer *broker.Consumer, cache *redisclient.Client) *CacheWorker {
	eventHandler := broker.NewEventHandler()

	w := &CacheWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		cache:        cache,
	}
	eventHandler.OnOrderSettled(w.handleOrderSettled)
	return w
}

func (w *CacheWorker) handleOrderSettled(ctx context.Context, event *models.OrderSettledEvent) error {
	if err := w.cache.InvalidateProducts(ctx); err != nil {
		log.Printf("Failed to invalidate catalog cache for order %d: %v", event.OrderID, err)
		return err
	}
	return nil
}

// Start starts the worker
func (w *CacheWorker) Start(ctx context.Context) error {
	log.Println("Starting cache worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CacheWorker) Stop() error {
	log.Println("Stopping cache worker...")
	return w.consumer.Close()
}
