package main

import (
	"context"
	"log"

	"storefront-api/config"
	"storefront-api/internal/store"
)

// Creates the schema and seeds sample products for local development.
func main() {
	cfg := config.Load()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to init schema: %v", err)
	}
	log.Println("Schema ready")

	seeded, err := db.SeedProducts(ctx, 15)
	if err != nil {
		log.Fatalf("Failed to seed products: %v", err)
	}
	if seeded > 0 {
		log.Printf("Seeded %d products", seeded)
	} else {
		log.Println("Products exist, skipping seed")
	}
}
