package domain

import (
	"context"
	"time"
)

// PriceRepository defines the price cache read/write operations
type PriceRepository interface {
	// FindCheapest returns candidates matching the ingredient name case-insensitively,
	// restricted to StoreIDs when given, ordered by ascending price and capped at Limit.
	FindCheapest(ctx context.Context, query PriceQuery) ([]PriceCandidate, error)
	// UpsertPrices replaces records on conflicting (store, ingredient) keys.
	UpsertPrices(ctx context.Context, records []PriceRecord) error
	// StoresWithPrices reports which of the given stores have at least one cached price.
	StoresWithPrices(ctx context.Context, storeIDs []string) (map[string]bool, error)
}

// StoreRepository defines the store catalog operations used by pricing
type StoreRepository interface {
	ListStores(ctx context.Context) ([]Store, error)
	GetStores(ctx context.Context, ids []string) ([]Store, error)
	UpsertStore(ctx context.Context, store Store) error
	SetExternalID(ctx context.Context, storeID, family, externalID string) error
}

// IngredientRepository defines the ingredient catalog operations used by pricing
type IngredientRepository interface {
	ListIngredients(ctx context.Context) ([]Ingredient, error)
	UpsertIngredient(ctx context.Context, ingredient Ingredient) error
}

// CacheRepository memoizes resolved prices between refreshes
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Purge(ctx context.Context) error
}

// RefreshSink receives the rows written by a refresh run (archives, event streams)
type RefreshSink interface {
	Publish(ctx context.Context, report RefreshReport, records []PriceRecord) error
}
