package domain

import "time"

// PriceRecord is one cached price observation for an ingredient at a store.
// Records are keyed by (StoreID, IngredientName); only the refresh pipeline writes them.
type PriceRecord struct {
	StoreID        string    `json:"storeId"`
	IngredientName string    `json:"ingredientName"`
	Unit           string    `json:"unit"`
	PricePerUnit   float64   `json:"pricePerUnit"`
	Source         string    `json:"source,omitempty"`
	LastSeenAt     time.Time `json:"lastSeenAt"`
}

// PriceKey identifies a cached price record
type PriceKey struct {
	StoreID        string
	IngredientName string
}

// Key returns the cache key of the record
func (r PriceRecord) Key() PriceKey {
	return PriceKey{StoreID: r.StoreID, IngredientName: r.IngredientName}
}

// PriceQuery filters cached price records.
// An empty StoreIDs slice means all stores.
type PriceQuery struct {
	StoreIDs       []string
	IngredientName string
	Limit          int
}

// PriceCandidate is a cached (price, unit) pair returned by a price query
type PriceCandidate struct {
	StoreID string  `json:"storeId"`
	Price   float64 `json:"price"`
	Unit    string  `json:"unit"`
}

// Ingredient is a (name, default unit) pair from the ingredient catalog
type Ingredient struct {
	Name        string `json:"name"`
	DefaultUnit string `json:"defaultUnit"`
}

// Store is a physical grocery location known to the store catalog
type Store struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Latitude    float64           `json:"lat"`
	Longitude   float64           `json:"lon"`
	ExternalIDs map[string]string `json:"externalIds,omitempty"`
}

// ExternalID returns the retailer-specific identifier for a source family, or "" when unresolved
func (s Store) ExternalID(family string) string {
	if s.ExternalIDs == nil {
		return ""
	}
	return s.ExternalIDs[family]
}

// HasCoordinates reports whether the store carries a usable location
func (s Store) HasCoordinates() bool {
	return s.Latitude != 0 || s.Longitude != 0
}

// RefreshReport summarizes one run of the refresh pipeline
type RefreshReport struct {
	RunID       string         `json:"runId"`
	StartedAt   time.Time      `json:"startedAt"`
	FinishedAt  time.Time      `json:"finishedAt"`
	Stores      int            `json:"stores"`
	Ingredients int            `json:"ingredients"`
	Tasks       int            `json:"tasks"`
	Found       int            `json:"found"`
	RowsWritten int            `json:"rowsWritten"`
	BySource    map[string]int `json:"bySource,omitempty"`
}
