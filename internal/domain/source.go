package domain

import "context"

// Source families. A store keeps one external identifier per family.
const (
	FamilyKroger  = "kroger"
	FamilyWalmart = "walmart"
	FamilySafeway = "safeway"
	FamilyAldi    = "aldi"
)

// Quote is the outcome of a single price lookup: either a price in Unit, or not found.
// Unit may differ from the requested unit when the source prices by package.
type Quote struct {
	Price float64 `json:"price"`
	Unit  string  `json:"unit"`
	Found bool    `json:"found"`
}

// Found builds a quote carrying a price
func Found(price float64, unit string) Quote {
	return Quote{Price: price, Unit: unit, Found: true}
}

// NotFound builds an empty quote for the requested unit
func NotFound(unit string) Quote {
	return Quote{Unit: unit}
}

// PriceSource looks up prices at one retailer or retailer family.
// FetchPrice never fails for ordinary misses: transport and parse problems yield NotFound.
// Implementations must be safe for concurrent use.
type PriceSource interface {
	SourceName() string
	FetchPrice(ctx context.Context, externalStoreID, ingredientName, unit string) Quote
}

// StoreLocator is implemented by sources that can discover their own store identifier near a coordinate
type StoreLocator interface {
	LookupStoreID(ctx context.Context, lat, lon float64, radiusMiles int) (string, bool)
}
