// Package estimator prices ingredients from a static table of typical supermarket prices.
// It is the source of last resort and always answers.
package estimator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cartcost/backend/internal/domain"
	"github.com/cartcost/backend/internal/obs"
)

// SourceName identifies estimated quotes in the price cache
const SourceName = "safeway_fallback"

// DefaultStoreID is reported by LookupStoreID
const DefaultStoreID = "3132"

const (
	defaultPrice      = 2.99
	minimumSimilarity = 0.3
)

// Estimate is one row of the static price table
type Estimate struct {
	Name  string
	Price float64
}

// DefaultTable holds typical shelf prices. Produce and proteins are per lb,
// everything else per package as sold.
var DefaultTable = []Estimate{
	// produce
	{"apple", 1.99},
	{"banana", 0.79},
	{"orange", 1.49},
	{"onion", 1.29},
	{"potato", 1.49},
	{"tomato", 2.99},
	{"cucumber", 1.49},
	{"carrot", 1.29},
	{"bell pepper", 1.99},
	{"lettuce", 2.49},
	{"spinach", 3.49},
	{"broccoli", 2.49},
	{"garlic", 4.99},

	// dairy
	{"milk", 3.99},
	{"almond milk", 4.49},
	{"yogurt", 1.29},
	{"cheese", 4.99},
	{"butter", 4.99},
	{"cream cheese", 2.49},

	// proteins
	{"chicken breast", 5.99},
	{"ground beef", 4.99},
	{"salmon", 9.99},
	{"eggs", 3.49},
	{"tofu", 3.99},

	// pantry
	{"rice", 2.99},
	{"pasta", 1.49},
	{"bread", 2.99},
	{"oats", 3.99},
	{"flour", 3.49},
	{"sugar", 3.99},
	{"olive oil", 7.99},
	{"vinegar", 2.99},
	{"soy sauce", 3.49},

	// canned and jarred
	{"canned tomatoes", 1.49},
	{"beans", 1.29},
	{"tuna", 1.99},
	{"peanut butter", 4.99},

	// frozen
	{"frozen vegetables", 2.49},
	{"frozen fruit", 3.99},

	// herbs
	{"basil", 2.49},
	{"parsley", 1.99},
	{"cilantro", 1.99},
	{"oregano", 1.99},
	{"thyme", 2.49},
	{"rosemary", 2.49},
}

type category struct {
	name     string
	keywords []string
	price    float64
}

// categories are checked in order; the first keyword hit wins
var categories = []category{
	{"produce", []string{"fresh", "organic", "vegetable", "fruit"}, 2.49},
	{"meat", []string{"chicken", "beef", "pork", "turkey", "meat", "fish"}, 6.99},
	{"dairy", []string{"milk", "cheese", "yogurt", "cream", "dairy"}, 3.99},
	{"pantry", []string{"flour", "sugar", "rice", "pasta", "oil", "spice", "sauce"}, 3.49},
	{"canned", []string{"canned", "jarred", "jar", "can"}, 1.99},
}

// Source implements domain.PriceSource and domain.StoreLocator
type Source struct {
	table  []Estimate
	index  map[string]float64
	logger *slog.Logger
}

// New creates an estimator over table, or DefaultTable when table is empty
func New(table []Estimate) *Source {
	if len(table) == 0 {
		table = DefaultTable
	}
	index := make(map[string]float64, len(table))
	for _, e := range table {
		index[strings.ToLower(e.Name)] = e.Price
	}
	return &Source{table: table, index: index, logger: obs.Component("estimator")}
}

// SourceName implements domain.PriceSource
func (s *Source) SourceName() string {
	return SourceName
}

// FetchPrice implements domain.PriceSource. The quote is always found and carries the requested unit.
func (s *Source) FetchPrice(ctx context.Context, externalStoreID, ingredientName, unit string) domain.Quote {
	return domain.Found(s.Estimate(ingredientName), unit)
}

// Estimate returns the table price for name using exact, similarity, category and default matching in that order
func (s *Source) Estimate(name string) float64 {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return defaultPrice
	}

	if price, ok := s.index[key]; ok {
		return price
	}

	var (
		best      Estimate
		bestScore float64
	)
	for _, e := range s.table {
		score := similarity(key, strings.ToLower(e.Name))
		if score > bestScore && score > minimumSimilarity {
			best, bestScore = e, score
		}
	}
	if bestScore > 0 {
		s.logger.Debug("estimated from similar item", "ingredient", name, "matched", best.Name, "price", best.Price)
		return best.Price
	}

	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(key, kw) {
				s.logger.Debug("estimated from category", "ingredient", name, "category", c.name, "price", c.price)
				return c.price
			}
		}
	}
	return defaultPrice
}

// LookupStoreID implements domain.StoreLocator. Estimates are not store specific.
func (s *Source) LookupStoreID(ctx context.Context, lat, lon float64, radiusMiles int) (string, bool) {
	return DefaultStoreID, true
}
