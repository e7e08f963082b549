package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cartcost/backend/internal/domain"
	"github.com/cartcost/backend/internal/infrastructure/httpfetch"
	"github.com/cartcost/backend/internal/obs"
)

// Config describes one scraped storefront
type Config struct {
	Name string
	// SearchURL may contain {query} and {store} placeholders
	SearchURL string
	// DefaultStoreID is used when a store has no identifier and is what LookupStoreID reports
	DefaultStoreID string
	MinPrice       float64
	MaxPrice       float64
	// Selectors replaces DefaultSelectors when set
	Selectors []string
	Timeout   time.Duration
	// RequestsPerSecond throttles requests to the storefront
	RequestsPerSecond float64
}

// Source is a price source backed by a search results page
type Source struct {
	cfg       Config
	client    *httpfetch.Client
	extractor *Extractor
	logger    *slog.Logger
}

// New creates a scraping source
func New(cfg Config) *Source {
	if cfg.MinPrice <= 0 {
		cfg.MinPrice = 0.01
	}
	if cfg.MaxPrice <= 0 {
		cfg.MaxPrice = 50.0
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	extractor := NewExtractor(cfg.MinPrice, cfg.MaxPrice)
	if len(cfg.Selectors) > 0 {
		extractor.Selectors = cfg.Selectors
	}

	return &Source{
		cfg: cfg,
		client: httpfetch.New(httpfetch.Options{
			Name:              cfg.Name,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             2,
			Headers: map[string]string{
				"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			},
		}),
		extractor: extractor,
		logger:    obs.Component("scraper").With("source", cfg.Name),
	}
}

// NewSafeway creates the Safeway search page scraper
func NewSafeway(baseURL, defaultStoreID string, timeout time.Duration) *Source {
	if baseURL == "" {
		baseURL = "https://www.safeway.com"
	}
	if defaultStoreID == "" {
		defaultStoreID = "3132"
	}
	return New(Config{
		Name:           "safeway_web",
		SearchURL:      baseURL + "/shop/search-results.html?q={query}&storeId={store}",
		DefaultStoreID: defaultStoreID,
		MinPrice:       0.01,
		MaxPrice:       50.0,
		Timeout:        timeout,
	})
}

// NewAldi creates the ALDI search page scraper
func NewAldi(baseURL string, timeout time.Duration) *Source {
	if baseURL == "" {
		baseURL = "https://www.aldi.us"
	}
	return New(Config{
		Name:           "aldi_web",
		SearchURL:      baseURL + "/en/products/search/?q={query}",
		DefaultStoreID: "aldi_default",
		MinPrice:       0.10,
		MaxPrice:       20.0,
		Selectors:      append([]string{`[class*="price"]`}, DefaultSelectors...),
		Timeout:        timeout,
	})
}

// SourceName implements domain.PriceSource
func (s *Source) SourceName() string {
	return s.cfg.Name
}

// FetchPrice implements domain.PriceSource. Scraped prices are reported in the requested unit.
func (s *Source) FetchPrice(ctx context.Context, externalStoreID, ingredientName, unit string) domain.Quote {
	store := externalStoreID
	if store == "" {
		store = s.cfg.DefaultStoreID
	}
	reqURL := strings.NewReplacer(
		"{query}", url.QueryEscape(ingredientName),
		"{store}", url.QueryEscape(store),
	).Replace(s.cfg.SearchURL)

	body, err := s.client.Get(ctx, reqURL, nil)
	if err != nil {
		s.logger.Debug("search page request failed", "ingredient", ingredientName, "error", err)
		return domain.NotFound(unit)
	}

	price, strategy, ok := s.extractor.Extract(string(body))
	if !ok {
		return domain.NotFound(unit)
	}
	s.logger.Debug("price extracted", "ingredient", ingredientName, "strategy", strategy, "price", price)
	return domain.Found(price, unit)
}

// LookupStoreID implements domain.StoreLocator. Storefront prices vary little by location,
// so every store maps onto the configured default store.
func (s *Source) LookupStoreID(ctx context.Context, lat, lon float64, radiusMiles int) (string, bool) {
	return s.cfg.DefaultStoreID, s.cfg.DefaultStoreID != ""
}
