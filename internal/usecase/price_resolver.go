package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cartcost/backend/internal/domain"
	"github.com/cartcost/backend/internal/obs"
	"github.com/cartcost/backend/internal/units"
)

var punctuationRegex = regexp.MustCompile(`[^\w\s]`)

// Outcome describes which stage of resolution produced a price
type Outcome string

const (
	OutcomeExact          Outcome = "exact"
	OutcomeConverted      Outcome = "converted"
	OutcomeGlobalFallback Outcome = "global_fallback"
	OutcomeDefault        Outcome = "default"
)

// Resolution is the detailed result of resolving one ingredient price
type Resolution struct {
	Price       float64 `json:"price"`
	Unit        string  `json:"unit"`
	Outcome     Outcome `json:"outcome"`
	StoreID     string  `json:"storeId,omitempty"`
	MatchedName string  `json:"matchedName,omitempty"`
	SourceUnit  string  `json:"sourceUnit,omitempty"`
	Multiplier  float64 `json:"multiplier,omitempty"`
}

// ResolutionObserver is notified of every resolution outcome (metrics)
type ResolutionObserver interface {
	ObserveResolution(outcome Outcome)
}

// PriceResolverConfig holds configuration for the price resolver
type PriceResolverConfig struct {
	// CandidateLimit caps the rows read per name variant
	CandidateLimit int
	Converter      *units.Converter
	// Cache memoizes resolutions until the next refresh; nil disables memoization
	Cache    domain.CacheRepository
	CacheTTL time.Duration
	Observer ResolutionObserver
	Logger   *slog.Logger
}

// PriceResolver picks the best usable cached price for an ingredient among candidate stores
type PriceResolver struct {
	prices      domain.PriceRepository
	stores      domain.StoreRepository
	multipliers *MultiplierTable
	converter   *units.Converter
	cache       domain.CacheRepository
	cacheTTL    time.Duration
	observer    ResolutionObserver
	limit       int
	logger      *slog.Logger
}

// NewPriceResolver creates a new price resolver with dependencies
func NewPriceResolver(
	prices domain.PriceRepository,
	stores domain.StoreRepository,
	multipliers *MultiplierTable,
	config PriceResolverConfig,
) *PriceResolver {
	limit := config.CandidateLimit
	if limit <= 0 {
		limit = 5
	}
	converter := config.Converter
	if converter == nil {
		converter = units.NewConverter(units.DefaultCalibration())
	}
	if multipliers == nil {
		multipliers = NewMultiplierTable(DefaultMultiplierData())
	}
	cacheTTL := config.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = time.Hour
	}
	logger := config.Logger
	if logger == nil {
		logger = obs.Component("price_resolver")
	}

	return &PriceResolver{
		prices:      prices,
		stores:      stores,
		multipliers: multipliers,
		converter:   converter,
		cache:       config.Cache,
		cacheTTL:    cacheTTL,
		observer:    config.Observer,
		limit:       limit,
		logger:      logger,
	}
}

// ResolvePrice returns the best price per unit for ingredient among storeIDs, or def when
// nothing usable exists. It never fails: storage errors count as missing data.
func (r *PriceResolver) ResolvePrice(ctx context.Context, storeIDs []string, ingredient, unit string, def float64) float64 {
	res, ok := r.Resolve(ctx, storeIDs, ingredient, unit)
	if !ok {
		return def
	}
	return res.Price
}

// Resolve is ResolvePrice with the details of how the price was found.
// The boolean is false when the caller's default should be used.
func (r *PriceResolver) Resolve(ctx context.Context, storeIDs []string, ingredient, unit string) (Resolution, bool) {
	cacheKey := resolutionCacheKey(storeIDs, ingredient, unit)
	if cached, ok := r.getFromCache(ctx, cacheKey); ok {
		r.observe(cached.Outcome)
		return cached, cached.Outcome != OutcomeDefault
	}

	res, ok := r.resolve(ctx, storeIDs, ingredient, unit)
	if !ok {
		res = Resolution{Unit: unit, Outcome: OutcomeDefault}
	}

	r.setInCache(ctx, cacheKey, res)
	r.observe(res.Outcome)
	return res, ok
}

// CoverageFor reports which stores have at least one cached price
func (r *PriceResolver) CoverageFor(ctx context.Context, storeIDs []string) (map[string]bool, error) {
	coverage := make(map[string]bool, len(storeIDs))
	if len(storeIDs) == 0 {
		return coverage, nil
	}

	found, err := r.prices.StoresWithPrices(ctx, storeIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	for _, id := range storeIDs {
		coverage[id] = found[id]
	}
	return coverage, nil
}

// Multipliers exposes the store multiplier table used for fallbacks
func (r *PriceResolver) Multipliers() *MultiplierTable {
	return r.multipliers
}

func (r *PriceResolver) resolve(ctx context.Context, storeIDs []string, ingredient, unit string) (Resolution, bool) {
	if strings.TrimSpace(ingredient) == "" {
		return Resolution{}, false
	}

	if res, ok := r.cheapest(ctx, storeIDs, ingredient, unit); ok {
		return res, true
	}
	if len(storeIDs) == 0 {
		return Resolution{}, false
	}

	// No usable price at the requested stores: take the global cheapest and scale it
	// to the requested stores' price level.
	global, ok := r.cheapest(ctx, nil, ingredient, unit)
	if !ok {
		return Resolution{}, false
	}

	multiplier := r.storeMultiplier(ctx, storeIDs)
	global.Price *= multiplier
	global.Multiplier = multiplier
	global.Outcome = OutcomeGlobalFallback
	return global, true
}

// cheapest walks the name variants and returns the minimum realistic price of the first
// variant that has one
func (r *PriceResolver) cheapest(ctx context.Context, storeIDs []string, ingredient, unit string) (Resolution, bool) {
	target := units.Normalize(unit)

	for _, variant := range NameVariants(ingredient) {
		candidates, err := r.prices.FindCheapest(ctx, domain.PriceQuery{
			StoreIDs:       storeIDs,
			IngredientName: variant,
			Limit:          r.limit,
		})
		if err != nil {
			r.logger.Warn("price lookup failed",
				"ingredient", variant,
				"stores", len(storeIDs),
				"error", err,
			)
			continue
		}

		var best Resolution
		found := false
		for _, c := range candidates {
			res, ok := r.evaluate(c, ingredient, unit, target)
			if !ok {
				continue
			}
			if !found || res.Price < best.Price {
				best, found = res, true
			}
		}
		if found {
			best.MatchedName = variant
			return best, true
		}
	}

	return Resolution{}, false
}

// evaluate brings a candidate into the target unit and applies the realism filter
func (r *PriceResolver) evaluate(c domain.PriceCandidate, ingredient, unit, target string) (Resolution, bool) {
	res := Resolution{
		Unit:       unit,
		StoreID:    c.StoreID,
		SourceUnit: c.Unit,
	}

	if units.Normalize(c.Unit) == target {
		res.Price = c.Price
		res.Outcome = OutcomeExact
	} else {
		converted, ok := r.converter.ConvertFor(c.Price, c.Unit, unit, ingredient)
		if !ok {
			return Resolution{}, false
		}
		res.Price = converted
		res.Outcome = OutcomeConverted
	}

	if !IsRealistic(res.Price, ingredient, unit) {
		return Resolution{}, false
	}
	return res, true
}

// storeMultiplier returns the lowest multiplier among the requested stores' display names
func (r *PriceResolver) storeMultiplier(ctx context.Context, storeIDs []string) float64 {
	if r.stores == nil {
		return 1.0
	}

	stores, err := r.stores.GetStores(ctx, storeIDs)
	if err != nil {
		r.logger.Warn("store lookup failed, using baseline multiplier", "error", err)
		return 1.0
	}
	if len(stores) == 0 {
		return 1.0
	}

	best := r.multipliers.MultiplierFor(stores[0].Name)
	for _, s := range stores[1:] {
		if m := r.multipliers.MultiplierFor(s.Name); m < best {
			best = m
		}
	}
	return best
}

func (r *PriceResolver) observe(outcome Outcome) {
	if r.observer != nil {
		r.observer.ObserveResolution(outcome)
	}
}

func (r *PriceResolver) getFromCache(ctx context.Context, key string) (Resolution, bool) {
	if r.cache == nil {
		return Resolution{}, false
	}
	value, err := r.cache.Get(ctx, key)
	if err != nil {
		return Resolution{}, false
	}
	switch v := value.(type) {
	case Resolution:
		return v, true
	case map[string]interface{}:
		// caches that serialize values hand back the decoded JSON object
		raw, err := json.Marshal(v)
		if err != nil {
			return Resolution{}, false
		}
		var res Resolution
		if err := json.Unmarshal(raw, &res); err != nil || res.Outcome == "" {
			return Resolution{}, false
		}
		return res, true
	}
	return Resolution{}, false
}

func (r *PriceResolver) setInCache(ctx context.Context, key string, res Resolution) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, key, res, r.cacheTTL); err != nil {
		r.logger.Debug("resolution cache write failed", "key", key, "error", err)
	}
}

// resolutionCacheKey builds "price:{stores}:{ingredient}:{unit}" with stores sorted
func resolutionCacheKey(storeIDs []string, ingredient, unit string) string {
	ids := append([]string(nil), storeIDs...)
	sort.Strings(ids)
	return fmt.Sprintf("price:%s:%s:%s",
		strings.Join(ids, ","),
		strings.ToLower(strings.TrimSpace(ingredient)),
		units.Normalize(unit),
	)
}

// NameVariants returns the spellings tried against the price cache, most specific first:
// raw, lower-cased, punctuation-stripped and title-cased. The cache matches names
// case-insensitively, so spellings that differ only in case are queried once.
func NameVariants(ingredient string) []string {
	raw := strings.TrimSpace(ingredient)
	if raw == "" {
		return nil
	}

	lower := strings.ToLower(raw)
	stripped := strings.Join(strings.Fields(punctuationRegex.ReplaceAllString(lower, " ")), " ")
	title := cases.Title(language.English).String(lower)

	fold := cases.Fold()
	variants := make([]string, 0, 2)
	seen := make(map[string]bool, 2)
	for _, v := range []string{raw, lower, stripped, title} {
		key := fold.String(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		variants = append(variants, v)
	}
	return variants
}
