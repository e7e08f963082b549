package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cartcost/backend/internal/domain"
	"github.com/cartcost/backend/internal/obs"
	"github.com/cartcost/backend/internal/units"
)

// SourceBinding attaches a price source to the stores it can serve
type SourceBinding struct {
	Source domain.PriceSource
	// Family selects the store's external identifier passed to the source.
	// Empty means the source needs none and receives the store's own ID.
	Family string
	// Banners are lower-case chain name fragments; a store is served (and its external ID
	// discovered) only when its display name contains one. Empty matches every store.
	Banners []string
}

func (b SourceBinding) matches(storeName string) bool {
	if len(b.Banners) == 0 {
		return true
	}
	name := strings.ToLower(storeName)
	for _, banner := range b.Banners {
		if strings.Contains(name, banner) {
			return true
		}
	}
	return false
}

// RefreshObserver is notified about fetches and completed runs (metrics)
type RefreshObserver interface {
	ObserveFetch(source string, found bool, elapsed time.Duration)
	ObserveRefresh(report domain.RefreshReport, err error)
}

// RefreshConfig holds configuration for the refresh pipeline
type RefreshConfig struct {
	// Concurrency caps simultaneous in-flight fetches
	Concurrency int
	// FetchTimeout bounds each single source call
	FetchTimeout      time.Duration
	LookupRadiusMiles int
	Converter         *units.Converter
	// Cache is purged after every successful write
	Cache    domain.CacheRepository
	Sinks    []domain.RefreshSink
	Observer RefreshObserver
	Logger   *slog.Logger
}

// RefreshService repopulates the price cache from every bound source
type RefreshService struct {
	prices      domain.PriceRepository
	stores      domain.StoreRepository
	ingredients domain.IngredientRepository
	bindings    []SourceBinding

	concurrency  int
	fetchTimeout time.Duration
	radius       int
	converter    *units.Converter
	cache        domain.CacheRepository
	sinks        []domain.RefreshSink
	observer     RefreshObserver
	logger       *slog.Logger
	now          func() time.Time

	running atomic.Bool
}

// NewRefreshService creates a new refresh service with dependencies
func NewRefreshService(
	prices domain.PriceRepository,
	stores domain.StoreRepository,
	ingredients domain.IngredientRepository,
	bindings []SourceBinding,
	config RefreshConfig,
) *RefreshService {
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 20
	}
	fetchTimeout := config.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 15 * time.Second
	}
	radius := config.LookupRadiusMiles
	if radius <= 0 {
		radius = 10
	}
	converter := config.Converter
	if converter == nil {
		converter = units.NewConverter(units.DefaultCalibration())
	}
	logger := config.Logger
	if logger == nil {
		logger = obs.Component("refresh")
	}

	return &RefreshService{
		prices:       prices,
		stores:       stores,
		ingredients:  ingredients,
		bindings:     bindings,
		concurrency:  concurrency,
		fetchTimeout: fetchTimeout,
		radius:       radius,
		converter:    converter,
		cache:        config.Cache,
		sinks:        config.Sinks,
		observer:     config.Observer,
		logger:       logger,
		now:          time.Now,
	}
}

// RefreshAllPrices runs one refresh and returns the number of rows written
func (s *RefreshService) RefreshAllPrices(ctx context.Context) (int, error) {
	report, err := s.RunRefresh(ctx)
	return report.RowsWritten, err
}

// Running reports whether a refresh is currently in progress
func (s *RefreshService) Running() bool {
	return s.running.Load()
}

// fetchTask is one (store, source, ingredient) lookup
type fetchTask struct {
	storeID    string
	externalID string
	binding    SourceBinding
	ingredient domain.Ingredient
}

// RunRefresh discovers missing external store IDs, fetches every (store, source, ingredient)
// price under bounded concurrency, keeps the lowest price per (store, ingredient) and
// upserts the result. Only catalog reads and the final write can fail the run.
func (s *RefreshService) RunRefresh(ctx context.Context) (domain.RefreshReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return domain.RefreshReport{}, domain.ErrRefreshInProgress
	}
	defer s.running.Store(false)

	report := domain.RefreshReport{
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
		BySource:  make(map[string]int),
	}
	logger := s.logger.With("run_id", report.RunID)

	report, records, err := s.run(ctx, logger, report)
	report.FinishedAt = s.now().UTC()
	if s.observer != nil {
		s.observer.ObserveRefresh(report, err)
	}
	if err != nil {
		logger.Error("refresh failed", "error", err)
		return report, err
	}

	s.afterWrite(ctx, logger, report, records)
	logger.Info("refresh complete",
		"stores", report.Stores,
		"ingredients", report.Ingredients,
		"tasks", report.Tasks,
		"found", report.Found,
		"rows_written", report.RowsWritten,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

func (s *RefreshService) run(ctx context.Context, logger *slog.Logger, report domain.RefreshReport) (domain.RefreshReport, []domain.PriceRecord, error) {
	stores, err := s.stores.ListStores(ctx)
	if err != nil {
		return report, nil, fmt.Errorf("%w: list stores: %v", domain.ErrStorageUnavailable, err)
	}
	stores = s.discoverExternalIDs(ctx, logger, stores)

	ingredients, err := s.ingredients.ListIngredients(ctx)
	if err != nil {
		return report, nil, fmt.Errorf("%w: list ingredients: %v", domain.ErrStorageUnavailable, err)
	}
	report.Stores = len(stores)
	report.Ingredients = len(ingredients)

	tasks := s.buildTasks(stores, ingredients)
	report.Tasks = len(tasks)

	found := s.fetchAll(ctx, tasks)
	report.Found = len(found)

	records := s.dedupe(found)
	seenAt := s.now().UTC()
	for i := range records {
		records[i].LastSeenAt = seenAt
		report.BySource[records[i].Source]++
	}

	if len(records) > 0 {
		if err := s.prices.UpsertPrices(ctx, records); err != nil {
			return report, nil, fmt.Errorf("%w: upsert prices: %v", domain.ErrStorageUnavailable, err)
		}
	}
	report.RowsWritten = len(records)
	logger.Debug("prices written", "rows", len(records))
	return report, records, nil
}

// discoverExternalIDs looks up and persists missing external identifiers for stores whose
// name matches a locating source's banners. Failures leave the store without that source.
func (s *RefreshService) discoverExternalIDs(ctx context.Context, logger *slog.Logger, stores []domain.Store) []domain.Store {
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i := range stores {
		store := &stores[i]
		if !store.HasCoordinates() {
			continue
		}
		g.Go(func() error {
			for _, b := range s.bindings {
				locator, ok := b.Source.(domain.StoreLocator)
				if !ok || b.Family == "" || store.ExternalID(b.Family) != "" || !b.matches(store.Name) {
					continue
				}

				lookupCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
				externalID, found := locator.LookupStoreID(lookupCtx, store.Latitude, store.Longitude, s.radius)
				cancel()
				if !found {
					logger.Debug("no nearby location", "store_id", store.ID, "source", b.Source.SourceName())
					continue
				}

				if err := s.stores.SetExternalID(ctx, store.ID, b.Family, externalID); err != nil {
					logger.Warn("failed to persist external id",
						"store_id", store.ID,
						"family", b.Family,
						"error", err,
					)
				}
				ids := maps.Clone(store.ExternalIDs)
				if ids == nil {
					ids = make(map[string]string)
				}
				ids[b.Family] = externalID
				store.ExternalIDs = ids
				logger.Info("discovered external store id",
					"store_id", store.ID,
					"family", b.Family,
					"external_id", externalID,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return stores
}

func (s *RefreshService) buildTasks(stores []domain.Store, ingredients []domain.Ingredient) []fetchTask {
	var tasks []fetchTask
	for _, store := range stores {
		for _, b := range s.bindings {
			externalID := store.ID
			if b.Family != "" {
				externalID = store.ExternalID(b.Family)
				if externalID == "" {
					continue
				}
			} else if !b.matches(store.Name) {
				continue
			}
			for _, ing := range ingredients {
				tasks = append(tasks, fetchTask{
					storeID:    store.ID,
					externalID: externalID,
					binding:    b,
					ingredient: ing,
				})
			}
		}
	}
	return tasks
}

// fetchAll runs every task under the concurrency ceiling and returns the records found.
// A slow or failing task yields nothing and never cancels its siblings.
func (s *RefreshService) fetchAll(ctx context.Context, tasks []fetchTask) []domain.PriceRecord {
	var (
		mu    sync.Mutex
		found []domain.PriceRecord
		g     errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, task := range tasks {
		g.Go(func() error {
			rec, ok := s.fetch(ctx, task)
			if ok {
				mu.Lock()
				found = append(found, rec)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return found
}

func (s *RefreshService) fetch(ctx context.Context, task fetchTask) (domain.PriceRecord, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	source := task.binding.Source.SourceName()
	start := time.Now()
	quote := task.binding.Source.FetchPrice(fetchCtx, task.externalID, task.ingredient.Name, task.ingredient.DefaultUnit)
	if s.observer != nil {
		s.observer.ObserveFetch(source, quote.Found, time.Since(start))
	}
	if !quote.Found || quote.Price <= 0 {
		return domain.PriceRecord{}, false
	}

	price, unit := quote.Price, quote.Unit
	if unit == "" {
		unit = task.ingredient.DefaultUnit
	}
	// Sources pricing by package report their own unit; store it in the catalog unit when possible.
	if units.Normalize(unit) != units.Normalize(task.ingredient.DefaultUnit) {
		if converted, ok := s.converter.ConvertFor(price, unit, task.ingredient.DefaultUnit, task.ingredient.Name); ok {
			price, unit = converted, task.ingredient.DefaultUnit
		}
	}

	return domain.PriceRecord{
		StoreID:        task.storeID,
		IngredientName: task.ingredient.Name,
		Unit:           unit,
		PricePerUnit:   price,
		Source:         source,
	}, true
}

// dedupe keeps one record per (store, ingredient): realistic prices beat unrealistic ones,
// then the lowest price wins
func (s *RefreshService) dedupe(records []domain.PriceRecord) []domain.PriceRecord {
	best := make(map[domain.PriceKey]domain.PriceRecord, len(records))
	realistic := make(map[domain.PriceKey]bool, len(records))
	order := make([]domain.PriceKey, 0, len(records))

	for _, rec := range records {
		key := rec.Key()
		ok := IsRealistic(rec.PricePerUnit, rec.IngredientName, rec.Unit)

		current, seen := best[key]
		switch {
		case !seen:
			order = append(order, key)
		case realistic[key] && !ok:
			continue
		case realistic[key] == ok && current.PricePerUnit <= rec.PricePerUnit:
			continue
		}
		best[key] = rec
		realistic[key] = ok
	}

	out := make([]domain.PriceRecord, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

func (s *RefreshService) afterWrite(ctx context.Context, logger *slog.Logger, report domain.RefreshReport, records []domain.PriceRecord) {
	if s.cache != nil && report.RowsWritten > 0 {
		if err := s.cache.Purge(ctx); err != nil {
			logger.Warn("failed to purge resolution cache", "error", err)
		}
	}
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, report, records); err != nil {
			logger.Warn("failed to publish refresh snapshot", "sink", fmt.Sprintf("%T", sink), "error", err)
		}
	}
}

// Scheduler runs the refresh pipeline periodically
type Scheduler struct {
	service    *RefreshService
	interval   time.Duration
	runOnStart bool
	logger     *slog.Logger
}

// NewScheduler creates a scheduler that refreshes every interval
func NewScheduler(service *RefreshService, interval time.Duration, runOnStart bool) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		service:    service,
		interval:   interval,
		runOnStart: runOnStart,
		logger:     obs.Component("scheduler"),
	}
}

// Run blocks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	if s.runOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.service.RunRefresh(ctx); err != nil {
		s.logger.Warn("scheduled refresh did not complete", "error", err)
	}
}
