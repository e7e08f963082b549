package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartcost/backend/internal/domain"
	"github.com/cartcost/backend/internal/obs"
)

type recordingRefreshObserver struct {
	fetches atomic.Int64
	found   atomic.Int64
	runs    atomic.Int64
	lastErr error
}

func (o *recordingRefreshObserver) ObserveFetch(source string, found bool, elapsed time.Duration) {
	o.fetches.Add(1)
	if found {
		o.found.Add(1)
	}
}

func (o *recordingRefreshObserver) ObserveRefresh(report domain.RefreshReport, err error) {
	o.runs.Add(1)
	o.lastErr = err
}

func newRefreshFixture() (*MockPriceRepository, *MockStoreRepository, *MockIngredientRepository) {
	prices := NewMockPriceRepository()
	stores := NewMockStoreRepository(
		domain.Store{ID: "S1", Name: "Kroger Marketplace", Latitude: 39.1, Longitude: -84.5,
			ExternalIDs: map[string]string{domain.FamilyKroger: "K-100", domain.FamilyWalmart: "W-7"}},
		domain.Store{ID: "S2", Name: "Whole Foods Uptown", Latitude: 39.2, Longitude: -84.4},
	)
	ingredients := &MockIngredientRepository{ingredients: []domain.Ingredient{
		{Name: "chicken breast", DefaultUnit: "lb"},
		{Name: "banana", DefaultUnit: "each"},
	}}
	return prices, stores, ingredients
}

func TestRefreshService_DeduplicatesKeepingLowestPrice(t *testing.T) {
	prices, stores, ingredients := newRefreshFixture()

	kroger := NewMockPriceSource("kroger_api")
	kroger.quotes["K-100|chicken breast"] = domain.Found(2.50, "lb")
	walmart := NewMockPriceSource("walmart_web")
	walmart.quotes["W-7|chicken breast"] = domain.Found(1.75, "lb")

	svc := NewRefreshService(prices, stores, ingredients, []SourceBinding{
		{Source: kroger, Family: domain.FamilyKroger},
		{Source: walmart, Family: domain.FamilyWalmart},
	}, RefreshConfig{Logger: obs.Discard()})

	rows, err := svc.RefreshAllPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	require.Len(t, prices.upserts, 1)
	written := prices.upserts[0]
	require.Len(t, written, 1)
	assert.Equal(t, "S1", written[0].StoreID)
	assert.Equal(t, "chicken breast", written[0].IngredientName)
	assert.Equal(t, 1.75, written[0].PricePerUnit)
	assert.Equal(t, "walmart_web", written[0].Source)
	assert.False(t, written[0].LastSeenAt.IsZero())
}

func TestRefreshService_Dedupe(t *testing.T) {
	svc := NewRefreshService(nil, nil, nil, nil, RefreshConfig{Logger: obs.Discard()})

	out := svc.dedupe([]domain.PriceRecord{
		record("S1", "banana", "each", 9.00), // unrealistic
		record("S1", "banana", "each", 0.40),
		record("S1", "banana", "each", 0.29),
		record("S2", "garlic", "clove", 5.00),
		record("S2", "garlic", "clove", 6.00),
	})

	require.Len(t, out, 2)
	assert.Equal(t, 0.29, out[0].PricePerUnit)
	// no realistic candidate: still the lowest
	assert.Equal(t, 5.00, out[1].PricePerUnit)
}

func TestRefreshService_SkipsStoresWithoutExternalID(t *testing.T) {
	prices, stores, ingredients := newRefreshFixture()
	kroger := NewMockPriceSource("kroger_api")

	svc := NewRefreshService(prices, stores, ingredients, []SourceBinding{
		{Source: kroger, Family: domain.FamilyKroger},
	}, RefreshConfig{Logger: obs.Discard()})

	report, err := svc.RunRefresh(context.Background())
	require.NoError(t, err)

	// S2 has no kroger id and the source cannot locate one
	assert.Equal(t, 2, report.Tasks)
	assert.Equal(t, 2, kroger.calls)
	assert.Equal(t, 0, report.RowsWritten)
	assert.Empty(t, prices.upserts)
}

func TestRefreshService_DiscoversExternalIDsForMatchingBanners(t *testing.T) {
	prices, stores, ingredients := newRefreshFixture()
	stores.stores = append(stores.stores, domain.Store{ID: "S3", Name: "Ralphs", Latitude: 34.0, Longitude: -118.2})

	source := MockLocatingSource{NewMockPriceSource("kroger_api")}
	source.location = "K-300"
	source.quotes["K-300|banana"] = domain.Found(0.25, "each")

	svc := NewRefreshService(prices, stores, ingredients, []SourceBinding{
		{Source: source, Family: domain.FamilyKroger, Banners: []string{"kroger", "ralphs"}},
	}, RefreshConfig{Logger: obs.Discard()})

	report, err := svc.RunRefresh(context.Background())
	require.NoError(t, err)

	// S1 already has an id and Whole Foods is not a kroger banner
	assert.Equal(t, 1, source.lookups)
	assert.Equal(t, "K-300", stores.externalIDs["S3"][domain.FamilyKroger])
	assert.Equal(t, 1, report.RowsWritten)
	assert.Equal(t, "S3", prices.upserts[0][0].StoreID)
}

func TestRefreshService_ConvertsPackageUnits(t *testing.T) {
	prices, stores, ingredients := newRefreshFixture()
	kroger := NewMockPriceSource("kroger_api")
	kroger.quotes["K-100|chicken breast"] = domain.Found(0.25, "oz")
	kroger.quotes["K-100|banana"] = domain.Found(1.20, "bunch")

	svc := NewRefreshService(prices, stores, ingredients, []SourceBinding{
		{Source: kroger, Family: domain.FamilyKroger},
	}, RefreshConfig{Logger: obs.Discard()})

	_, err := svc.RunRefresh(context.Background())
	require.NoError(t, err)

	byName := map[string]domain.PriceRecord{}
	for _, r := range prices.upserts[0] {
		byName[r.IngredientName] = r
	}
	assert.Equal(t, "lb", byName["chicken breast"].Unit)
	assert.InDelta(t, 0.25*16, byName["chicken breast"].PricePerUnit, 1e-3)
	// unconvertible units are kept as reported
	assert.Equal(t, "bunch", byName["banana"].Unit)
}

func TestRefreshService_SlowSourceDoesNotBlockSiblings(t *testing.T) {
	prices, stores, ingredients := newRefreshFixture()
	slow := NewMockPriceSource("slow")
	slow.delay = time.Second
	slow.quotes["K-100|banana"] = domain.Found(0.30, "each")
	fast := NewMockPriceSource("walmart_web")
	fast.quotes["W-7|banana"] = domain.Found(0.27, "each")

	svc := NewRefreshService(prices, stores, ingredients, []SourceBinding{
		{Source: slow, Family: domain.FamilyKroger},
		{Source: fast, Family: domain.FamilyWalmart},
	}, RefreshConfig{FetchTimeout: 20 * time.Millisecond, Concurrency: 2, Logger: obs.Discard()})

	report, err := svc.RunRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Found)
	assert.Equal(t, 1, report.BySource["walmart_web"])
	assert.Equal(t, 0.27, prices.upserts[0][0].PricePerUnit)
}

func TestRefreshService_EstimatorBindingUsesStoreID(t *testing.T) {
	prices, stores, ingredients := newRefreshFixture()
	estimator := NewMockPriceSource("safeway_estimate")
	estimator.quotes["S2|banana"] = domain.Found(0.59, "each")

	svc := NewRefreshService(prices, stores, ingredients, []SourceBinding{
		{Source: estimator, Banners: []string{"whole foods"}},
	}, RefreshConfig{Logger: obs.Discard()})

	report, err := svc.RunRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Tasks)
	assert.Equal(t, 1, report.RowsWritten)
}

func TestRefreshService_WriteFailurePropagates(t *testing.T) {
	prices, stores, ingredients := newRefreshFixture()
	prices.upsertError = errors.New("disk full")
	kroger := NewMockPriceSource("kroger_api")
	kroger.quotes["K-100|banana"] = domain.Found(0.30, "each")
	observer := &recordingRefreshObserver{}
	sink := &MockSink{}

	svc := NewRefreshService(prices, stores, ingredients, []SourceBinding{
		{Source: kroger, Family: domain.FamilyKroger},
	}, RefreshConfig{Observer: observer, Sinks: []domain.RefreshSink{sink}, Logger: obs.Discard()})

	rows, err := svc.RefreshAllPrices(context.Background())
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Equal(t, 0, rows)
	assert.Equal(t, int64(1), observer.runs.Load())
	assert.Error(t, observer.lastErr)
	assert.Empty(t, sink.reports, "nothing is published after a failed write")
}

func TestRefreshService_CatalogFailurePropagates(t *testing.T) {
	prices, stores, ingredients := newRefreshFixture()
	ingredients.listError = errors.New("timeout")

	svc := NewRefreshService(prices, stores, ingredients, nil, RefreshConfig{Logger: obs.Discard()})
	_, err := svc.RunRefresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestRefreshService_PublishesAndPurgesAfterWrite(t *testing.T) {
	prices, stores, ingredients := newRefreshFixture()
	kroger := NewMockPriceSource("kroger_api")
	kroger.quotes["K-100|banana"] = domain.Found(0.30, "each")
	cache := NewMockCacheRepository()
	failing := &MockSink{pubError: errors.New("bucket missing")}
	sink := &MockSink{}
	observer := &recordingRefreshObserver{}

	svc := NewRefreshService(prices, stores, ingredients, []SourceBinding{
		{Source: kroger, Family: domain.FamilyKroger},
	}, RefreshConfig{
		Cache:    cache,
		Sinks:    []domain.RefreshSink{failing, sink},
		Observer: observer,
		Logger:   obs.Discard(),
	})

	report, err := svc.RunRefresh(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, cache.purged)
	require.Len(t, sink.reports, 1)
	assert.Equal(t, report.RunID, sink.reports[0].RunID)
	assert.Equal(t, 1, sink.rows)
	assert.Equal(t, int64(2), observer.fetches.Load())
	assert.Equal(t, int64(1), observer.found.Load())
}

func TestRefreshService_RejectsOverlappingRuns(t *testing.T) {
	prices, stores, ingredients := newRefreshFixture()
	slow := NewMockPriceSource("slow")
	slow.delay = 200 * time.Millisecond

	svc := NewRefreshService(prices, stores, ingredients, []SourceBinding{
		{Source: slow, Family: domain.FamilyKroger},
	}, RefreshConfig{Logger: obs.Discard()})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.RunRefresh(context.Background())
	}()

	require.Eventually(t, func() bool {
		slow.mu.Lock()
		defer slow.mu.Unlock()
		return slow.calls > 0
	}, time.Second, 5*time.Millisecond)

	_, err := svc.RunRefresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrRefreshInProgress)
	<-done
}

func TestScheduler_RunsOnStartAndStops(t *testing.T) {
	prices, stores, ingredients := newRefreshFixture()
	kroger := NewMockPriceSource("kroger_api")
	kroger.quotes["K-100|banana"] = domain.Found(0.30, "each")
	svc := NewRefreshService(prices, stores, ingredients, []SourceBinding{
		{Source: kroger, Family: domain.FamilyKroger},
	}, RefreshConfig{Logger: obs.Discard()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewScheduler(svc, time.Hour, true).Run(ctx)
	}()

	require.Eventually(t, func() bool {
		prices.mu.Lock()
		defer prices.mu.Unlock()
		return len(prices.upserts) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
