package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cartcost/backend/internal/domain"
)

// MockCacheRepository is a mock implementation of domain.CacheRepository
type MockCacheRepository struct {
	mu       sync.Mutex
	data     map[string]interface{}
	getError error
	setError error
	purged   int
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		data: make(map[string]interface{}),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return nil, m.getError
	}
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, domain.ErrCacheMiss
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setError != nil {
		return m.setError
	}
	m.data[key] = value
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MockCacheRepository) Purge(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]interface{})
	m.purged++
	return nil
}

// MockPriceRepository is an in-memory domain.PriceRepository that records calls
type MockPriceRepository struct {
	mu        sync.Mutex
	records   []domain.PriceRecord
	queries   []domain.PriceQuery
	upserts   [][]domain.PriceRecord
	findError error
	// scopedError fails only store-scoped queries
	scopedError error
	upsertError error
}

func NewMockPriceRepository(records ...domain.PriceRecord) *MockPriceRepository {
	return &MockPriceRepository{records: records}
}

func (m *MockPriceRepository) FindCheapest(ctx context.Context, query domain.PriceQuery) ([]domain.PriceCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	if m.findError != nil {
		return nil, m.findError
	}
	if m.scopedError != nil && len(query.StoreIDs) > 0 {
		return nil, m.scopedError
	}

	scope := make(map[string]bool, len(query.StoreIDs))
	for _, id := range query.StoreIDs {
		scope[id] = true
	}

	var out []domain.PriceCandidate
	for _, r := range m.records {
		if len(scope) > 0 && !scope[r.StoreID] {
			continue
		}
		if !strings.EqualFold(r.IngredientName, query.IngredientName) {
			continue
		}
		out = append(out, domain.PriceCandidate{StoreID: r.StoreID, Price: r.PricePerUnit, Unit: r.Unit})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (m *MockPriceRepository) UpsertPrices(ctx context.Context, records []domain.PriceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertError != nil {
		return m.upsertError
	}
	m.upserts = append(m.upserts, records)
	return nil
}

func (m *MockPriceRepository) StoresWithPrices(ctx context.Context, storeIDs []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findError != nil {
		return nil, m.findError
	}
	out := make(map[string]bool)
	for _, r := range m.records {
		out[r.StoreID] = true
	}
	return out, nil
}

// MockStoreRepository is an in-memory domain.StoreRepository
type MockStoreRepository struct {
	mu          sync.Mutex
	stores      []domain.Store
	listError   error
	setIDError  error
	externalIDs map[string]map[string]string
}

func NewMockStoreRepository(stores ...domain.Store) *MockStoreRepository {
	return &MockStoreRepository{stores: stores, externalIDs: make(map[string]map[string]string)}
}

func (m *MockStoreRepository) ListStores(ctx context.Context) ([]domain.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listError != nil {
		return nil, m.listError
	}
	return append([]domain.Store(nil), m.stores...), nil
}

func (m *MockStoreRepository) GetStores(ctx context.Context, ids []string) ([]domain.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listError != nil {
		return nil, m.listError
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Store
	for _, s := range m.stores {
		if want[s.ID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockStoreRepository) UpsertStore(ctx context.Context, store domain.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.stores {
		if s.ID == store.ID {
			m.stores[i] = store
			return nil
		}
	}
	m.stores = append(m.stores, store)
	return nil
}

func (m *MockStoreRepository) SetExternalID(ctx context.Context, storeID, family, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setIDError != nil {
		return m.setIDError
	}
	if m.externalIDs[storeID] == nil {
		m.externalIDs[storeID] = make(map[string]string)
	}
	m.externalIDs[storeID][family] = externalID
	return nil
}

// MockIngredientRepository is an in-memory domain.IngredientRepository
type MockIngredientRepository struct {
	ingredients []domain.Ingredient
	listError   error
}

func (m *MockIngredientRepository) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	return m.ingredients, nil
}

func (m *MockIngredientRepository) UpsertIngredient(ctx context.Context, ingredient domain.Ingredient) error {
	m.ingredients = append(m.ingredients, ingredient)
	return nil
}

// MockPriceSource answers from a table keyed by "externalID|ingredient"
type MockPriceSource struct {
	name    string
	quotes  map[string]domain.Quote
	delay   time.Duration
	mu      sync.Mutex
	calls   int
	lookups int
	// location is the store id reported by LookupStoreID; empty means none nearby
	location string
}

func NewMockPriceSource(name string) *MockPriceSource {
	return &MockPriceSource{name: name, quotes: make(map[string]domain.Quote)}
}

func (m *MockPriceSource) SourceName() string { return m.name }

func (m *MockPriceSource) FetchPrice(ctx context.Context, externalStoreID, ingredientName, unit string) domain.Quote {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return domain.NotFound(unit)
		}
	}
	if q, ok := m.quotes[externalStoreID+"|"+ingredientName]; ok {
		return q
	}
	return domain.NotFound(unit)
}

// MockLocatingSource is a MockPriceSource that can discover store ids
type MockLocatingSource struct {
	*MockPriceSource
}

func (m MockLocatingSource) LookupStoreID(ctx context.Context, lat, lon float64, radiusMiles int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	return m.location, m.location != ""
}

// MockSink records published refresh snapshots
type MockSink struct {
	mu       sync.Mutex
	reports  []domain.RefreshReport
	rows     int
	pubError error
}

func (m *MockSink) Publish(ctx context.Context, report domain.RefreshReport, records []domain.PriceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	m.rows += len(records)
	return m.pubError
}
