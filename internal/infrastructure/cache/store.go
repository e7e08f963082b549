package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cartcost/backend/internal/domain"
)

// MemoryStore keeps prices, stores and ingredients in process memory.
// It backs the "memory" database driver and is safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	prices      map[domain.PriceKey]domain.PriceRecord
	stores      map[string]domain.Store
	ingredients map[string]domain.Ingredient
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prices:      make(map[domain.PriceKey]domain.PriceRecord),
		stores:      make(map[string]domain.Store),
		ingredients: make(map[string]domain.Ingredient),
	}
}

// FindCheapest implements domain.PriceRepository
func (s *MemoryStore) FindCheapest(ctx context.Context, query domain.PriceQuery) ([]domain.PriceCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scope := make(map[string]bool, len(query.StoreIDs))
	for _, id := range query.StoreIDs {
		scope[id] = true
	}

	var out []domain.PriceCandidate
	for _, r := range s.prices {
		if len(scope) > 0 && !scope[r.StoreID] {
			continue
		}
		if !strings.EqualFold(r.IngredientName, query.IngredientName) {
			continue
		}
		out = append(out, domain.PriceCandidate{StoreID: r.StoreID, Price: r.PricePerUnit, Unit: r.Unit})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].StoreID < out[j].StoreID
	})
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

// UpsertPrices implements domain.PriceRepository
func (s *MemoryStore) UpsertPrices(ctx context.Context, records []domain.PriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.prices[r.Key()] = r
	}
	return nil
}

// StoresWithPrices implements domain.PriceRepository
func (s *MemoryStore) StoresWithPrices(ctx context.Context, storeIDs []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]bool, len(storeIDs))
	for _, id := range storeIDs {
		want[id] = true
	}
	out := make(map[string]bool)
	for key := range s.prices {
		if want[key.StoreID] {
			out[key.StoreID] = true
		}
	}
	return out, nil
}

// Prices returns every cached record ordered by store then ingredient
func (s *MemoryStore) Prices() []domain.PriceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PriceRecord, 0, len(s.prices))
	for _, r := range s.prices {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StoreID != out[j].StoreID {
			return out[i].StoreID < out[j].StoreID
		}
		return out[i].IngredientName < out[j].IngredientName
	})
	return out
}

// ListStores implements domain.StoreRepository
func (s *MemoryStore) ListStores(ctx context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Store, 0, len(s.stores))
	for _, st := range s.stores {
		out = append(out, cloneStore(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetStores implements domain.StoreRepository; unknown ids are skipped
func (s *MemoryStore) GetStores(ctx context.Context, ids []string) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Store
	for _, id := range ids {
		if st, ok := s.stores[id]; ok {
			out = append(out, cloneStore(st))
		}
	}
	return out, nil
}

// UpsertStore implements domain.StoreRepository. Known external ids are kept unless the update carries its own.
func (s *MemoryStore) UpsertStore(ctx context.Context, store domain.Store) error {
	if store.ID == "" {
		return fmt.Errorf("%w: store id is required", domain.ErrInvalidRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneStore(store)
	if prev, ok := s.stores[store.ID]; ok {
		for family, id := range prev.ExternalIDs {
			if next.ExternalID(family) == "" {
				if next.ExternalIDs == nil {
					next.ExternalIDs = make(map[string]string)
				}
				next.ExternalIDs[family] = id
			}
		}
	}
	s.stores[store.ID] = next
	return nil
}

// SetExternalID implements domain.StoreRepository
func (s *MemoryStore) SetExternalID(ctx context.Context, storeID, family, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stores[storeID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, storeID)
	}
	st = cloneStore(st)
	if st.ExternalIDs == nil {
		st.ExternalIDs = make(map[string]string)
	}
	st.ExternalIDs[family] = externalID
	s.stores[storeID] = st
	return nil
}

// ListIngredients implements domain.IngredientRepository
func (s *MemoryStore) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Ingredient, 0, len(s.ingredients))
	for _, ing := range s.ingredients {
		out = append(out, ing)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpsertIngredient implements domain.IngredientRepository
func (s *MemoryStore) UpsertIngredient(ctx context.Context, ingredient domain.Ingredient) error {
	if ingredient.Name == "" {
		return fmt.Errorf("%w: ingredient name is required", domain.ErrInvalidRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingredients[ingredient.Name] = ingredient
	return nil
}

func cloneStore(st domain.Store) domain.Store {
	if st.ExternalIDs != nil {
		ids := make(map[string]string, len(st.ExternalIDs))
		for k, v := range st.ExternalIDs {
			ids[k] = v
		}
		st.ExternalIDs = ids
	}
	return st
}
