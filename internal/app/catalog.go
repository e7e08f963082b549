package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cartcost/backend/internal/domain"
)

// Catalog is the seed document for the store and ingredient catalogs
type Catalog struct {
	Stores      []domain.Store      `json:"stores"`
	Ingredients []domain.Ingredient `json:"ingredients"`
}

// SeedCatalog upserts every store and ingredient read from r and returns how many of each were written
func SeedCatalog(ctx context.Context, r io.Reader, stores domain.StoreRepository, ingredients domain.IngredientRepository) (int, int, error) {
	var catalog Catalog
	if err := json.NewDecoder(r).Decode(&catalog); err != nil {
		return 0, 0, fmt.Errorf("%w: decode catalog: %v", domain.ErrInvalidRequest, err)
	}

	for i, s := range catalog.Stores {
		if strings.TrimSpace(s.ID) == "" {
			return 0, 0, fmt.Errorf("%w: store %d has no id", domain.ErrInvalidRequest, i)
		}
		if err := stores.UpsertStore(ctx, s); err != nil {
			return 0, 0, fmt.Errorf("seed store %s: %w", s.ID, err)
		}
	}
	for i, ing := range catalog.Ingredients {
		if strings.TrimSpace(ing.Name) == "" {
			return len(catalog.Stores), 0, fmt.Errorf("%w: ingredient %d has no name", domain.ErrInvalidRequest, i)
		}
		if err := ingredients.UpsertIngredient(ctx, ing); err != nil {
			return len(catalog.Stores), 0, fmt.Errorf("seed ingredient %s: %w", ing.Name, err)
		}
	}

	return len(catalog.Stores), len(catalog.Ingredients), nil
}
