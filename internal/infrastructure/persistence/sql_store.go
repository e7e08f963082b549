// Package persistence stores cached prices and the store and ingredient catalogs in SQL databases.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/cartcost/backend/internal/domain"
)

// Compile-time contract assertions
var (
	_ domain.PriceRepository      = (*SQLStore)(nil)
	_ domain.StoreRepository      = (*SQLStore)(nil)
	_ domain.IngredientRepository = (*SQLStore)(nil)
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// SQLStore implements the price, store and ingredient repositories over database/sql
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database, verifies it answers and applies the schema
func Open(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	driver, err := dialect.driverName()
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty dsn for %s", domain.ErrInvalidRequest, dialect)
	}

	openMu.Lock()
	db, err := sqlOpen(driver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// one writer at a time avoids SQLITE_BUSY under the refresh fan-in
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

// Close releases the connection pool
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying sql.DB for integration testing hooks
func (s *SQLStore) DB() *sql.DB { return s.db }

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// FindCheapest implements domain.PriceRepository
func (s *SQLStore) FindCheapest(ctx context.Context, query domain.PriceQuery) ([]domain.PriceCandidate, error) {
	q := `SELECT place_id, price_per_unit, unit FROM stores_prices WHERE LOWER(ingredient_name) = LOWER(CAST(? AS TEXT))`
	args := []any{query.IngredientName}
	if len(query.StoreIDs) > 0 {
		q += ` AND place_id IN (` + placeholders(len(query.StoreIDs)) + `)`
		for _, id := range query.StoreIDs {
			args = append(args, id)
		}
	}
	q += ` ORDER BY price_per_unit ASC, place_id ASC`
	if query.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, query.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.PriceCandidate
	for rows.Next() {
		var c domain.PriceCandidate
		if err := rows.Scan(&c.StoreID, &c.Price, &c.Unit); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const upsertPriceSQL = `INSERT INTO stores_prices (place_id, ingredient_name, unit, price_per_unit, source, last_seen_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (place_id, ingredient_name) DO UPDATE SET
		unit = excluded.unit,
		price_per_unit = excluded.price_per_unit,
		source = excluded.source,
		last_seen_at = excluded.last_seen_at`

// UpsertPrices implements domain.PriceRepository. All rows are written in one transaction.
func (s *SQLStore) UpsertPrices(ctx context.Context, records []domain.PriceRecord) (retErr error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(upsertPriceSQL))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		seen := r.LastSeenAt
		if seen.IsZero() {
			seen = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, r.StoreID, r.IngredientName, r.Unit, r.PricePerUnit, r.Source, seen.UTC()); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", r.StoreID, r.IngredientName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// StoresWithPrices implements domain.PriceRepository
func (s *SQLStore) StoresWithPrices(ctx context.Context, storeIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(storeIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(storeIDs))
	for i, id := range storeIDs {
		args[i] = id
	}
	q := `SELECT DISTINCT place_id FROM stores_prices WHERE place_id IN (` + placeholders(len(storeIDs)) + `)`

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query coverage: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// ListStores implements domain.StoreRepository
func (s *SQLStore) ListStores(ctx context.Context) ([]domain.Store, error) {
	return s.queryStores(ctx, `SELECT id, name, latitude, longitude FROM stores ORDER BY id`, nil)
}

// GetStores implements domain.StoreRepository; unknown ids are skipped
func (s *SQLStore) GetStores(ctx context.Context, ids []string) ([]domain.Store, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT id, name, latitude, longitude FROM stores WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY id`
	return s.queryStores(ctx, q, args)
}

func (s *SQLStore) queryStores(ctx context.Context, q string, args []any) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	var stores []domain.Store
	for rows.Next() {
		var st domain.Store
		if err := rows.Scan(&st.ID, &st.Name, &st.Latitude, &st.Longitude); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, st)
	}
	// close before the next query; sqlite runs on a single connection
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(stores) == 0 {
		return stores, nil
	}

	ids, err := s.externalIDs(ctx)
	if err != nil {
		return nil, err
	}
	for i := range stores {
		stores[i].ExternalIDs = ids[stores[i].ID]
	}
	return stores, nil
}

func (s *SQLStore) externalIDs(ctx context.Context) (map[string]map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT store_id, family, external_id FROM store_external_ids`)
	if err != nil {
		return nil, fmt.Errorf("query external ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]map[string]string)
	for rows.Next() {
		var storeID, family, externalID string
		if err := rows.Scan(&storeID, &family, &externalID); err != nil {
			return nil, fmt.Errorf("scan external id: %w", err)
		}
		if out[storeID] == nil {
			out[storeID] = make(map[string]string)
		}
		out[storeID][family] = externalID
	}
	return out, rows.Err()
}

// UpsertStore implements domain.StoreRepository. External ids carried by store are merged in.
func (s *SQLStore) UpsertStore(ctx context.Context, store domain.Store) (retErr error) {
	if store.ID == "" {
		return fmt.Errorf("%w: store id is required", domain.ErrInvalidRequest)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, s.dialect.rebind(`INSERT INTO stores (id, name, latitude, longitude) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, latitude = excluded.latitude, longitude = excluded.longitude`),
		store.ID, store.Name, store.Latitude, store.Longitude)
	if err != nil {
		return fmt.Errorf("upsert store %s: %w", store.ID, err)
	}
	for family, externalID := range store.ExternalIDs {
		if err := s.setExternalID(ctx, tx, store.ID, family, externalID); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SetExternalID implements domain.StoreRepository
func (s *SQLStore) SetExternalID(ctx context.Context, storeID, family, externalID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT 1 FROM stores WHERE id = ?`), storeID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, storeID)
	}
	if err != nil {
		return fmt.Errorf("lookup store %s: %w", storeID, err)
	}
	return s.setExternalID(ctx, s.db, storeID, family, externalID)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) setExternalID(ctx context.Context, db execer, storeID, family, externalID string) error {
	_, err := db.ExecContext(ctx, s.dialect.rebind(`INSERT INTO store_external_ids (store_id, family, external_id) VALUES (?, ?, ?)
		ON CONFLICT (store_id, family) DO UPDATE SET external_id = excluded.external_id`),
		storeID, family, externalID)
	if err != nil {
		return fmt.Errorf("set %s id for store %s: %w", family, storeID, err)
	}
	return nil
}

// ListIngredients implements domain.IngredientRepository
func (s *SQLStore) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, default_unit FROM ingredients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query ingredients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Ingredient
	for rows.Next() {
		var ing domain.Ingredient
		if err := rows.Scan(&ing.Name, &ing.DefaultUnit); err != nil {
			return nil, fmt.Errorf("scan ingredient: %w", err)
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

// UpsertIngredient implements domain.IngredientRepository
func (s *SQLStore) UpsertIngredient(ctx context.Context, ingredient domain.Ingredient) error {
	if ingredient.Name == "" {
		return fmt.Errorf("%w: ingredient name is required", domain.ErrInvalidRequest)
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`INSERT INTO ingredients (name, default_unit) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET default_unit = excluded.default_unit`),
		ingredient.Name, ingredient.DefaultUnit)
	if err != nil {
		return fmt.Errorf("upsert ingredient %s: %w", ingredient.Name, err)
	}
	return nil
}
