package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavour and database/sql driver
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// driverName returns the registered database/sql driver for the dialect
func (d Dialect) driverName() (string, error) {
	switch d {
	case DialectSQLite:
		return "sqlite", nil
	case DialectPostgres:
		return "pgx", nil
	}
	return "", fmt.Errorf("unsupported database driver %q", string(d))
}

// rebind rewrites ? placeholders into $n for postgres
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS stores (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS store_external_ids (
		store_id TEXT NOT NULL,
		family TEXT NOT NULL,
		external_id TEXT NOT NULL,
		PRIMARY KEY (store_id, family)
	)`,
	`CREATE TABLE IF NOT EXISTS ingredients (
		name TEXT PRIMARY KEY,
		default_unit TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stores_prices (
		place_id TEXT NOT NULL,
		ingredient_name TEXT NOT NULL,
		unit TEXT NOT NULL,
		price_per_unit DOUBLE PRECISION NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		last_seen_at TIMESTAMP NOT NULL,
		PRIMARY KEY (place_id, ingredient_name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stores_prices_ingredient ON stores_prices (LOWER(ingredient_name), price_per_unit)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}
