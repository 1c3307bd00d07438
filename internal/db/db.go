// Package db opens the PostgreSQL database backing the local app cache and
// keeps its tables in shape.
package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// connectTimeout bounds the ping and schema setup in Open
const connectTimeout = 10 * time.Second

//go:embed schema.sql
var schema string

// Open connects to the cache database at databaseURL and creates any cache
// tables that are missing. The returned handle is ready for cache.NewStore.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache database unreachable: %w", err)
	}

	if err := ApplySchema(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// ApplySchema creates the apps, categories and collection tables. It is
// idempotent, so it runs on every start.
func ApplySchema(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create cache tables: %w", err)
	}
	return nil
}
