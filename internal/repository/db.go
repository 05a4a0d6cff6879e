// Package repository stores listing records in DuckDB (embedded) or
// PostgreSQL through sqlx.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/marcboeker/go-duckdb"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	DuckDB   Dialect = "duckdb"
	Postgres Dialect = "postgres"
)

// Open connects to the listing database.
func Open(ctx context.Context, dialect Dialect, dsn string) (*sqlx.DB, error) {
	switch dialect {
	case DuckDB:
		return openDuckDB(dsn)
	case Postgres:
		db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		return db, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", dialect)
}

func openDuckDB(path string) (*sqlx.DB, error) {
	if path == ":memory:" {
		path = ""
	}
	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		for _, pragma := range []string{
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		} {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	db := sql.OpenDB(connector)
	// A single connection keeps an in-memory database shared by every query.
	db.SetMaxOpenConns(1)
	return sqlx.NewDb(db, string(DuckDB)), nil
}
