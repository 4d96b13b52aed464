// Package sqlite implements the product and order stores on SQLite using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xenking/storefront/db"

	_ "modernc.org/sqlite"
)

const dropSQL = `
DROP TABLE IF EXISTS orders;
DROP TABLE IF EXISTS transactions;
DROP TABLE IF EXISTS credit_cards;
DROP TABLE IF EXISTS shipping_information;
DROP TABLE IF EXISTS products;`

// Open opens (or creates) the database file at path. Write transactions take
// the database lock on BEGIN and the pool holds a single connection, so
// transactions must stay short.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)&_txlock=immediate", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// Migrate creates the schema. It is idempotent.
func Migrate(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, db.SQLiteSchema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

// Drop removes every table of the schema.
func Drop(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, dropSQL); err != nil {
		return fmt.Errorf("sqlite: drop tables: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}
