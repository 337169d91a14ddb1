// Package pg implements internal/store's repository interfaces on top of
// Postgres via pgx's database/sql driver and sqlx for scanning rows into
// structs; metadata columns round-trip through encoding/json.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// Open connects to Postgres via the pgx stdlib driver and wraps it in sqlx.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Migrate applies all pending migrations under migrationsPath using lib/pq
// as the database/sql driver golang-migrate requires.
func Migrate(dsn, migrationsPath string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("pg: migrate open: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("pg: migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("pg: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("pg: migrate up: %w", err)
	}
	return nil
}

// sqlNoRows is sql.ErrNoRows, aliased so repository files can compare against
// it without each importing database/sql solely for that purpose.
var sqlNoRows = sql.ErrNoRows

// --- small scalar helpers shared by every repository file ----------------

func nilStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func nilTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nilInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func jsonOrEmpty(v any) []byte {
	if v == nil {
		return []byte(`{}`)
	}
	b, err := json.Marshal(v)
	if err != nil || len(b) == 0 {
		return []byte(`{}`)
	}
	return b
}

func pqStringArray(items []string) string {
	if len(items) == 0 {
		return "{}"
	}
	return "{" + strings.Join(items, ",") + "}"
}

// execMapUpdate builds and runs `UPDATE table SET k=$1, ... WHERE id=$n` from
// a sparse field map.
func execMapUpdate(ctx context.Context, db *sqlx.DB, table string, id any, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	cols := make([]string, 0, len(updates))
	args := make([]any, 0, len(updates)+1)
	i := 1
	for k, v := range updates {
		cols = append(cols, fmt.Sprintf("%s = $%d", k, i))
		args = append(args, v)
		i++
	}
	args = append(args, id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(cols, ", "), i)
	_, err := db.ExecContext(ctx, q, args...)
	return err
}
