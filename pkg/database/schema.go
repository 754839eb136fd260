package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed schema/mysql.sql
var mysqlSchema string

// EnsurePostgresSchema creates the seat, booking and idempotency tables when missing.
func EnsurePostgresSchema(ctx context.Context, db Querier) error {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

// EnsureMySQLSchema is the MySQL counterpart of EnsurePostgresSchema. The DSN
// built by OpenMySQL enables multiStatements for this.
func EnsureMySQLSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, mysqlSchema); err != nil {
		return fmt.Errorf("apply mysql schema: %w", err)
	}
	return nil
}
