// Package migrations embeds and applies this service's schema. There's
// exactly one migration file: the schema is additive-only (CREATE TABLE IF
// NOT EXISTS) rather than versioned, since this system has no installed
// base to migrate away from yet.
package migrations

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed 0001_schema.sql
var schemaSQL string

// Apply runs the embedded schema against db. Safe to run repeatedly.
func Apply(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
