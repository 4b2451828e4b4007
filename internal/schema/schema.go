package schema

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

// SQL is the full Postgres schema. Every statement is idempotent, so Apply
// can run on every deploy.
//
//go:embed schema.sql
var SQL string

// Apply runs the schema inside one transaction.
func Apply(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, SQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("schema: apply: %w", err)
	}
	return tx.Commit()
}
