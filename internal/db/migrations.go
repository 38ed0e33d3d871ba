package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: history reads are always per item in seq order.
	`CREATE INDEX IF NOT EXISTS idx_usage_log_item_seq ON usage_log(item_id, seq)`,
	// Migration 2: expired revocations are pruned by expiry.
	`CREATE INDEX IF NOT EXISTS idx_revoked_tokens_expires ON revoked_tokens(expires_at)`,
}

// Migrate creates the schema and runs the migrations.
func Migrate(db *sqlx.DB) error {
	if err := EnsureSchema(db); err != nil {
		return err
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
