package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is the full database schema. Quantities are stored as TEXT so
// decimal values round-trip exactly.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'viewer'
                  CHECK (role IN ('super_admin', 'admin', 'makerspace_admin', 'member', 'viewer')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS user_makerspaces (
    user_id       TEXT NOT NULL REFERENCES users(id),
    makerspace_id TEXT NOT NULL,
    PRIMARY KEY (user_id, makerspace_id)
);

CREATE TABLE IF NOT EXISTS items (
    id                      TEXT PRIMARY KEY,
    name                    TEXT NOT NULL,
    category                TEXT NOT NULL,
    subcategory             TEXT NOT NULL DEFAULT '',
    quantity                TEXT NOT NULL,
    unit                    TEXT NOT NULL,
    min_threshold           TEXT NOT NULL DEFAULT '0',
    location                TEXT NOT NULL DEFAULT '',
    status                  TEXT NOT NULL DEFAULT 'active'
                            CHECK (status IN ('active', 'in_use', 'damaged', 'reserved', 'discontinued')),
    supplier_type           TEXT NOT NULL CHECK (supplier_type IN ('makrx', 'external')),
    product_code            TEXT NOT NULL DEFAULT '',
    price                   TEXT,
    supplier                TEXT NOT NULL DEFAULT '',
    description             TEXT NOT NULL DEFAULT '',
    makerspace_id           TEXT NOT NULL,
    owner_user_id           TEXT NOT NULL DEFAULT '',
    restricted_access_level TEXT NOT NULL DEFAULT '',
    image_mime              TEXT NOT NULL DEFAULT '',
    created_at              DATETIME NOT NULL,
    updated_at              DATETIME NOT NULL,
    deleted_at              DATETIME
);

CREATE INDEX IF NOT EXISTS idx_items_makerspace ON items(makerspace_id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS usage_log (
    id                TEXT PRIMARY KEY,
    item_id           TEXT NOT NULL REFERENCES items(id),
    seq               INTEGER NOT NULL,
    timestamp         DATETIME NOT NULL,
    user_id           TEXT NOT NULL,
    user_name         TEXT NOT NULL,
    action            TEXT NOT NULL
                      CHECK (action IN ('add', 'issue', 'restock', 'adjust', 'damage', 'transfer')),
    quantity_before   TEXT NOT NULL,
    quantity_after    TEXT NOT NULL,
    reason            TEXT NOT NULL DEFAULT '',
    linked_project_id TEXT NOT NULL DEFAULT '',
    linked_job_id     TEXT NOT NULL DEFAULT '',
    UNIQUE (item_id, seq)
);

CREATE TRIGGER IF NOT EXISTS usage_log_no_update
BEFORE UPDATE ON usage_log
BEGIN
    SELECT RAISE(ABORT, 'usage_log is append-only');
END;

CREATE TRIGGER IF NOT EXISTS usage_log_no_delete
BEFORE DELETE ON usage_log
BEGIN
    SELECT RAISE(ABORT, 'usage_log is append-only');
END;

CREATE TABLE IF NOT EXISTS item_images (
    item_id   TEXT PRIMARY KEY REFERENCES items(id) ON DELETE CASCADE,
    image     BLOB NOT NULL,
    thumbnail BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
