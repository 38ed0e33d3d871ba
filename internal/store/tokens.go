package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// RevokeToken adds a token's JTI to the revocation list and prunes
// revocations that have expired.
func RevokeToken(ctx context.Context, db *sqlx.DB, jti string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
		jti, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}

	if _, err := PruneRevokedTokens(ctx, db, time.Now().UTC()); err != nil {
		return err
	}
	return nil
}

// PruneRevokedTokens removes revocations whose tokens expired before now.
func PruneRevokedTokens(ctx context.Context, db *sqlx.DB, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("pruning revoked tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// IsTokenRevoked checks if a token's JTI has been revoked.
func IsTokenRevoked(ctx context.Context, db *sqlx.DB, jti string) (bool, error) {
	var revoked bool
	err := db.GetContext(ctx, &revoked,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = ?)`, jti,
	)
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return revoked, nil
}

// Revocations adapts the token functions for the auth middleware.
type Revocations struct {
	db *sqlx.DB
}

// NewRevocations returns a revocation list backed by db.
func NewRevocations(db *sqlx.DB) *Revocations { return &Revocations{db: db} }

func (r *Revocations) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	return RevokeToken(ctx, r.db, jti, expiresAt)
}

func (r *Revocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return IsTokenRevoked(ctx, r.db, jti)
}
