package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/makerledger/internal/model"
)

const userColumns = `id, username, password_hash, role, created_at, deleted_at`

// CreateUser creates a new user assigned to the given makerspaces.
func CreateUser(ctx context.Context, db *sqlx.DB, username, passwordHash, role string, makerspaceIDs []string) (*model.User, error) {
	id := uuid.NewString()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role) VALUES (?, ?, ?, ?)`,
		id, username, passwordHash, role,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	if err := setMakerspaces(ctx, tx, id, makerspaceIDs); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing user: %w", err)
	}
	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID, or nil if none exists.
func GetUser(ctx context.Context, db *sqlx.DB, id string) (*model.User, error) {
	return getUserWhere(ctx, db, `id = ?`, id)
}

// GetUserByUsername returns the active user with the given username, or nil.
func GetUserByUsername(ctx context.Context, db *sqlx.DB, username string) (*model.User, error) {
	return getUserWhere(ctx, db, `username = ? AND deleted_at IS NULL`, username)
}

func getUserWhere(ctx context.Context, db *sqlx.DB, cond string, arg any) (*model.User, error) {
	u := &model.User{}
	err := db.GetContext(ctx, u, `SELECT `+userColumns+` FROM users WHERE `+cond, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	if u.MakerspaceIDs, err = userMakerspaces(ctx, db, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// Accounts adapts GetUser for the auth middleware.
type Accounts struct {
	db *sqlx.DB
}

// NewAccounts returns an account source backed by db.
func NewAccounts(db *sqlx.DB) *Accounts { return &Accounts{db: db} }

func (a *Accounts) CurrentUser(ctx context.Context, id string) (*model.User, error) {
	return GetUser(ctx, a.db, id)
}

// ListUsers returns all non-deleted users.
func ListUsers(ctx context.Context, db *sqlx.DB) ([]model.User, error) {
	var users []model.User
	err := db.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY username`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	for i := range users {
		if users[i].MakerspaceIDs, err = userMakerspaces(ctx, db, users[i].ID); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// UpdateUser updates a user's role and makerspace assignments.
func UpdateUser(ctx context.Context, db *sqlx.DB, id, role string, makerspaceIDs []string) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET role = ? WHERE id = ? AND deleted_at IS NULL`,
		role, id,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if makerspaceIDs != nil {
		if err := setMakerspaces(ctx, tx, id, makerspaceIDs); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user update: %w", err)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sqlx.DB, id, passwordHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// DeleteUser soft-deletes a user.
func DeleteUser(ctx context.Context, db *sqlx.DB, id string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

// CountUsers returns the number of active users.
func CountUsers(ctx context.Context, db *sqlx.DB) (int, error) {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users WHERE deleted_at IS NULL`); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

func userMakerspaces(ctx context.Context, db *sqlx.DB, userID string) ([]string, error) {
	ids := []string{}
	err := db.SelectContext(ctx, &ids,
		`SELECT makerspace_id FROM user_makerspaces WHERE user_id = ? ORDER BY makerspace_id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing user makerspaces: %w", err)
	}
	return ids, nil
}

func setMakerspaces(ctx context.Context, tx *sqlx.Tx, userID string, makerspaceIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_makerspaces WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clearing user makerspaces: %w", err)
	}
	for _, ms := range makerspaceIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_makerspaces (user_id, makerspace_id) VALUES (?, ?)`,
			userID, ms,
		)
		if err != nil {
			return fmt.Errorf("assigning makerspace: %w", err)
		}
	}
	return nil
}
