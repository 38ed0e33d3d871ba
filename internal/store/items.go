package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/makerledger/internal/ledger"
	"github.com/erazemk/makerledger/internal/model"
)

const itemColumns = `id, name, category, subcategory, quantity, unit, min_threshold, location,
	status, supplier_type, product_code, price, supplier, description, makerspace_id,
	owner_user_id, restricted_access_level, image_mime, created_at, updated_at, deleted_at`

const entryColumns = `id, item_id, seq, timestamp, user_id, user_name, action,
	quantity_before, quantity_after, reason, linked_project_id, linked_job_id`

func notFound(id string) error {
	return model.Errorf(model.ErrItemNotFound, "item %s not found", id)
}

// CreateItem inserts a new item.
func CreateItem(ctx context.Context, db *sqlx.DB, item model.Item) (*model.Item, error) {
	_, err := db.NamedExecContext(ctx,
		`INSERT INTO items (`+itemColumns+`)
		 VALUES (:id, :name, :category, :subcategory, :quantity, :unit, :min_threshold, :location,
		         :status, :supplier_type, :product_code, :price, :supplier, :description, :makerspace_id,
		         :owner_user_id, :restricted_access_level, :image_mime, :created_at, :updated_at, :deleted_at)`,
		item,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}
	return GetItem(ctx, db, item.ID)
}

// GetItem returns an item by ID, including archived items.
func GetItem(ctx context.Context, q sqlx.QueryerContext, id string) (*model.Item, error) {
	item := &model.Item{}
	err := sqlx.GetContext(ctx, q, item, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// getLiveItem returns a non-archived item.
func getLiveItem(ctx context.Context, q sqlx.QueryerContext, id string) (*model.Item, error) {
	item, err := GetItem(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if item.Archived() {
		return nil, notFound(id)
	}
	return item, nil
}

// ListItems returns items matching filter, ordered by name.
func ListItems(ctx context.Context, db *sqlx.DB, filter ledger.ListFilter) ([]model.Item, error) {
	var where []string
	var args []any
	if !filter.IncludeArchived {
		where = append(where, "deleted_at IS NULL")
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.MakerspaceID != "" {
		where = append(where, "makerspace_id = ?")
		args = append(args, filter.MakerspaceID)
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY name, id`

	var items []model.Item
	if err := db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return items, nil
}

// UpdateItem rewrites an item's metadata inside a transaction. Quantity,
// identity and timestamps other than updated_at are never written here.
func UpdateItem(ctx context.Context, db *sqlx.DB, id string, fn ledger.UpdateFunc) (*model.Item, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getLiveItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	updated, err := fn(*current)
	if err != nil {
		return nil, err
	}
	updated.ID = current.ID
	updated.Quantity = current.Quantity
	updated.CreatedAt = current.CreatedAt
	updated.DeletedAt = current.DeletedAt

	_, err = tx.NamedExecContext(ctx,
		`UPDATE items SET name = :name, category = :category, subcategory = :subcategory,
		        unit = :unit, min_threshold = :min_threshold, location = :location, status = :status,
		        supplier_type = :supplier_type, product_code = :product_code, price = :price,
		        supplier = :supplier, description = :description,
		        restricted_access_level = :restricted_access_level, updated_at = :updated_at
		 WHERE id = :id`,
		updated,
	)
	if err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing item update: %w", err)
	}
	updated.History = nil
	return &updated, nil
}

// MutateItem runs fn against the current item and persists the new quantity
// together with the returned usage log entry. The transaction starts
// IMMEDIATE, so no other writer can change the item between read and write.
func MutateItem(ctx context.Context, db *sqlx.DB, id string, fn ledger.MutateFunc) (*model.Item, *model.UsageLogEntry, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	item, err := getLiveItem(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}

	entry, err := fn(*item)
	if err != nil {
		return nil, nil, err
	}

	var last int64
	err = tx.GetContext(ctx, &last, `SELECT COALESCE(MAX(seq), 0) FROM usage_log WHERE item_id = ?`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("reading history position: %w", err)
	}
	entry.ItemID = id
	entry.Seq = last + 1

	_, err = tx.ExecContext(ctx,
		`UPDATE items SET quantity = ?, updated_at = ? WHERE id = ?`,
		entry.QuantityAfter, entry.Timestamp, id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("updating quantity: %w", err)
	}

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO usage_log (`+entryColumns+`)
		 VALUES (:id, :item_id, :seq, :timestamp, :user_id, :user_name, :action,
		         :quantity_before, :quantity_after, :reason, :linked_project_id, :linked_job_id)`,
		entry,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("appending usage entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing mutation: %w", err)
	}

	item.Quantity = entry.QuantityAfter
	item.UpdatedAt = entry.Timestamp
	return item, &entry, nil
}

// GetItemHistory returns an item's usage log in sequence order.
func GetItemHistory(ctx context.Context, db *sqlx.DB, id string) ([]model.UsageLogEntry, error) {
	if _, err := GetItem(ctx, db, id); err != nil {
		return nil, err
	}

	entries := []model.UsageLogEntry{}
	err := db.SelectContext(ctx, &entries,
		`SELECT `+entryColumns+` FROM usage_log WHERE item_id = ? ORDER BY seq`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("getting item history: %w", err)
	}
	return entries, nil
}

// DeleteItem archives an item that has usage history and purges one that
// has none.
func DeleteItem(ctx context.Context, db *sqlx.DB, id string, now time.Time) (model.DeleteOutcome, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := getLiveItem(ctx, tx, id); err != nil {
		return "", err
	}

	var entries int
	if err := tx.GetContext(ctx, &entries, `SELECT COUNT(*) FROM usage_log WHERE item_id = ?`, id); err != nil {
		return "", fmt.Errorf("counting history: %w", err)
	}

	outcome := model.DeleteArchived
	if entries == 0 {
		outcome = model.DeletePurged
		if _, err := tx.ExecContext(ctx, `DELETE FROM item_images WHERE item_id = ?`, id); err != nil {
			return "", fmt.Errorf("deleting item image: %w", err)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE items SET deleted_at = ? WHERE id = ?`, now, id)
	}
	if err != nil {
		return "", fmt.Errorf("deleting item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing delete: %w", err)
	}
	return outcome, nil
}

// Items adapts the item functions to ledger.Repository.
type Items struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ ledger.Repository = (*Items)(nil)

// NewItems returns a ledger.Repository backed by db.
func NewItems(db *sqlx.DB) *Items {
	return &Items{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Items) Create(ctx context.Context, item model.Item) (*model.Item, error) {
	return CreateItem(ctx, s.db, item)
}

func (s *Items) Get(ctx context.Context, id string) (*model.Item, error) {
	return GetItem(ctx, s.db, id)
}

func (s *Items) List(ctx context.Context, filter ledger.ListFilter) ([]model.Item, error) {
	return ListItems(ctx, s.db, filter)
}

func (s *Items) Update(ctx context.Context, id string, fn ledger.UpdateFunc) (*model.Item, error) {
	return UpdateItem(ctx, s.db, id, fn)
}

func (s *Items) Mutate(ctx context.Context, id string, fn ledger.MutateFunc) (*model.Item, *model.UsageLogEntry, error) {
	return MutateItem(ctx, s.db, id, fn)
}

func (s *Items) History(ctx context.Context, id string) ([]model.UsageLogEntry, error) {
	return GetItemHistory(ctx, s.db, id)
}

func (s *Items) Delete(ctx context.Context, id string) (model.DeleteOutcome, error) {
	return DeleteItem(ctx, s.db, id, s.now())
}
