package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLImages stores photos in the item_images table.
type SQLImages struct {
	db *sqlx.DB
}

// NewSQLImages returns an ImageStore backed by db.
func NewSQLImages(db *sqlx.DB) *SQLImages { return &SQLImages{db: db} }

// SetItemImage replaces a live item's photo and thumbnail.
func (s *SQLImages) SetItemImage(ctx context.Context, itemID string, image, thumbnail []byte, mime string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := getLiveItem(ctx, tx, itemID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO item_images (item_id, image, thumbnail) VALUES (?, ?, ?)
		 ON CONFLICT (item_id) DO UPDATE SET image = excluded.image, thumbnail = excluded.thumbnail`,
		itemID, image, thumbnail,
	)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE items SET image_mime = ? WHERE id = ?`, mime, itemID); err != nil {
		return fmt.Errorf("setting item image type: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing item image: %w", err)
	}
	return nil
}

// GetItemImage returns an item's photo or thumbnail and its MIME type. A
// missing image yields nil data and no error.
func (s *SQLImages) GetItemImage(ctx context.Context, itemID string, thumbnail bool) ([]byte, string, error) {
	column := "image"
	if thumbnail {
		column = "thumbnail"
	}

	var row struct {
		Data []byte `db:"data"`
		MIME string `db:"image_mime"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT img.`+column+` AS data, i.image_mime
		 FROM item_images img JOIN items i ON i.id = img.item_id
		 WHERE img.item_id = ?`, itemID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return row.Data, row.MIME, nil
}
