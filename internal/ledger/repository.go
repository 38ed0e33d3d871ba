// Package ledger records every quantity change of an inventory item as an
// append-only usage log entry.
package ledger

import (
	"context"

	"github.com/erazemk/makerledger/internal/model"
)

// ListFilter narrows List results. Empty fields match everything.
type ListFilter struct {
	Status          string
	Category        string
	MakerspaceID    string
	IncludeArchived bool
}

// Match reports whether item passes the filter.
func (f ListFilter) Match(item model.Item) bool {
	if item.Archived() && !f.IncludeArchived {
		return false
	}
	if f.Status != "" && item.Status != f.Status {
		return false
	}
	if f.Category != "" && item.Category != f.Category {
		return false
	}
	if f.MakerspaceID != "" && item.MakerspaceID != f.MakerspaceID {
		return false
	}
	return true
}

// MutateFunc inspects the current state of an item and returns the entry to
// append. The repository assigns ItemID and Seq; the item's quantity becomes
// the entry's QuantityAfter. Returning an error aborts the mutation with no
// change.
type MutateFunc func(item model.Item) (model.UsageLogEntry, error)

// UpdateFunc returns the new metadata for an item. Quantity changes are
// ignored.
type UpdateFunc func(item model.Item) (model.Item, error)

// Repository stores items and their usage history. Implementations must run
// Mutate and Update as one atomic unit per item: concurrent calls on the same
// item are serialized, calls on distinct items may run in parallel.
//
// Get and History return archived items; List, Mutate and Update treat them
// as missing. Missing items are reported as model.ErrItemNotFound.
type Repository interface {
	Create(ctx context.Context, item model.Item) (*model.Item, error)
	Get(ctx context.Context, id string) (*model.Item, error)
	List(ctx context.Context, filter ListFilter) ([]model.Item, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*model.Item, error)
	Mutate(ctx context.Context, id string, fn MutateFunc) (*model.Item, *model.UsageLogEntry, error)
	History(ctx context.Context, id string) ([]model.UsageLogEntry, error)
	Delete(ctx context.Context, id string) (model.DeleteOutcome, error)
}
