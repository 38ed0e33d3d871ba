// Package memstore is an in-memory ledger.Repository. Each item carries its
// own mutex so mutations of distinct items run in parallel; the map lock is
// only held to look records up or change membership.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/erazemk/makerledger/internal/ledger"
	"github.com/erazemk/makerledger/internal/model"
)

type record struct {
	mu      sync.Mutex
	item    model.Item
	history []model.UsageLogEntry
	purged  bool
}

// Store holds items in memory. The zero value is not usable; call New.
type Store struct {
	mu      sync.RWMutex
	items   map[string]*record
	now     func() time.Time
	onPurge []func(id string)
}

var _ ledger.Repository = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		items: make(map[string]*record),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// notifyPurge registers fn to run, under the store lock, for every purged item.
func (s *Store) notifyPurge(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPurge = append(s.onPurge, fn)
}

func (s *Store) lookup(id string) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[id]
}

// Create inserts a new item.
func (s *Store) Create(_ context.Context, item model.Item) (*model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; ok {
		return nil, model.Errorf(model.ErrInvalidField, "item %s already exists", item.ID)
	}
	item.History = nil
	s.items[item.ID] = &record{item: item}
	return &item, nil
}

// Get returns an item by id, archived or not.
func (s *Store) Get(_ context.Context, id string) (*model.Item, error) {
	rec := s.lookup(id)
	if rec == nil {
		return nil, notFound(id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.purged {
		return nil, notFound(id)
	}
	item := rec.item
	return &item, nil
}

// List returns matching items ordered by name.
func (s *Store) List(_ context.Context, filter ledger.ListFilter) ([]model.Item, error) {
	s.mu.RLock()
	recs := make([]*record, 0, len(s.items))
	for _, rec := range s.items {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	var items []model.Item
	for _, rec := range recs {
		rec.mu.Lock()
		item, purged := rec.item, rec.purged
		rec.mu.Unlock()
		if !purged && filter.Match(item) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// Update replaces an item's metadata. Quantity and identity are preserved.
func (s *Store) Update(_ context.Context, id string, fn ledger.UpdateFunc) (*model.Item, error) {
	rec := s.lookup(id)
	if rec == nil {
		return nil, notFound(id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.purged || rec.item.Archived() {
		return nil, notFound(id)
	}

	updated, err := fn(rec.item)
	if err != nil {
		return nil, err
	}
	updated.ID = rec.item.ID
	updated.Quantity = rec.item.Quantity
	updated.CreatedAt = rec.item.CreatedAt
	updated.DeletedAt = rec.item.DeletedAt
	updated.History = nil
	rec.item = updated
	return &updated, nil
}

// Mutate runs fn under the item's lock and appends the returned entry.
func (s *Store) Mutate(_ context.Context, id string, fn ledger.MutateFunc) (*model.Item, *model.UsageLogEntry, error) {
	rec := s.lookup(id)
	if rec == nil {
		return nil, nil, notFound(id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.purged || rec.item.Archived() {
		return nil, nil, notFound(id)
	}

	entry, err := fn(rec.item)
	if err != nil {
		return nil, nil, err
	}
	entry.ItemID = id
	entry.Seq = int64(len(rec.history)) + 1
	rec.history = append(rec.history, entry)
	rec.item.Quantity = entry.QuantityAfter
	rec.item.UpdatedAt = entry.Timestamp

	item := rec.item
	return &item, &entry, nil
}

// History returns a copy of an item's usage log.
func (s *Store) History(_ context.Context, id string) ([]model.UsageLogEntry, error) {
	rec := s.lookup(id)
	if rec == nil {
		return nil, notFound(id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.purged {
		return nil, notFound(id)
	}
	out := make([]model.UsageLogEntry, len(rec.history))
	copy(out, rec.history)
	return out, nil
}

// Delete archives an item with history and purges one without.
func (s *Store) Delete(_ context.Context, id string) (model.DeleteOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.items[id]
	if rec == nil {
		return "", notFound(id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.item.Archived() {
		return "", notFound(id)
	}

	if len(rec.history) == 0 {
		rec.purged = true
		delete(s.items, id)
		for _, fn := range s.onPurge {
			fn(id)
		}
		return model.DeletePurged, nil
	}
	archivedAt := s.now()
	rec.item.DeletedAt = &archivedAt
	return model.DeleteArchived, nil
}

func notFound(id string) error {
	return model.Errorf(model.ErrItemNotFound, "item %s not found", id)
}
