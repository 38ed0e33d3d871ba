package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erazemk/makerledger/internal/model"
)

// Change describes one requested quantity change.
type Change struct {
	Quantity        decimal.Decimal
	Reason          string
	LinkedProjectID string
	LinkedJobID     string
}

// Ledger applies quantity changes to items through a Repository.
type Ledger struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDs overrides the id generator.
func WithIDs(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// New returns a Ledger backed by repo.
func New(repo Repository, opts ...Option) *Ledger {
	l := &Ledger{
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Repository returns the underlying repository.
func (l *Ledger) Repository() Repository { return l.repo }

// Add creates a new item with an empty history. Server-owned fields in item
// are overwritten.
func (l *Ledger) Add(ctx context.Context, item model.Item) (*model.Item, error) {
	now := l.now()
	item.ID = l.newID()
	item.Status = model.ItemStatusActive
	item.CreatedAt = now
	item.UpdatedAt = now
	item.DeletedAt = nil
	item.History = nil
	item.ImageMIME = ""
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return l.repo.Create(ctx, item)
}

// Get returns an item, including archived ones.
func (l *Ledger) Get(ctx context.Context, id string) (*model.Item, error) {
	return l.repo.Get(ctx, id)
}

// List returns the items matching filter.
func (l *Ledger) List(ctx context.Context, filter ListFilter) ([]model.Item, error) {
	return l.repo.List(ctx, filter)
}

// History returns an item's usage log in order.
func (l *Ledger) History(ctx context.Context, id string) ([]model.UsageLogEntry, error) {
	return l.repo.History(ctx, id)
}

// Update applies a metadata patch. Quantity cannot be patched.
func (l *Ledger) Update(ctx context.Context, id string, patch model.ItemPatch) (*model.Item, error) {
	return l.repo.Update(ctx, id, func(item model.Item) (model.Item, error) {
		updated, err := patch.Apply(item)
		if err != nil {
			return item, err
		}
		updated.UpdatedAt = l.now()
		return updated, nil
	})
}

// Delete archives an item that has history and purges one that has none.
func (l *Ledger) Delete(ctx context.Context, id string) (model.DeleteOutcome, error) {
	return l.repo.Delete(ctx, id)
}

// Issue takes stock out of an active item.
func (l *Ledger) Issue(ctx context.Context, actor model.Actor, id string, c Change) (*model.Item, *model.UsageLogEntry, error) {
	return l.record(ctx, actor, id, model.ActionIssue, c)
}

// Restock adds stock to an item regardless of its status.
func (l *Ledger) Restock(ctx context.Context, actor model.Actor, id string, c Change) (*model.Item, *model.UsageLogEntry, error) {
	return l.record(ctx, actor, id, model.ActionRestock, c)
}

// AddStock adds stock recorded under the add action.
func (l *Ledger) AddStock(ctx context.Context, actor model.Actor, id string, c Change) (*model.Item, *model.UsageLogEntry, error) {
	return l.record(ctx, actor, id, model.ActionAdd, c)
}

// Adjust applies a signed correction. The result may not go below zero.
func (l *Ledger) Adjust(ctx context.Context, actor model.Actor, id string, c Change) (*model.Item, *model.UsageLogEntry, error) {
	return l.record(ctx, actor, id, model.ActionAdjust, c)
}

// Damage writes off damaged stock.
func (l *Ledger) Damage(ctx context.Context, actor model.Actor, id string, c Change) (*model.Item, *model.UsageLogEntry, error) {
	return l.record(ctx, actor, id, model.ActionDamage, c)
}

// Transfer removes stock that moves out of this makerspace's inventory.
func (l *Ledger) Transfer(ctx context.Context, actor model.Actor, id string, c Change) (*model.Item, *model.UsageLogEntry, error) {
	return l.record(ctx, actor, id, model.ActionTransfer, c)
}

func (l *Ledger) record(ctx context.Context, actor model.Actor, id, action string, c Change) (*model.Item, *model.UsageLogEntry, error) {
	if err := checkAmount(action, c.Quantity); err != nil {
		return nil, nil, err
	}
	return l.repo.Mutate(ctx, id, func(item model.Item) (model.UsageLogEntry, error) {
		after, err := apply(action, item, c.Quantity)
		if err != nil {
			return model.UsageLogEntry{}, err
		}
		return model.UsageLogEntry{
			ID:              l.newID(),
			Timestamp:       l.now(),
			UserID:          actor.UserID,
			UserName:        actor.UserName,
			Action:          action,
			QuantityBefore:  item.Quantity,
			QuantityAfter:   after,
			Reason:          c.Reason,
			LinkedProjectID: c.LinkedProjectID,
			LinkedJobID:     c.LinkedJobID,
		}, nil
	})
}
