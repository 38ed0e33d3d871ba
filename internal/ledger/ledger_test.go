package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erazemk/makerledger/internal/ledger"
	"github.com/erazemk/makerledger/internal/ledger/ledgertest"
	"github.com/erazemk/makerledger/internal/memstore"
	"github.com/erazemk/makerledger/internal/model"
	"github.com/erazemk/makerledger/internal/stock"
)

func newLedger() *ledger.Ledger {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return ledger.New(memstore.New(), ledger.WithClock(func() time.Time { return clock }))
}

func TestIssueIntoLowStock(t *testing.T) {
	l := newLedger()
	ctx := context.Background()

	item, err := l.Add(ctx, ledgertest.NewItem("PLA", "5", "3"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(stock.LowStock([]model.Item{*item})) != 0 {
		t.Fatal("item should not start low")
	}

	updated, _, err := l.Issue(ctx, ledgertest.Actor, item.ID, ledger.Change{
		Quantity: ledgertest.Qty("2"), Reason: "proj-X", LinkedProjectID: "proj-X",
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !updated.Quantity.Equal(ledgertest.Qty("3")) {
		t.Errorf("expected 3, got %s", updated.Quantity)
	}

	items, _ := l.List(ctx, ledger.ListFilter{})
	low := stock.LowStock(items)
	if len(low) != 1 || low[0].ID != item.ID {
		t.Errorf("expected item in low-stock set, got %+v", low)
	}
}

func TestIssueBeyondStock(t *testing.T) {
	l := newLedger()
	ctx := context.Background()
	item, _ := l.Add(ctx, ledgertest.NewItem("PLA", "5", "3"))

	_, _, err := l.Issue(ctx, ledgertest.Actor, item.ID, ledger.Change{Quantity: ledgertest.Qty("10")})
	if !errors.Is(err, model.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if model.KindOf(err) != model.KindConflict {
		t.Errorf("expected conflict kind, got %q", model.KindOf(err))
	}

	got, _ := l.Get(ctx, item.ID)
	if !got.Quantity.Equal(ledgertest.Qty("5")) {
		t.Errorf("expected 5, got %s", got.Quantity)
	}
	history, _ := l.History(ctx, item.ID)
	if len(history) != 0 {
		t.Errorf("expected unchanged history, got %d entries", len(history))
	}
}

func TestServerOwnedFields(t *testing.T) {
	n := 0
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := ledger.New(memstore.New(),
		ledger.WithClock(func() time.Time { return clock }),
		ledger.WithIDs(func() string { n++; return "id-" + string(rune('0'+n)) }),
	)
	ctx := context.Background()

	in := ledgertest.NewItem("PLA", "5", "3")
	in.ID = "client-chosen"
	item, err := l.Add(ctx, in)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if item.ID != "id-1" {
		t.Errorf("expected generated id id-1, got %q", item.ID)
	}
	if !item.CreatedAt.Equal(clock) {
		t.Errorf("expected created_at from clock, got %v", item.CreatedAt)
	}

	_, entry, err := l.Restock(ctx, ledgertest.Actor, item.ID, ledger.Change{Quantity: ledgertest.Qty("1")})
	if err != nil {
		t.Fatalf("Restock: %v", err)
	}
	if entry.ID != "id-2" || !entry.Timestamp.Equal(clock) || entry.ItemID != item.ID {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestAddValidates(t *testing.T) {
	l := newLedger()
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*model.Item)
		want   *model.Error
	}{
		{"missing name", func(i *model.Item) { i.Name = "" }, model.ErrMissingField},
		{"missing makerspace", func(i *model.Item) { i.MakerspaceID = "" }, model.ErrMissingField},
		{"bad category", func(i *model.Item) { i.Category = "snacks" }, model.ErrInvalidField},
		{"negative quantity", func(i *model.Item) { i.Quantity = ledgertest.Qty("-1") }, model.ErrInvalidQuantity},
		{"bad access level", func(i *model.Item) { i.RestrictedAccessLevel = "root" }, model.ErrInvalidField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := ledgertest.NewItem("PLA", "5", "3")
			tt.mutate(&item)
			if _, err := l.Add(ctx, item); !errors.Is(err, tt.want) {
				t.Errorf("expected %s, got %v", tt.want.Code, err)
			}
		})
	}
}
