// Package ledgertest holds behaviour tests shared by every ledger.Repository
// implementation.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/erazemk/makerledger/internal/ledger"
	"github.com/erazemk/makerledger/internal/model"
)

// Actor is the caller recorded on entries written by the suite.
var Actor = model.Actor{UserID: "u-1", UserName: "alice", Role: model.RoleAdmin}

// NewItem returns a valid item ready for Ledger.Add.
func NewItem(name, qty, min string) model.Item {
	return model.Item{
		Name:         name,
		Category:     model.CategoryFilament,
		Quantity:     decimal.RequireFromString(qty),
		Unit:         "kg",
		MinThreshold: decimal.RequireFromString(min),
		Location:     "shelf A",
		SupplierType: model.SupplierMakrX,
		MakerspaceID: "ms-1",
	}
}

// Qty parses a decimal literal.
func Qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Run exercises repo through a Ledger. newRepo must return an empty
// repository on every call.
func Run(t *testing.T, newRepo func(t *testing.T) ledger.Repository) {
	t.Run("AddStartsWithEmptyHistory", func(t *testing.T) { testAdd(t, newRepo(t)) })
	t.Run("IssueUpdatesQuantityAndHistory", func(t *testing.T) { testIssue(t, newRepo(t)) })
	t.Run("InsufficientStockLeavesStateUntouched", func(t *testing.T) { testInsufficient(t, newRepo(t)) })
	t.Run("IssueRequiresActive", func(t *testing.T) { testIssueInactive(t, newRepo(t)) })
	t.Run("Conservation", func(t *testing.T) { testConservation(t, newRepo(t)) })
	t.Run("ConcurrentIssues", func(t *testing.T) { testConcurrentIssues(t, newRepo(t)) })
	t.Run("UpdateKeepsQuantity", func(t *testing.T) { testUpdate(t, newRepo(t)) })
	t.Run("DeleteArchivesOrPurges", func(t *testing.T) { testDelete(t, newRepo(t)) })
	t.Run("ListFilters", func(t *testing.T) { testList(t, newRepo(t)) })
	t.Run("MissingItem", func(t *testing.T) { testMissing(t, newRepo(t)) })
}

func mustAdd(t *testing.T, l *ledger.Ledger, item model.Item) *model.Item {
	t.Helper()
	created, err := l.Add(context.Background(), item)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return created
}

func testAdd(t *testing.T, repo ledger.Repository) {
	l := ledger.New(repo)
	ctx := context.Background()

	in := NewItem("PLA", "5", "3")
	in.Status = model.ItemStatusDamaged
	created := mustAdd(t, l, in)
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	if created.Status != model.ItemStatusActive {
		t.Errorf("expected status active, got %q", created.Status)
	}

	got, err := l.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Quantity.Equal(Qty("5")) {
		t.Errorf("expected quantity 5, got %s", got.Quantity)
	}
	history, err := l.History(ctx, created.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d entries", len(history))
	}
}

func testIssue(t *testing.T, repo ledger.Repository) {
	l := ledger.New(repo)
	ctx := context.Background()
	item := mustAdd(t, l, NewItem("PLA", "5", "3"))

	updated, entry, err := l.Issue(ctx, Actor, item.ID, ledger.Change{
		Quantity: Qty("2"), Reason: "print job", LinkedProjectID: "proj-X",
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !updated.Quantity.Equal(Qty("3")) {
		t.Errorf("expected quantity 3, got %s", updated.Quantity)
	}
	if entry.Seq != 1 || entry.Action != model.ActionIssue {
		t.Errorf("unexpected entry: seq=%d action=%q", entry.Seq, entry.Action)
	}

	history, err := l.History(ctx, item.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(history))
	}
	e := history[0]
	if !e.QuantityBefore.Equal(Qty("5")) || !e.QuantityAfter.Equal(Qty("3")) {
		t.Errorf("expected 5 -> 3, got %s -> %s", e.QuantityBefore, e.QuantityAfter)
	}
	if e.UserID != Actor.UserID || e.UserName != Actor.UserName {
		t.Errorf("unexpected actor on entry: %q %q", e.UserID, e.UserName)
	}
	if e.LinkedProjectID != "proj-X" {
		t.Errorf("expected linked project proj-X, got %q", e.LinkedProjectID)
	}
}

func testInsufficient(t *testing.T, repo ledger.Repository) {
	l := ledger.New(repo)
	ctx := context.Background()
	item := mustAdd(t, l, NewItem("PLA", "5", "3"))

	_, _, err := l.Issue(ctx, Actor, item.ID, ledger.Change{Quantity: Qty("10")})
	if !errors.Is(err, model.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	_, _, err = l.Adjust(ctx, Actor, item.ID, ledger.Change{Quantity: Qty("-6")})
	if !errors.Is(err, model.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for adjust, got %v", err)
	}
	_, _, err = l.Issue(ctx, Actor, item.ID, ledger.Change{Quantity: Qty("0")})
	if !errors.Is(err, model.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}

	got, _ := l.Get(ctx, item.ID)
	if !got.Quantity.Equal(Qty("5")) {
		t.Errorf("expected quantity 5, got %s", got.Quantity)
	}
	history, _ := l.History(ctx, item.ID)
	if len(history) != 0 {
		t.Errorf("expected no entries, got %d", len(history))
	}
}

func testIssueInactive(t *testing.T, repo ledger.Repository) {
	l := ledger.New(repo)
	ctx := context.Background()
	item := mustAdd(t, l, NewItem("Resin", "5", "1"))

	status := model.ItemStatusDamaged
	if _, err := l.Update(ctx, item.ID, model.ItemPatch{Status: &status}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	_, _, err := l.Issue(ctx, Actor, item.ID, ledger.Change{Quantity: Qty("1")})
	if !errors.Is(err, model.ErrItemNotActive) {
		t.Fatalf("expected ErrItemNotActive, got %v", err)
	}

	// Restock has no status restriction.
	updated, _, err := l.Restock(ctx, Actor, item.ID, ledger.Change{Quantity: Qty("2")})
	if err != nil {
		t.Fatalf("Restock: %v", err)
	}
	if !updated.Quantity.Equal(Qty("7")) {
		t.Errorf("expected quantity 7, got %s", updated.Quantity)
	}
}

func testConservation(t *testing.T, repo ledger.Repository) {
	l := ledger.New(repo)
	ctx := context.Background()
	item := mustAdd(t, l, NewItem("PETG", "10.5", "1"))

	ops := []struct {
		fn  func(context.Context, model.Actor, string, ledger.Change) (*model.Item, *model.UsageLogEntry, error)
		qty string
	}{
		{l.Issue, "2.25"},
		{l.Restock, "4"},
		{l.AddStock, "0.75"},
		{l.Adjust, "-1.5"},
		{l.Damage, "0.5"},
		{l.Transfer, "3"},
		{l.Adjust, "0.25"},
	}
	for i, op := range ops {
		if _, _, err := op.fn(ctx, Actor, item.ID, ledger.Change{Quantity: Qty(op.qty)}); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
	}

	history, err := l.History(ctx, item.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != len(ops) {
		t.Fatalf("expected %d entries, got %d", len(ops), len(history))
	}

	sum := Qty("10.5")
	for i, e := range history {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d: expected seq %d, got %d", i, i+1, e.Seq)
		}
		if i > 0 && !e.QuantityBefore.Equal(history[i-1].QuantityAfter) {
			t.Errorf("entry %d: before %s does not chain from %s", i, e.QuantityBefore, history[i-1].QuantityAfter)
		}
		sum = sum.Add(e.Delta())
	}

	got, _ := l.Get(ctx, item.ID)
	if !got.Quantity.Equal(sum) {
		t.Errorf("quantity %s does not equal initial plus deltas %s", got.Quantity, sum)
	}
	if !got.Quantity.Equal(history[len(history)-1].QuantityAfter) {
		t.Errorf("quantity %s does not equal last entry %s", got.Quantity, history[len(history)-1].QuantityAfter)
	}
	if !got.Quantity.Equal(Qty("8.25")) {
		t.Errorf("expected 8.25, got %s", got.Quantity)
	}
}

func testConcurrentIssues(t *testing.T, repo ledger.Repository) {
	l := ledger.New(repo)
	ctx := context.Background()
	item := mustAdd(t, l, NewItem("Screws", "20", "0"))
	other := mustAdd(t, l, NewItem("Nuts", "20", "0"))

	const workers = 30
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := item.ID
			if i%3 == 0 {
				id = other.ID
			}
			_, _, err := l.Issue(ctx, Actor, id, ledger.Change{Quantity: Qty("1"), Reason: fmt.Sprintf("w%d", i)})
			if err == nil && id == item.ID {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if err != nil && !errors.Is(err, model.ErrInsufficientStock) {
				t.Errorf("Issue: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := l.Get(ctx, item.ID)
	want := Qty("20").Sub(decimal.NewFromInt(int64(succeeded)))
	if !got.Quantity.Equal(want) {
		t.Errorf("expected quantity %s after %d issues, got %s", want, succeeded, got.Quantity)
	}
	history, _ := l.History(ctx, item.ID)
	if len(history) != succeeded {
		t.Errorf("expected %d entries, got %d", succeeded, len(history))
	}
	for i, e := range history {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d has seq %d", i, e.Seq)
		}
	}
}

func testUpdate(t *testing.T, repo ledger.Repository) {
	l := ledger.New(repo)
	ctx := context.Background()
	item := mustAdd(t, l, NewItem("PLA", "5", "3"))

	loc := "bin 7"
	updated, err := l.Update(ctx, item.ID, model.ItemPatch{Location: &loc})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Location != "bin 7" || !updated.Quantity.Equal(Qty("5")) {
		t.Errorf("unexpected item after update: %+v", updated)
	}

	bad := "bogus"
	if _, err := l.Update(ctx, item.ID, model.ItemPatch{Category: &bad}); !errors.Is(err, model.ErrInvalidField) {
		t.Errorf("expected ErrInvalidField, got %v", err)
	}
	got, _ := l.Get(ctx, item.ID)
	if got.Category != model.CategoryFilament {
		t.Errorf("failed update changed category to %q", got.Category)
	}
}

func testDelete(t *testing.T, repo ledger.Repository) {
	l := ledger.New(repo)
	ctx := context.Background()

	fresh := mustAdd(t, l, NewItem("Unused", "1", "0"))
	outcome, err := l.Delete(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if outcome != model.DeletePurged {
		t.Errorf("expected purged, got %q", outcome)
	}
	if _, err := l.Get(ctx, fresh.ID); !errors.Is(err, model.ErrItemNotFound) {
		t.Errorf("expected purged item to be gone, got %v", err)
	}

	used := mustAdd(t, l, NewItem("Used", "4", "0"))
	if _, _, err := l.Issue(ctx, Actor, used.ID, ledger.Change{Quantity: Qty("1")}); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	outcome, err = l.Delete(ctx, used.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if outcome != model.DeleteArchived {
		t.Errorf("expected archived, got %q", outcome)
	}

	got, err := l.Get(ctx, used.ID)
	if err != nil {
		t.Fatalf("Get archived: %v", err)
	}
	if !got.Archived() {
		t.Error("expected archived item to carry deleted_at")
	}
	history, err := l.History(ctx, used.ID)
	if err != nil || len(history) != 1 {
		t.Errorf("expected history to survive archival, got %d entries, err %v", len(history), err)
	}

	if _, _, err := l.Issue(ctx, Actor, used.ID, ledger.Change{Quantity: Qty("1")}); !errors.Is(err, model.ErrItemNotFound) {
		t.Errorf("expected archived item to reject mutations, got %v", err)
	}
	items, _ := l.List(ctx, ledger.ListFilter{})
	for _, it := range items {
		if it.ID == used.ID {
			t.Error("archived item listed")
		}
	}
	if _, err := l.Delete(ctx, used.ID); !errors.Is(err, model.ErrItemNotFound) {
		t.Errorf("expected second delete to report not found, got %v", err)
	}
}

func testList(t *testing.T, repo ledger.Repository) {
	l := ledger.New(repo)
	ctx := context.Background()

	a := NewItem("Arduino", "3", "1")
	a.Category = model.CategoryElectronics
	mustAdd(t, l, a)
	b := NewItem("Bronze PLA", "3", "1")
	b.MakerspaceID = "ms-2"
	mustAdd(t, l, b)
	mustAdd(t, l, NewItem("Carbon PLA", "3", "1"))

	all, err := l.List(ctx, ledger.ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].Name != "Arduino" {
		t.Fatalf("expected 3 items sorted by name, got %d", len(all))
	}

	filament, _ := l.List(ctx, ledger.ListFilter{Category: model.CategoryFilament})
	if len(filament) != 2 {
		t.Errorf("expected 2 filament items, got %d", len(filament))
	}
	scoped, _ := l.List(ctx, ledger.ListFilter{MakerspaceID: "ms-2"})
	if len(scoped) != 1 || scoped[0].Name != "Bronze PLA" {
		t.Errorf("unexpected makerspace filter result: %+v", scoped)
	}
}

func testMissing(t *testing.T, repo ledger.Repository) {
	l := ledger.New(repo)
	ctx := context.Background()

	if _, err := l.Get(ctx, "nope"); !errors.Is(err, model.ErrItemNotFound) {
		t.Errorf("Get: expected ErrItemNotFound, got %v", err)
	}
	if _, _, err := l.Restock(ctx, Actor, "nope", ledger.Change{Quantity: Qty("1")}); !errors.Is(err, model.ErrItemNotFound) {
		t.Errorf("Restock: expected ErrItemNotFound, got %v", err)
	}
	if _, err := l.History(ctx, "nope"); !errors.Is(err, model.ErrItemNotFound) {
		t.Errorf("History: expected ErrItemNotFound, got %v", err)
	}
	if _, err := l.Delete(ctx, "nope"); !errors.Is(err, model.ErrItemNotFound) {
		t.Errorf("Delete: expected ErrItemNotFound, got %v", err)
	}
}
