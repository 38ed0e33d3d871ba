package stock

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/makerledger/internal/model"
)

func item(id, status string, qty, min string) model.Item {
	return model.Item{
		ID:           id,
		Status:       status,
		Quantity:     decimal.RequireFromString(qty),
		MinThreshold: decimal.RequireFromString(min),
	}
}

func TestIsLow(t *testing.T) {
	archivedAt := time.Now()
	archived := item("a", model.ItemStatusActive, "1", "3")
	archived.DeletedAt = &archivedAt

	tests := []struct {
		name string
		item model.Item
		want bool
	}{
		{"below", item("1", model.ItemStatusActive, "2", "3"), true},
		{"boundary is inclusive", item("2", model.ItemStatusActive, "3", "3"), true},
		{"above", item("3", model.ItemStatusActive, "3.01", "3"), false},
		{"fractional below", item("4", model.ItemStatusActive, "0.25", "0.5"), true},
		{"damaged never alerts", item("5", model.ItemStatusDamaged, "0", "3"), false},
		{"discontinued never alerts", item("6", model.ItemStatusDiscontinued, "0", "3"), false},
		{"archived never alerts", archived, false},
		{"zero threshold zero quantity", item("7", model.ItemStatusActive, "0", "0"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLow(tt.item); got != tt.want {
				t.Errorf("IsLow = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLowStockKeepsOrder(t *testing.T) {
	snapshot := []model.Item{
		item("c", model.ItemStatusActive, "1", "2"),
		item("b", model.ItemStatusActive, "9", "2"),
		item("a", model.ItemStatusActive, "0", "2"),
	}
	low := LowStock(snapshot)
	if len(low) != 2 {
		t.Fatalf("expected 2 low items, got %d", len(low))
	}
	if low[0].ID != "c" || low[1].ID != "a" {
		t.Errorf("unexpected order: %s, %s", low[0].ID, low[1].ID)
	}
}

func TestLowStockEmpty(t *testing.T) {
	low := LowStock(nil)
	if low == nil || len(low) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", low)
	}
}
