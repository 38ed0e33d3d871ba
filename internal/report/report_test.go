package report

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/erazemk/makerledger/internal/model"
)

func TestWriteCSV(t *testing.T) {
	items := []model.Item{
		{
			ID:           "1",
			Name:         "PLA, black",
			Category:     model.CategoryFilament,
			Quantity:     decimal.RequireFromString("2.5"),
			Unit:         "kg",
			MinThreshold: decimal.NewFromInt(1),
			Location:     "Shelf A",
			Status:       model.ItemStatusActive,
			SupplierType: model.SupplierMakrX,
			Price:        decimal.NewNullDecimal(decimal.RequireFromString("19.9")),
			Description:  "line one\nline two",
		},
		{
			ID:           "2",
			Name:         "Soldering iron",
			Category:     model.CategoryTools,
			Quantity:     decimal.NewFromInt(3),
			Unit:         "pcs",
			MinThreshold: decimal.Zero,
			Status:       model.ItemStatusInUse,
			SupplierType: model.SupplierExternal,
		},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, items); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading csv back: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "Name" || rows[0][12] != "Description" || len(rows[0]) != 13 {
		t.Errorf("unexpected header: %v", rows[0])
	}

	first := rows[1]
	if first[0] != "PLA, black" {
		t.Errorf("name not preserved: %q", first[0])
	}
	if first[3] != "2.5" {
		t.Errorf("expected quantity 2.5, got %q", first[3])
	}
	if first[10] != "19.90" {
		t.Errorf("expected price 19.90, got %q", first[10])
	}
	if first[12] != "line one\nline two" {
		t.Errorf("description not preserved: %q", first[12])
	}

	if rows[2][10] != "" {
		t.Errorf("expected empty price, got %q", rows[2][10])
	}
	if rows[2][7] != model.ItemStatusInUse {
		t.Errorf("expected status in_use, got %q", rows[2][7])
	}
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading csv back: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected header only, got %d rows", len(rows))
	}
}
