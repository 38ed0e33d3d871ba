// Package report renders inventory snapshots for download.
package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/erazemk/makerledger/internal/model"
)

// Header is the first row of every CSV report.
var Header = []string{
	"Name", "Category", "Subcategory", "Quantity", "Unit", "Min Threshold",
	"Location", "Status", "Supplier Type", "Product Code", "Price", "Supplier",
	"Description",
}

// WriteCSV writes one row per item after the header. Items without a price get
// an empty Price cell.
func WriteCSV(w io.Writer, items []model.Item) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, item := range items {
		price := ""
		if item.Price.Valid {
			price = item.Price.Decimal.StringFixed(2)
		}
		row := []string{
			item.Name,
			item.Category,
			item.Subcategory,
			item.Quantity.String(),
			item.Unit,
			item.MinThreshold.String(),
			item.Location,
			item.Status,
			item.SupplierType,
			item.ProductCode,
			price,
			item.Supplier,
			item.Description,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row for %s: %w", item.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}
