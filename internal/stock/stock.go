// Package stock evaluates low-stock alerts over an item snapshot.
package stock

import "github.com/erazemk/makerledger/internal/model"

// IsLow reports whether an active item is at or below its minimum threshold.
func IsLow(item model.Item) bool {
	return item.Status == model.ItemStatusActive &&
		!item.Archived() &&
		item.Quantity.LessThanOrEqual(item.MinThreshold)
}

// LowStock returns the items of snapshot that are low, in snapshot order.
func LowStock(snapshot []model.Item) []model.Item {
	low := []model.Item{}
	for _, item := range snapshot {
		if IsLow(item) {
			low = append(low, item)
		}
	}
	return low
}
