package model

import "github.com/shopspring/decimal"

// BOMItem is a project's bill-of-materials line as served by the projects
// service.
type BOMItem struct {
	ID             string          `json:"id"`
	PartName       string          `json:"part_name"`
	PartCode       string          `json:"part_code,omitempty"`
	QuantityNeeded decimal.Decimal `json:"quantity_needed"`
	Source         string          `json:"source"`
}

// ExportPreviewItem is a BOM line classified for cart export.
type ExportPreviewItem struct {
	BOMItem
	Exportable bool   `json:"exportable"`
	Reason     string `json:"reason,omitempty"`
	MappedSKU  string `json:"mapped_sku,omitempty"`
}

// Export detail statuses.
const (
	ExportStatusExported          = "exported"
	ExportStatusMappedAndExported = "mapped_and_exported"
	ExportStatusNotExportable     = "not_exportable"
	ExportStatusFailed            = "failed"
	ExportStatusTimeout           = "timeout"
	ExportStatusCancelled         = "cancelled"
)

// Reasons attached to non-exported details.
const (
	ReasonNoSKUMapping   = "No SKU mapping found"
	ReasonMissingPart    = "Missing part code and name"
	ReasonNotInBOM       = "Item not found in BOM"
	ReasonTimedOut       = "request timed out"
	ReasonBatchCancelled = "export cancelled before dispatch"
)

// ExportDetail is the fate of one submitted BOM line.
type ExportDetail struct {
	BOMItemID string          `json:"bom_item_id"`
	PartName  string          `json:"part_name"`
	SKU       string          `json:"sku,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	Status    string          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
}

// Exported reports whether the detail counts toward exported_items.
func (d ExportDetail) Exported() bool {
	return d.Status == ExportStatusExported || d.Status == ExportStatusMappedAndExported
}

// ExportResult aggregates a cart export batch.
type ExportResult struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	ExportedItems int            `json:"exported_items"`
	SkippedItems  int            `json:"skipped_items"`
	CartURL       string         `json:"cart_url,omitempty"`
	Details       []ExportDetail `json:"details"`
}
