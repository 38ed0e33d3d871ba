// Package bom classifies a project's bill of materials for cart export and
// runs export batches against a commerce cart.
package bom

import (
	"context"
	"strings"

	"github.com/erazemk/makerledger/internal/model"
)

// SKUMapper resolves a part to a commerce SKU. It tries the part code first
// and falls back to the part name. An empty SKU with a nil error means the
// part is not mapped.
type SKUMapper interface {
	LookupSKU(ctx context.Context, partCode, partName string) (string, error)
}

// ProjectSource serves a project's bill of materials.
type ProjectSource interface {
	BOM(ctx context.Context, projectID string) ([]model.BOMItem, error)
}

// BuildPreview classifies every BOM item as exportable or not. The input is
// not modified and the output keeps input order. A mapper failure aborts the
// whole preview.
func BuildPreview(ctx context.Context, mapper SKUMapper, items []model.BOMItem) ([]model.ExportPreviewItem, error) {
	preview := make([]model.ExportPreviewItem, 0, len(items))
	for _, item := range items {
		p := model.ExportPreviewItem{BOMItem: item}

		code := strings.TrimSpace(item.PartCode)
		name := strings.TrimSpace(item.PartName)
		if code == "" && name == "" {
			p.Reason = model.ReasonMissingPart
			preview = append(preview, p)
			continue
		}

		sku, err := mapper.LookupSKU(ctx, code, name)
		if err != nil {
			return nil, err
		}
		if sku == "" {
			p.Reason = model.ReasonNoSKUMapping
		} else {
			p.Exportable = true
			p.MappedSKU = sku
		}
		preview = append(preview, p)
	}
	return preview, nil
}
