package bom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/makerledger/internal/model"
)

// Defaults for an Executor with zero-valued limits.
const (
	DefaultConcurrency = 4
	DefaultItemTimeout = 10 * time.Second
)

// idempotencyNamespace scopes export idempotency keys.
var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://makerledger/bom-export"))

// IdempotencyKey returns the stable key for exporting one BOM item of a
// project. Retrying the same export reuses the key.
func IdempotencyKey(projectID, bomItemID string) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(projectID+"/"+bomItemID)).String()
}

// CartLine is one add-to-cart request.
type CartLine struct {
	SKU            string          `json:"sku"`
	Quantity       decimal.Decimal `json:"quantity"`
	Portal         string          `json:"portal"`
	UserEmail      string          `json:"user_email"`
	ProjectID      string          `json:"project_id"`
	BOMItemID      string          `json:"bom_item_id"`
	IdempotencyKey string          `json:"-"`
}

// CartReceipt is the commerce service's answer to an accepted line.
type CartReceipt struct {
	CartURL string `json:"cart_url"`
}

// Cart adds lines to a commerce cart.
type Cart interface {
	AddToCart(ctx context.Context, line CartLine) (CartReceipt, error)
}

// ExportRequest selects BOM items of a project for export.
type ExportRequest struct {
	ProjectID     string   `json:"project_id"`
	SelectedItems []string `json:"selected_items"`
	TargetPortal  string   `json:"target_portal"`
	UserEmail     string   `json:"user_email"`
}

// Validate checks the request shape.
func (r ExportRequest) Validate() error {
	switch {
	case r.ProjectID == "":
		return model.Errorf(model.ErrMissingField, "project_id required")
	case len(r.SelectedItems) == 0:
		return model.Errorf(model.ErrMissingField, "selected_items required")
	case r.TargetPortal == "":
		return model.Errorf(model.ErrMissingField, "target_portal required")
	}
	return nil
}

// Executor exports selected preview items with bounded parallelism. Each
// dispatched cart call runs under its own timeout and is not cancelled when
// the batch context is; items not yet dispatched when the batch is cancelled
// are reported as cancelled.
type Executor struct {
	Cart        Cart
	Concurrency int
	ItemTimeout time.Duration
	Tracer      trace.Tracer
}

func (e *Executor) tracer() trace.Tracer {
	if e.Tracer != nil {
		return e.Tracer
	}
	return otel.Tracer("github.com/erazemk/makerledger/internal/bom")
}

// Execute exports the selected items and reports the fate of each one. It
// never fails as a whole; every selected id gets exactly one detail, in
// selection order with duplicates removed.
func (e *Executor) Execute(ctx context.Context, req ExportRequest, preview []model.ExportPreviewItem) model.ExportResult {
	byID := make(map[string]model.ExportPreviewItem, len(preview))
	for _, p := range preview {
		byID[p.ID] = p
	}

	ids := dedupe(req.SelectedItems)
	details := make([]model.ExportDetail, len(ids))
	cartURLs := make([]string, len(ids))

	limit := e.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for i, id := range ids {
		p, ok := byID[id]
		switch {
		case !ok:
			details[i] = model.ExportDetail{BOMItemID: id, Quantity: decimal.Zero,
				Status: model.ExportStatusNotExportable, Reason: model.ReasonNotInBOM}
			continue
		case !p.Exportable:
			details[i] = detailFor(p, model.ExportStatusNotExportable, p.Reason)
			continue
		case ctx.Err() != nil:
			details[i] = detailFor(p, model.ExportStatusCancelled, model.ReasonBatchCancelled)
			continue
		}

		g.Go(func() error {
			// The slot may have freed up only after the batch was cancelled.
			if ctx.Err() != nil {
				details[i] = detailFor(p, model.ExportStatusCancelled, model.ReasonBatchCancelled)
				return nil
			}
			details[i], cartURLs[i] = e.dispatch(ctx, req, p)
			return nil
		})
	}
	_ = g.Wait()

	return summarize(details, cartURLs)
}

func (e *Executor) dispatch(ctx context.Context, req ExportRequest, p model.ExportPreviewItem) (model.ExportDetail, string) {
	timeout := e.ItemTimeout
	if timeout <= 0 {
		timeout = DefaultItemTimeout
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	callCtx, span := e.tracer().Start(callCtx, "bom.export_item",
		trace.WithAttributes(
			attribute.String("bom.project_id", req.ProjectID),
			attribute.String("bom.item_id", p.ID),
			attribute.String("bom.sku", p.MappedSKU),
		))
	defer span.End()

	receipt, err := e.Cart.AddToCart(callCtx, CartLine{
		SKU:            p.MappedSKU,
		Quantity:       p.QuantityNeeded,
		Portal:         req.TargetPortal,
		UserEmail:      req.UserEmail,
		ProjectID:      req.ProjectID,
		BOMItemID:      p.ID,
		IdempotencyKey: IdempotencyKey(req.ProjectID, p.ID),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cart call failed")
		if isTimeout(err) {
			slog.Warn("cart call timed out", "project", req.ProjectID, "bom_item", p.ID, "timeout", timeout)
			return detailFor(p, model.ExportStatusTimeout, model.ReasonTimedOut), ""
		}
		slog.Warn("cart call failed", "project", req.ProjectID, "bom_item", p.ID, "error", err)
		return detailFor(p, model.ExportStatusFailed, err.Error()), ""
	}

	status := model.ExportStatusMappedAndExported
	if p.MappedSKU == strings.TrimSpace(p.PartCode) {
		status = model.ExportStatusExported
	}
	span.SetAttributes(attribute.String("bom.status", status))
	return detailFor(p, status, ""), receipt.CartURL
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func detailFor(p model.ExportPreviewItem, status, reason string) model.ExportDetail {
	return model.ExportDetail{
		BOMItemID: p.ID,
		PartName:  p.PartName,
		SKU:       p.MappedSKU,
		Quantity:  p.QuantityNeeded,
		Status:    status,
		Reason:    reason,
	}
}

func summarize(details []model.ExportDetail, cartURLs []string) model.ExportResult {
	res := model.ExportResult{Details: details}
	for i, d := range details {
		if d.Exported() {
			res.ExportedItems++
			if res.CartURL == "" {
				res.CartURL = cartURLs[i]
			}
		} else {
			res.SkippedItems++
		}
	}
	res.Success = res.ExportedItems > 0
	res.Message = fmt.Sprintf("Exported %d of %d items", res.ExportedItems, len(details))
	return res
}

// failAll reports every selected item as failed for the same reason.
func failAll(req ExportRequest, reason string) model.ExportResult {
	ids := dedupe(req.SelectedItems)
	details := make([]model.ExportDetail, len(ids))
	for i, id := range ids {
		details[i] = model.ExportDetail{BOMItemID: id, Quantity: decimal.Zero,
			Status: model.ExportStatusFailed, Reason: reason}
	}
	res := summarize(details, make([]string, len(ids)))
	res.Message = "Export failed: " + reason
	return res
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
