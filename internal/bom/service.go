package bom

import (
	"context"
	"errors"
	"log/slog"

	"github.com/erazemk/makerledger/internal/model"
)

// Service previews and exports a project's bill of materials.
type Service struct {
	Projects ProjectSource
	Mapper   SKUMapper
	Executor *Executor
}

// Preview fetches the project's BOM and classifies it.
func (s *Service) Preview(ctx context.Context, projectID string) ([]model.ExportPreviewItem, error) {
	items, err := s.Projects.BOM(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return BuildPreview(ctx, s.Mapper, items)
}

// Export re-derives the preview server-side and exports the selected items.
// When an upstream service cannot build the preview, every selected item is
// reported as failed. Only invalid requests and unknown projects are errors.
func (s *Service) Export(ctx context.Context, req ExportRequest) (model.ExportResult, error) {
	if err := req.Validate(); err != nil {
		return model.ExportResult{}, err
	}
	preview, err := s.Preview(ctx, req.ProjectID)
	if model.KindOf(err) == model.KindExternal {
		slog.Warn("bom export preview failed", "project", req.ProjectID, "error", err)
		return failAll(req, upstreamReason(err)), nil
	}
	if err != nil {
		return model.ExportResult{}, err
	}

	res := s.Executor.Execute(ctx, req, preview)
	slog.Info("bom export finished", "project", req.ProjectID, "portal", req.TargetPortal,
		"exported", res.ExportedItems, "skipped", res.SkippedItems, "success", res.Success)
	return res, nil
}

// upstreamReason is the client-facing message of an upstream failure.
func upstreamReason(err error) string {
	var e *model.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
