package api

import (
	"net/http"

	"github.com/erazemk/makerledger/internal/bom"
	"github.com/erazemk/makerledger/internal/model"
	"github.com/erazemk/makerledger/internal/policy"
)

// BOMHandler handles project BOM export endpoints.
type BOMHandler struct {
	Service *bom.Service
}

func (h *BOMHandler) allowed(w http.ResponseWriter, r *http.Request) bool {
	if !policy.CanExport(actorFrom(r)) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return false
	}
	return true
}

// Preview handles GET /projects/{id}/bom/export/preview.
func (h *BOMHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r) {
		return
	}

	items, err := h.Service.Preview(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.ExportPreviewItem{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{"items": items})
}

// Export handles POST /projects/{id}/bom/export. A body project_id, when
// present, must name the same project as the path.
func (h *BOMHandler) Export(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r) {
		return
	}

	var req bom.ExportRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	projectID := r.PathValue("id")
	if req.ProjectID == "" {
		req.ProjectID = projectID
	}
	if req.ProjectID != projectID {
		writeError(w, r, model.Errorf(model.ErrInvalidField, "project_id %q does not match path", req.ProjectID))
		return
	}

	res, err := h.Service.Export(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}
