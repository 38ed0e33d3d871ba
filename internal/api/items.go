package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/erazemk/makerledger/internal/imaging"
	"github.com/erazemk/makerledger/internal/ledger"
	"github.com/erazemk/makerledger/internal/model"
	"github.com/erazemk/makerledger/internal/policy"
)

// ImageStore persists item photos.
type ImageStore interface {
	SetItemImage(ctx context.Context, itemID string, image, thumbnail []byte, mime string) error
	GetItemImage(ctx context.Context, itemID string, thumbnail bool) ([]byte, string, error)
}

// InventoryHandler handles inventory item and stock endpoints.
type InventoryHandler struct {
	Ledger             *ledger.Ledger
	Images             ImageStore
	DuplicateThreshold float64
}

type createItemRequest struct {
	Name                  string              `json:"name"`
	Category              string              `json:"category"`
	Subcategory           string              `json:"subcategory"`
	Quantity              decimal.Decimal     `json:"quantity"`
	Unit                  string              `json:"unit"`
	MinThreshold          decimal.Decimal     `json:"min_threshold"`
	Location              string              `json:"location"`
	SupplierType          string              `json:"supplier_type"`
	ProductCode           string              `json:"product_code"`
	Price                 decimal.NullDecimal `json:"price"`
	Supplier              string              `json:"supplier"`
	Description           string              `json:"description"`
	MakerspaceID          string              `json:"makerspace_id"`
	OwnerUserID           string              `json:"owner_user_id"`
	RestrictedAccessLevel string              `json:"restricted_access_level"`
}

func (req createItemRequest) item() model.Item {
	return model.Item{
		Name:                  req.Name,
		Category:              req.Category,
		Subcategory:           req.Subcategory,
		Quantity:              req.Quantity,
		Unit:                  req.Unit,
		MinThreshold:          req.MinThreshold,
		Location:              req.Location,
		SupplierType:          req.SupplierType,
		ProductCode:           req.ProductCode,
		Price:                 req.Price,
		Supplier:              req.Supplier,
		Description:           req.Description,
		MakerspaceID:          req.MakerspaceID,
		OwnerUserID:           req.OwnerUserID,
		RestrictedAccessLevel: req.RestrictedAccessLevel,
	}
}

// authorize loads an item and checks a capability on it. Items the caller
// cannot view are reported as missing.
func (h *InventoryHandler) authorize(w http.ResponseWriter, r *http.Request, allowed func(policy.Capabilities) bool) (*model.Item, policy.Capabilities, bool) {
	item, err := h.Ledger.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return nil, policy.Capabilities{}, false
	}

	caps := policy.For(actorFrom(r), *item)
	if !caps.CanView {
		writeError(w, r, model.ErrItemNotFound)
		return nil, caps, false
	}
	if !allowed(caps) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return nil, caps, false
	}
	return item, caps, true
}

// visibleItems lists the live items matching filter that the caller may view.
func (h *InventoryHandler) visibleItems(r *http.Request, filter ledger.ListFilter) ([]model.Item, error) {
	items, err := h.Ledger.List(r.Context(), filter)
	if err != nil {
		return nil, err
	}
	return policy.Visible(actorFrom(r), items), nil
}

// List handles GET /inventory.
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.ListFilter{
		Status:          q.Get("status"),
		Category:        q.Get("category"),
		MakerspaceID:    q.Get("makerspace_id"),
		IncludeArchived: q.Get("include_archived") == "true",
	}

	items, err := h.visibleItems(r, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /inventory/.
func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := actorFrom(r)
	prospective := policy.WithDefaultOwner(actor, req.item())
	if !policy.For(actor, prospective).CanEdit {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	item, err := h.Ledger.Add(r.Context(), prospective)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("item created", "user", actor.UserName, "item", item.Name, "id", item.ID, "makerspace", item.MakerspaceID)
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /inventory/{id}. History is included when the caller may
// view usage.
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, caps, ok := h.authorize(w, r, func(c policy.Capabilities) bool { return c.CanView })
	if !ok {
		return
	}

	if caps.CanViewUsage {
		history, err := h.Ledger.History(r.Context(), item.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		item.History = history
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"item":         item,
		"capabilities": caps,
	})
}

// Update handles PUT /inventory/{id}. Quantity is never patchable.
func (h *InventoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var fields map[string]json.RawMessage
	var patch model.ItemPatch
	if json.Unmarshal(body, &fields) != nil || json.Unmarshal(body, &patch) != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := fields["quantity"]; ok {
		writeError(w, r, model.Errorf(model.ErrInvalidField, "quantity can only change through a stock operation"))
		return
	}

	item, _, ok := h.authorize(w, r, func(c policy.Capabilities) bool { return c.CanEdit })
	if !ok {
		return
	}

	updated, err := h.Ledger.Update(r.Context(), item.ID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("item updated", "user", actorFrom(r).UserName, "item", updated.Name, "id", updated.ID)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /inventory/{id}.
func (h *InventoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	item, _, ok := h.authorize(w, r, func(c policy.Capabilities) bool { return c.CanDelete })
	if !ok {
		return
	}

	outcome, err := h.Ledger.Delete(r.Context(), item.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("item deleted", "user", actorFrom(r).UserName, "item", item.Name, "outcome", outcome)
	jsonResponse(w, http.StatusOK, map[string]model.DeleteOutcome{"outcome": outcome})
}

// History handles GET /inventory/{id}/history.
func (h *InventoryHandler) History(w http.ResponseWriter, r *http.Request) {
	item, _, ok := h.authorize(w, r, func(c policy.Capabilities) bool { return c.CanViewUsage })
	if !ok {
		return
	}

	history, err := h.Ledger.History(r.Context(), item.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if history == nil {
		history = []model.UsageLogEntry{}
	}
	jsonResponse(w, http.StatusOK, history)
}

// UploadImage handles PUT /inventory/{id}/image.
func (h *InventoryHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	item, _, ok := h.authorize(w, r, func(c policy.Capabilities) bool { return c.CanEdit })
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.Process(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Images.SetItemImage(r.Context(), item.ID, photo.Image, photo.Thumbnail, photo.MIME); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("item image uploaded", "user", actorFrom(r).UserName, "item", item.Name, "bytes", len(photo.Image))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

// GetImage handles GET /inventory/{id}/image. Pass ?thumb=1 for the thumbnail.
func (h *InventoryHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	item, _, ok := h.authorize(w, r, func(c policy.Capabilities) bool { return c.CanView })
	if !ok {
		return
	}

	data, mime, err := h.Images.GetItemImage(r.Context(), item.ID, r.URL.Query().Get("thumb") == "1")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
