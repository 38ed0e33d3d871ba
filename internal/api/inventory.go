package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/erazemk/makerledger/internal/ledger"
	"github.com/erazemk/makerledger/internal/model"
	"github.com/erazemk/makerledger/internal/namematch"
	"github.com/erazemk/makerledger/internal/policy"
	"github.com/erazemk/makerledger/internal/report"
	"github.com/erazemk/makerledger/internal/stock"
)

type stockRequest struct {
	Quantity    decimal.Decimal `json:"quantity"`
	Delta       decimal.Decimal `json:"delta"`
	Reason      string          `json:"reason"`
	ProjectID   string          `json:"project_id"`
	JobID       string          `json:"job_id"`
	Destination string          `json:"destination"`
}

// mutate runs one ledger operation after checking the given capability, then
// responds with the quantity committed by the repository under key.
func (h *InventoryHandler) mutate(w http.ResponseWriter, r *http.Request, allowed func(policy.Capabilities) bool, c ledger.Change, op func(actor model.Actor, id string, c ledger.Change) (*model.Item, *model.UsageLogEntry, error), event, key string) {
	item, _, ok := h.authorize(w, r, allowed)
	if !ok {
		return
	}

	actor := actorFrom(r)
	updated, entry, err := op(actor, item.ID, c)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info(event,
		"user", actor.UserName,
		"item", updated.Name,
		"before", entry.QuantityBefore.String(),
		"after", entry.QuantityAfter.String(),
		"reason", entry.Reason,
	)
	jsonResponse(w, http.StatusOK, map[string]any{
		key:     updated.Quantity,
		"entry": entry,
	})
}

func decodeStock(w http.ResponseWriter, r *http.Request) (stockRequest, bool) {
	var req stockRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

func canIssue(c policy.Capabilities) bool   { return c.CanIssue }
func canReorder(c policy.Capabilities) bool { return c.CanReorder }
func canEdit(c policy.Capabilities) bool    { return c.CanEdit }

// Issue handles POST /inventory/{id}/issue.
func (h *InventoryHandler) Issue(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStock(w, r)
	if !ok {
		return
	}
	c := ledger.Change{Quantity: req.Quantity, Reason: req.Reason, LinkedProjectID: req.ProjectID, LinkedJobID: req.JobID}
	h.mutate(w, r, canIssue, c, func(a model.Actor, id string, c ledger.Change) (*model.Item, *model.UsageLogEntry, error) {
		return h.Ledger.Issue(r.Context(), a, id, c)
	}, "stock issued", "remaining_quantity")
}

// Restock handles POST /inventory/{id}/restock.
func (h *InventoryHandler) Restock(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStock(w, r)
	if !ok {
		return
	}
	c := ledger.Change{Quantity: req.Quantity, Reason: req.Reason}
	h.mutate(w, r, canReorder, c, func(a model.Actor, id string, c ledger.Change) (*model.Item, *model.UsageLogEntry, error) {
		return h.Ledger.Restock(r.Context(), a, id, c)
	}, "stock restocked", "new_quantity")
}

// AddStock handles POST /inventory/{id}/stock.
func (h *InventoryHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStock(w, r)
	if !ok {
		return
	}
	c := ledger.Change{Quantity: req.Quantity, Reason: req.Reason}
	h.mutate(w, r, canReorder, c, func(a model.Actor, id string, c ledger.Change) (*model.Item, *model.UsageLogEntry, error) {
		return h.Ledger.AddStock(r.Context(), a, id, c)
	}, "stock added", "quantity")
}

// Adjust handles POST /inventory/{id}/adjust.
func (h *InventoryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStock(w, r)
	if !ok {
		return
	}
	c := ledger.Change{Quantity: req.Delta, Reason: req.Reason}
	h.mutate(w, r, canEdit, c, func(a model.Actor, id string, c ledger.Change) (*model.Item, *model.UsageLogEntry, error) {
		return h.Ledger.Adjust(r.Context(), a, id, c)
	}, "stock adjusted", "quantity")
}

// Damage handles POST /inventory/{id}/damage.
func (h *InventoryHandler) Damage(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStock(w, r)
	if !ok {
		return
	}
	c := ledger.Change{Quantity: req.Quantity, Reason: req.Reason}
	h.mutate(w, r, canEdit, c, func(a model.Actor, id string, c ledger.Change) (*model.Item, *model.UsageLogEntry, error) {
		return h.Ledger.Damage(r.Context(), a, id, c)
	}, "stock written off", "quantity")
}

// Transfer handles POST /inventory/{id}/transfer. The destination is recorded
// in the entry's reason.
func (h *InventoryHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStock(w, r)
	if !ok {
		return
	}
	c := ledger.Change{Quantity: req.Quantity, Reason: transferReason(req.Reason, req.Destination)}
	h.mutate(w, r, canEdit, c, func(a model.Actor, id string, c ledger.Change) (*model.Item, *model.UsageLogEntry, error) {
		return h.Ledger.Transfer(r.Context(), a, id, c)
	}, "stock transferred", "quantity")
}

func transferReason(reason, destination string) string {
	reason = strings.TrimSpace(reason)
	destination = strings.TrimSpace(destination)
	switch {
	case destination == "":
		return reason
	case reason == "":
		return "transfer to " + destination
	}
	return reason + " (to " + destination + ")"
}

// LowStock handles GET /inventory/low-stock.
func (h *InventoryHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.visibleItems(r, ledger.ListFilter{MakerspaceID: r.URL.Query().Get("makerspace_id")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, stock.LowStock(items))
}

// Duplicates handles GET /inventory/duplicates?name=.
func (h *InventoryHandler) Duplicates(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, r, model.Errorf(model.ErrMissingField, "name required"))
		return
	}

	items, err := h.visibleItems(r, ledger.ListFilter{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, namematch.FindSimilar(name, items, h.DuplicateThreshold))
}

// ExportCSV handles GET /inventory/export.csv.
func (h *InventoryHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.visibleItems(r, ledger.ListFilter{
		Status:       q.Get("status"),
		Category:     q.Get("category"),
		MakerspaceID: q.Get("makerspace_id"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="inventory.csv"`)
	if err := report.WriteCSV(w, items); err != nil {
		slog.Error("writing inventory report", "error", err)
	}
}
