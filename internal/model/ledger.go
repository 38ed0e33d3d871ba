package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageLogEntry is one immutable line of an item's ledger.
type UsageLogEntry struct {
	ID              string          `json:"id" db:"id"`
	ItemID          string          `json:"item_id" db:"item_id"`
	Seq             int64           `json:"seq" db:"seq"`
	Timestamp       time.Time       `json:"timestamp" db:"timestamp"`
	UserID          string          `json:"user_id" db:"user_id"`
	UserName        string          `json:"user_name" db:"user_name"`
	Action          string          `json:"action" db:"action"`
	QuantityBefore  decimal.Decimal `json:"quantity_before" db:"quantity_before"`
	QuantityAfter   decimal.Decimal `json:"quantity_after" db:"quantity_after"`
	Reason          string          `json:"reason,omitempty" db:"reason"`
	LinkedProjectID string          `json:"linked_project_id,omitempty" db:"linked_project_id"`
	LinkedJobID     string          `json:"linked_job_id,omitempty" db:"linked_job_id"`
}

// Ledger actions.
const (
	ActionAdd      = "add"
	ActionIssue    = "issue"
	ActionRestock  = "restock"
	ActionAdjust   = "adjust"
	ActionDamage   = "damage"
	ActionTransfer = "transfer"
)

// ValidAction reports whether s is a known ledger action.
func ValidAction(s string) bool {
	switch s {
	case ActionAdd, ActionIssue, ActionRestock, ActionAdjust, ActionDamage, ActionTransfer:
		return true
	}
	return false
}

// Delta returns the signed quantity change recorded by the entry.
func (e UsageLogEntry) Delta() decimal.Decimal {
	return e.QuantityAfter.Sub(e.QuantityBefore)
}
