package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/erazemk/makerledger/internal/model"
)

// checkAmount validates the requested change before any state is read.
// Adjust takes a signed non-zero delta; every other action a positive amount.
func checkAmount(action string, amount decimal.Decimal) error {
	if action == model.ActionAdjust {
		if amount.IsZero() {
			return model.Errorf(model.ErrInvalidQuantity, "adjustment delta must be non-zero")
		}
		return nil
	}
	if !amount.IsPositive() {
		return model.Errorf(model.ErrInvalidQuantity, "quantity must be positive, got %s", amount)
	}
	return nil
}

// apply computes the quantity after action is applied to item, enforcing the
// status and stock rules.
func apply(action string, item model.Item, amount decimal.Decimal) (decimal.Decimal, error) {
	before := item.Quantity
	switch action {
	case model.ActionIssue:
		if item.Status != model.ItemStatusActive {
			return before, model.Errorf(model.ErrItemNotActive, "item %s is %s", item.ID, item.Status)
		}
		return subtract(item, amount)
	case model.ActionDamage, model.ActionTransfer:
		return subtract(item, amount)
	case model.ActionAdd, model.ActionRestock:
		return before.Add(amount), nil
	case model.ActionAdjust:
		after := before.Add(amount)
		if after.IsNegative() {
			return before, model.Errorf(model.ErrInsufficientStock,
				"adjustment of %s would leave %s %s", amount, after, item.Unit)
		}
		return after, nil
	}
	return before, model.Errorf(model.ErrInvalidField, "unknown action %q", action)
}

func subtract(item model.Item, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.GreaterThan(item.Quantity) {
		return item.Quantity, model.Errorf(model.ErrInsufficientStock,
			"requested %s %s, only %s available", amount, item.Unit, item.Quantity)
	}
	return item.Quantity.Sub(amount), nil
}
