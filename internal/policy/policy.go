// Package policy decides what an actor may do with an inventory item. Every
// decision is total and defaults to deny.
package policy

import "github.com/erazemk/makerledger/internal/model"

// Capabilities lists what an actor may do with one item.
type Capabilities struct {
	CanView      bool `json:"can_view"`
	CanEdit      bool `json:"can_edit"`
	CanIssue     bool `json:"can_issue"`
	CanDelete    bool `json:"can_delete"`
	CanReorder   bool `json:"can_reorder"`
	CanViewUsage bool `json:"can_view_usage"`
}

func all() Capabilities {
	return Capabilities{true, true, true, true, true, true}
}

// For returns the capabilities of actor on item.
func For(actor model.Actor, item model.Item) Capabilities {
	if actor.UserID == "" {
		return Capabilities{}
	}

	switch actor.Role {
	case model.RoleSuperAdmin, model.RoleAdmin:
		return all()

	case model.RoleMakerspaceAdmin:
		if actor.InMakerspace(item.MakerspaceID) {
			return all()
		}

	case model.RoleMember:
		if item.OwnerUserID != "" && item.OwnerUserID == actor.UserID {
			caps := all()
			if item.RestrictedAccessLevel == model.AccessAdminOnly {
				caps.CanIssue = false
			}
			return caps
		}

	case model.RoleViewer:
		if actor.InMakerspace(item.MakerspaceID) {
			return Capabilities{CanView: true, CanViewUsage: true}
		}
	}

	return Capabilities{}
}

// CanExport reports whether actor may export BOM items to a commerce cart.
func CanExport(actor model.Actor) bool {
	if actor.UserID == "" {
		return false
	}
	switch actor.Role {
	case model.RoleSuperAdmin, model.RoleAdmin, model.RoleMakerspaceAdmin, model.RoleMember:
		return true
	}
	return false
}

// CanManageUsers reports whether actor may create, edit and delete accounts.
func CanManageUsers(actor model.Actor) bool {
	if actor.UserID == "" {
		return false
	}
	return actor.Role == model.RoleSuperAdmin || actor.Role == model.RoleAdmin
}

// CanManageUser reports whether actor may change, reset or delete target.
// Only a super admin may act on a super admin account.
func CanManageUser(actor model.Actor, target model.User) bool {
	if !CanManageUsers(actor) {
		return false
	}
	return target.Role != model.RoleSuperAdmin || actor.Role == model.RoleSuperAdmin
}

// CanGrantRole reports whether actor may give an account role.
func CanGrantRole(actor model.Actor, role string) bool {
	if !CanManageUsers(actor) || !model.ValidRole(role) {
		return false
	}
	return role != model.RoleSuperAdmin || actor.Role == model.RoleSuperAdmin
}

// WithDefaultOwner fills in the owner of an item actor is about to create.
// Members own the items they add unless they name another owner.
func WithDefaultOwner(actor model.Actor, item model.Item) model.Item {
	if item.OwnerUserID == "" && actor.Role == model.RoleMember {
		item.OwnerUserID = actor.UserID
	}
	return item
}

// Visible filters items down to those actor may view.
func Visible(actor model.Actor, items []model.Item) []model.Item {
	out := []model.Item{}
	for _, item := range items {
		if For(actor, item).CanView {
			out = append(out, item)
		}
	}
	return out
}
