package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a tracked inventory record. Quantity and Status are owned by the
// ledger; Quantity only ever changes through a usage log entry.
type Item struct {
	ID                    string              `json:"id" db:"id"`
	Name                  string              `json:"name" db:"name"`
	Category              string              `json:"category" db:"category"`
	Subcategory           string              `json:"subcategory,omitempty" db:"subcategory"`
	Quantity              decimal.Decimal     `json:"quantity" db:"quantity"`
	Unit                  string              `json:"unit" db:"unit"`
	MinThreshold          decimal.Decimal     `json:"min_threshold" db:"min_threshold"`
	Location              string              `json:"location" db:"location"`
	Status                string              `json:"status" db:"status"`
	SupplierType          string              `json:"supplier_type" db:"supplier_type"`
	ProductCode           string              `json:"product_code,omitempty" db:"product_code"`
	Price                 decimal.NullDecimal `json:"price" db:"price"`
	Supplier              string              `json:"supplier,omitempty" db:"supplier"`
	Description           string              `json:"description,omitempty" db:"description"`
	MakerspaceID          string              `json:"makerspace_id" db:"makerspace_id"`
	OwnerUserID           string              `json:"owner_user_id,omitempty" db:"owner_user_id"`
	RestrictedAccessLevel string              `json:"restricted_access_level,omitempty" db:"restricted_access_level"`
	ImageMIME             string              `json:"image_mime,omitempty" db:"image_mime"`
	CreatedAt             time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at" db:"updated_at"`
	DeletedAt             *time.Time          `json:"deleted_at,omitempty" db:"deleted_at"`

	// History is only populated when explicitly requested.
	History []UsageLogEntry `json:"history,omitempty" db:"-"`
}

// Item statuses.
const (
	ItemStatusActive       = "active"
	ItemStatusInUse        = "in_use"
	ItemStatusDamaged      = "damaged"
	ItemStatusReserved     = "reserved"
	ItemStatusDiscontinued = "discontinued"
)

// Item categories.
const (
	CategoryFilament    = "filament"
	CategoryResin       = "resin"
	CategoryTools       = "tools"
	CategoryElectronics = "electronics"
	CategoryMaterials   = "materials"
	CategoryMachines    = "machines"
	CategorySensors     = "sensors"
	CategoryComponents  = "components"
	CategoryConsumables = "consumables"
)

// Supplier types.
const (
	SupplierMakrX    = "makrx"
	SupplierExternal = "external"
)

// Restricted access levels.
const (
	AccessBasic     = "basic"
	AccessCertified = "certified"
	AccessAdminOnly = "admin_only"
)

var (
	itemStatuses = map[string]bool{
		ItemStatusActive: true, ItemStatusInUse: true, ItemStatusDamaged: true,
		ItemStatusReserved: true, ItemStatusDiscontinued: true,
	}
	categories = map[string]bool{
		CategoryFilament: true, CategoryResin: true, CategoryTools: true,
		CategoryElectronics: true, CategoryMaterials: true, CategoryMachines: true,
		CategorySensors: true, CategoryComponents: true, CategoryConsumables: true,
	}
	supplierTypes = map[string]bool{SupplierMakrX: true, SupplierExternal: true}
	accessLevels  = map[string]bool{AccessBasic: true, AccessCertified: true, AccessAdminOnly: true}
)

// ValidItemStatus reports whether s is a known item status.
func ValidItemStatus(s string) bool { return itemStatuses[s] }

// ValidCategory reports whether s is a known item category.
func ValidCategory(s string) bool { return categories[s] }

// ValidSupplierType reports whether s is a known supplier type.
func ValidSupplierType(s string) bool { return supplierTypes[s] }

// ValidAccessLevel reports whether s is a known restriction level. The empty
// string means unrestricted.
func ValidAccessLevel(s string) bool { return s == "" || accessLevels[s] }

// Archived reports whether the item has been soft-deleted.
func (i Item) Archived() bool { return i.DeletedAt != nil }

// Validate checks the fields required to create an item.
func (i Item) Validate() error {
	switch {
	case i.Name == "":
		return Errorf(ErrMissingField, "name required")
	case i.MakerspaceID == "":
		return Errorf(ErrMissingField, "makerspace_id required")
	case i.Unit == "":
		return Errorf(ErrMissingField, "unit required")
	case !ValidCategory(i.Category):
		return Errorf(ErrInvalidField, "invalid category %q", i.Category)
	case !ValidSupplierType(i.SupplierType):
		return Errorf(ErrInvalidField, "invalid supplier_type %q", i.SupplierType)
	case !ValidAccessLevel(i.RestrictedAccessLevel):
		return Errorf(ErrInvalidField, "invalid restricted_access_level %q", i.RestrictedAccessLevel)
	case i.Quantity.IsNegative():
		return Errorf(ErrInvalidQuantity, "quantity cannot be negative")
	case i.MinThreshold.IsNegative():
		return Errorf(ErrInvalidQuantity, "min_threshold cannot be negative")
	case i.Price.Valid && i.Price.Decimal.IsNegative():
		return Errorf(ErrInvalidField, "price cannot be negative")
	}
	return nil
}

// ItemPatch holds the metadata fields an update may change. Nil fields are
// left untouched. Quantity is deliberately absent.
type ItemPatch struct {
	Name                  *string              `json:"name"`
	Category              *string              `json:"category"`
	Subcategory           *string              `json:"subcategory"`
	Unit                  *string              `json:"unit"`
	MinThreshold          *decimal.Decimal     `json:"min_threshold"`
	Location              *string              `json:"location"`
	Status                *string              `json:"status"`
	SupplierType          *string              `json:"supplier_type"`
	ProductCode           *string              `json:"product_code"`
	Price                 *decimal.NullDecimal `json:"price"`
	Supplier              *string              `json:"supplier"`
	Description           *string              `json:"description"`
	RestrictedAccessLevel *string              `json:"restricted_access_level"`
}

// Apply returns a copy of item with the patch applied, or a validation error.
func (p ItemPatch) Apply(item Item) (Item, error) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.Subcategory != nil {
		item.Subcategory = *p.Subcategory
	}
	if p.Unit != nil {
		item.Unit = *p.Unit
	}
	if p.MinThreshold != nil {
		item.MinThreshold = *p.MinThreshold
	}
	if p.Location != nil {
		item.Location = *p.Location
	}
	if p.Status != nil {
		if !ValidItemStatus(*p.Status) {
			return item, Errorf(ErrInvalidField, "invalid status %q", *p.Status)
		}
		item.Status = *p.Status
	}
	if p.SupplierType != nil {
		item.SupplierType = *p.SupplierType
	}
	if p.ProductCode != nil {
		item.ProductCode = *p.ProductCode
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Supplier != nil {
		item.Supplier = *p.Supplier
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.RestrictedAccessLevel != nil {
		item.RestrictedAccessLevel = *p.RestrictedAccessLevel
	}
	if err := item.Validate(); err != nil {
		return item, err
	}
	return item, nil
}

// DeleteOutcome describes what a delete did to an item.
type DeleteOutcome string

// Delete outcomes.
const (
	DeleteArchived DeleteOutcome = "archived"
	DeletePurged   DeleteOutcome = "purged"
)
