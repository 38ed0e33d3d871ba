package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain errors for transport mapping.
type ErrorKind string

// Error kinds.
const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindExternal     ErrorKind = "external"
	KindPartialBatch ErrorKind = "partial_batch"
)

// Error is a domain error with a machine-readable code.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches domain errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinel errors. Compare with errors.Is; build detailed variants with Errorf
// or Wrap.
var (
	ErrInvalidQuantity     = &Error{Kind: KindValidation, Code: "invalid_quantity", Message: "quantity must be positive"}
	ErrMissingField        = &Error{Kind: KindValidation, Code: "missing_field", Message: "missing required field"}
	ErrInvalidField        = &Error{Kind: KindValidation, Code: "invalid_field", Message: "invalid field"}
	ErrItemNotFound        = &Error{Kind: KindNotFound, Code: "item_not_found", Message: "item not found"}
	ErrProjectNotFound     = &Error{Kind: KindNotFound, Code: "project_not_found", Message: "project not found"}
	ErrItemNotActive       = &Error{Kind: KindConflict, Code: "item_not_active", Message: "item is not active"}
	ErrInsufficientStock   = &Error{Kind: KindConflict, Code: "insufficient_stock", Message: "insufficient stock"}
	ErrCatalogUnavailable  = &Error{Kind: KindExternal, Code: "catalog_unavailable", Message: "catalog service unavailable"}
	ErrCommerceUnavailable = &Error{Kind: KindExternal, Code: "commerce_unavailable", Message: "commerce service unavailable"}
	ErrProjectsUnavailable = &Error{Kind: KindExternal, Code: "projects_unavailable", Message: "projects service unavailable"}
	ErrPartialBatch        = &Error{Kind: KindPartialBatch, Code: "partial_batch", Message: "some items failed"}
)

// Errorf returns a copy of base with a formatted message.
func Errorf(base *Error, format string, args ...any) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns a copy of base carrying cause.
func Wrap(base *Error, cause error) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: base.Message, Cause: cause}
}

// KindOf returns the kind of the first domain error in err's chain, or the
// empty kind when err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
