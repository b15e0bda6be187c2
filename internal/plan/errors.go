package plan

import "errors"

var (
	// ErrUnknownProfile indicates the requested profile is not in the recognized set
	ErrUnknownProfile = errors.New("unknown profile")
	// ErrMissingBaseSection indicates the base plan lacks a required section
	ErrMissingBaseSection = errors.New("missing base section")
	// ErrSectionKind indicates a known section holds a value of the wrong kind
	ErrSectionKind = errors.New("section has wrong kind")
	// ErrDuplicateSection indicates a plan document defines a section twice
	ErrDuplicateSection = errors.New("duplicate section")
	// ErrInvalidPlan indicates a plan document could not be decoded
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrUnresolvedPlaceholder indicates a placeholder had no value in strict mode
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")
)
