package directory

import "errors"

var (
	// ErrNotFound covers missing records and records outside the caller's
	// scope; callers cannot distinguish the two.
	ErrNotFound = errors.New("directory: not found")
	// ErrConflict is a storage uniqueness violation surfaced to callers as
	// a validation failure.
	ErrConflict = errors.New("directory: already exists")
	// ErrValidation is wrapped with field-level detail.
	ErrValidation = errors.New("directory: invalid input")
	// ErrPermissionDenied means the acting facet exists but may not perform
	// the operation.
	ErrPermissionDenied = errors.New("directory: permission denied")
	// ErrMethodNotAllowed means the acting facet lacks the position the
	// operation requires, e.g. an administrator without a department.
	ErrMethodNotAllowed = errors.New("directory: method not allowed")
	// ErrAuthenticationFailed is deliberately uniform; it carries no detail
	// about which credential or facet check failed.
	ErrAuthenticationFailed = errors.New("directory: authentication failed")
	// ErrInternal hides storage detail when a multi-step write fails.
	ErrInternal = errors.New("directory: internal error")
)
