// Package orbiterrors implements the error-kind taxonomy from spec §7 as
// explicit result values rather than bare error strings, so worker and
// queue code can branch on failure class without string matching.
package orbiterrors

import "fmt"

// Kind is one of the abstract error kinds in spec §7.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindSchedule       Kind = "schedule"
	KindTemplate       Kind = "template"
	KindTool           Kind = "tool"
	KindTimeout        Kind = "timeout"
	KindTransientStore Kind = "transient_store"
	KindLeaseLost      Kind = "lease_lost"
	KindCanceled       Kind = "canceled"
)

// Error wraps an underlying cause with its taxonomy Kind.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a taxonomy error with no wrapped cause.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap attaches a Kind to an existing error.
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, otherwise reports ok=false.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if asError(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Retryable reports whether this Kind should be retried per the task's
// retry budget (as opposed to transient_store, retried outside the
// budget, or terminal kinds like template/validation/canceled).
func (k Kind) Retryable() bool {
	switch k {
	case KindTool, KindTimeout:
		return true
	default:
		return false
	}
}
