package dreamlake

import "github.com/dreamlake-ai/dreamlake-go/internal/dlerrors"

// Kind identifies the category of a dreamlake error, letting callers
// branch on failure class instead of matching strings.
type Kind = dlerrors.Kind

const (
	BadInput      = dlerrors.BadInput
	SessionClosed = dlerrors.SessionClosed
	NotFound      = dlerrors.NotFound
	Conflict      = dlerrors.Conflict
	Transient     = dlerrors.Transient
	Corrupt       = dlerrors.Corrupt
)

// Error is the concrete error type every SDK call returns on failure.
type Error = dlerrors.Error

// IsKind reports whether err is (or wraps) a dreamlake Error of kind k.
func IsKind(err error, k Kind) bool {
	return dlerrors.Is(err, k)
}

// KindOf extracts the Kind from err, or the zero Kind (which prints as
// "Unknown" and matches none of the constants above) if err carries
// none.
func KindOf(err error) Kind {
	return dlerrors.GetKind(err)
}
