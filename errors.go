// Package sdbridge is the firmware control plane for a networked SD-card
// bridge: it arbitrates exclusive access to a single SD card between a USB
// Mass Storage block adapter, an HTTP filesystem surface, and a background
// self-test path.
package sdbridge

import "github.com/yarrco/sdbridge/internal/apierr"

// Kind is a high-level error category whose string value is the exact JSON
// token surfaced to HTTP clients (spec §7). Alias of apierr.Kind so
// internal packages (which cannot import this root package) can produce
// and consume the same error type without a cycle.
type Kind = apierr.Kind

const (
	KindBusy             = apierr.KindBusy
	KindFileopInProgress = apierr.KindFileopInProgress
	KindNotMounted       = apierr.KindNotMounted
	KindBadPath          = apierr.KindBadPath
	KindBadName          = apierr.KindBadName
	KindPathTooLong      = apierr.KindPathTooLong
	KindNameRequired     = apierr.KindNameRequired
	KindPathRequired     = apierr.KindPathRequired
	KindNewNameRequired  = apierr.KindNewNameRequired
	KindNoBody           = apierr.KindNoBody
	KindNoName           = apierr.KindNoName
	KindNoFilename       = apierr.KindNoFilename
	KindNoContentType    = apierr.KindNoContentType
	KindNoBoundary       = apierr.KindNoBoundary
	KindBoundaryTooLong  = apierr.KindBoundaryTooLong
	KindHeaderTooLarge   = apierr.KindHeaderTooLarge
	KindBadMultipart     = apierr.KindBadMultipart
	KindBadBody          = apierr.KindBadBody
	KindNotFound         = apierr.KindNotFound
	KindFileExists       = apierr.KindFileExists
	KindIsDirectory      = apierr.KindIsDirectory
	KindOpenFail         = apierr.KindOpenFail
	KindDeleteFail       = apierr.KindDeleteFail
	KindRenameFail       = apierr.KindRenameFail
	KindMkdirFail        = apierr.KindMkdirFail
	KindWriteFail        = apierr.KindWriteFail
	KindRecvFail         = apierr.KindRecvFail
	KindPathFail         = apierr.KindPathFail
	KindNoMem            = apierr.KindNoMem
	KindDetachFail       = apierr.KindDetachFail
	KindAttachFail       = apierr.KindAttachFail
)

// HTTPStatus returns the status code a Kind maps to by default.
func HTTPStatus(k Kind) int { return apierr.HTTPStatus(k) }

// Error is a structured, tagged error carrying the op that failed, the
// path it failed against (if any), the high-level Kind, and any wrapped
// cause. Alias of apierr.Error.
type Error = apierr.Error

// NewError creates a structured error with no wrapped cause.
func NewError(op string, kind Kind, msg string) *Error { return apierr.NewError(op, kind, msg) }

// NewPathError creates a structured error scoped to a path.
func NewPathError(op, path string, kind Kind, msg string) *Error {
	return apierr.NewPathError(op, path, kind, msg)
}

// WrapError wraps an existing error with sdbridge context, reusing the
// inner Kind when the cause is already a structured Error.
func WrapError(op string, kind Kind, inner error) *Error {
	return apierr.WrapError(op, kind, inner)
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool { return apierr.Is(err, kind) }

// AsKind extracts the Kind from err, returning ok=false if err is not a
// structured Error.
func AsKind(err error) (Kind, bool) { return apierr.AsKind(err) }
