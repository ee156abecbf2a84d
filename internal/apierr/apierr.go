// Package apierr defines the structured, Kind-tagged error type shared by
// every component boundary (spec §7): errors never cross a boundary
// except as one of these tagged kinds. Kept separate from the root
// package (which re-exports it) so internal packages — including
// internal/httpapi, which must produce these errors directly — can depend
// on it without an import cycle back through the root package.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is a high-level error category whose string value is the exact JSON
// token surfaced to HTTP clients (spec §7).
type Kind string

const (
	KindBusy             Kind = "BUSY"
	KindFileopInProgress Kind = "FILEOP_IN_PROGRESS"
	KindNotMounted       Kind = "NOT_MOUNTED"
	KindBadPath          Kind = "BAD_PATH"
	KindBadName          Kind = "BAD_NAME"
	KindPathTooLong      Kind = "PATH_TOO_LONG"
	KindNameRequired     Kind = "NAME_REQUIRED"
	KindPathRequired     Kind = "PATH_REQUIRED"
	KindNewNameRequired  Kind = "NEW_NAME_REQUIRED"
	KindNoBody           Kind = "NO_BODY"
	KindNoName           Kind = "NO_NAME"
	KindNoFilename       Kind = "NO_FILENAME"
	KindNoContentType    Kind = "NO_CONTENT_TYPE"
	KindNoBoundary       Kind = "NO_BOUNDARY"
	KindBoundaryTooLong  Kind = "BOUNDARY_TOO_LONG"
	KindHeaderTooLarge   Kind = "HEADER_TOO_LARGE"
	KindBadMultipart     Kind = "BAD_MULTIPART"
	KindBadBody          Kind = "BAD_BODY"
	KindNotFound         Kind = "NOT_FOUND"
	KindFileExists       Kind = "FILE_EXISTS"
	KindIsDirectory      Kind = "IS_DIRECTORY"
	KindOpenFail         Kind = "OPEN_FAIL"
	KindDeleteFail       Kind = "DELETE_FAIL"
	KindRenameFail       Kind = "RENAME_FAIL"
	KindMkdirFail        Kind = "MKDIR_FAIL"
	KindWriteFail        Kind = "WRITE_FAIL"
	KindRecvFail         Kind = "RECV_FAIL"
	KindPathFail         Kind = "PATH_FAIL"
	KindNoMem            Kind = "NO_MEM"
	KindDetachFail       Kind = "DETACH_FAIL"
	KindAttachFail       Kind = "ATTACH_FAIL"
)

// httpStatus is the default HTTP status for a Kind. Handlers may still
// override it (e.g. BUSY is usually 423, but a handful of kinds are
// context-dependent per spec §7's "500/423 as appropriate").
var httpStatus = map[Kind]int{
	KindBusy:             423,
	KindFileopInProgress: 423,
	KindNotMounted:       409,
	KindBadPath:          400,
	KindBadName:          400,
	KindPathTooLong:      400,
	KindNameRequired:     400,
	KindPathRequired:     400,
	KindNewNameRequired:  400,
	KindNoBody:           400,
	KindNoName:           400,
	KindNoFilename:       400,
	KindNoContentType:    400,
	KindNoBoundary:       400,
	KindBoundaryTooLong:  400,
	KindHeaderTooLarge:   400,
	KindBadMultipart:     400,
	KindBadBody:          400,
	KindNotFound:         404,
	KindFileExists:       409,
	KindIsDirectory:      409,
	KindOpenFail:         500,
	KindDeleteFail:       500,
	KindRenameFail:       500,
	KindMkdirFail:        500,
	KindWriteFail:        500,
	KindRecvFail:         500,
	KindPathFail:         500,
	KindNoMem:            500,
	KindDetachFail:       500,
	KindAttachFail:       500,
}

// HTTPStatus returns the status code a Kind maps to by default.
func HTTPStatus(k Kind) int {
	if s, ok := httpStatus[k]; ok {
		return s
	}
	return 500
}

// Error is a structured, tagged error carrying the op that failed, the
// path it failed against (if any), the high-level Kind, and any wrapped
// cause. Modeled on the teacher's op/device/errno *Error type.
type Error struct {
	Op    string // operation that failed, e.g. "fsops.Delete", "scsi.Write10"
	Path  string // path or name involved, if any
	Kind  Kind
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Op != "" && e.Path != "":
		return fmt.Sprintf("sdbridge: %s (op=%s path=%s)", msg, e.Op, e.Path)
	case e.Op != "":
		return fmt.Sprintf("sdbridge: %s (op=%s)", msg, e.Op)
	default:
		return fmt.Sprintf("sdbridge: %s", msg)
	}
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Kind == te.Kind
	}
	return false
}

// NewError creates a structured error with no wrapped cause.
func NewError(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// NewPathError creates a structured error scoped to a path.
func NewPathError(op, path string, kind Kind, msg string) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Msg: msg}
}

// WrapError wraps an existing error with sdbridge context, reusing the
// inner Kind when the cause is already a structured Error.
func WrapError(op string, kind Kind, inner error) *Error {
	if inner == nil {
		return nil
	}
	if se, ok := inner.(*Error); ok {
		return &Error{Op: op, Path: se.Path, Kind: se.Kind, Msg: se.Msg, Inner: se.Inner}
	}
	return &Error{Op: op, Kind: kind, Msg: inner.Error(), Inner: inner}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// AsKind extracts the Kind from err, returning ok=false if err is not a
// structured Error.
func AsKind(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}
