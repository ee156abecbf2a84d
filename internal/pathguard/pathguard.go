// Package pathguard normalizes user-supplied virtual paths, rejects
// traversal, and composes filesystem-absolute paths against a fixed mount
// point (spec §4.7).
package pathguard

import (
	"errors"
	"path/filepath"
	"strings"
)

// Hard limits (spec §4.7 step 8).
const (
	PathMaxBytes = 256
	NameMaxBytes = 96
)

var (
	ErrBadPath     = errors.New("pathguard: bad path")
	ErrPathTooLong = errors.New("pathguard: path exceeds limit")
	ErrBadName     = errors.New("pathguard: bad name")
)

// Guard normalizes and composes paths rooted at Mount.
type Guard struct {
	Mount string
}

// New creates a Guard rooted at mount.
func New(mount string) *Guard {
	return &Guard{Mount: mount}
}

// Normalize applies the deterministic normalization rules of spec §4.7 to a
// user-supplied virtual path and returns the normalized virtual path
// (always beginning with "/", never containing ".." or empty segments).
func Normalize(input string) (string, error) {
	if input == "" || input == "/" {
		return "/", nil
	}

	s := input
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}

	rawSegments := strings.Split(s, "/")
	segments := make([]string, 0, len(rawSegments))
	for _, seg := range rawSegments {
		if seg == "" || seg == "." {
			continue
		}
		if seg == ".." {
			return "", ErrBadPath
		}
		if err := validateSegment(seg); err != nil {
			return "", err
		}
		segments = append(segments, seg)
	}

	if len(segments) == 0 {
		return "/", nil
	}

	out := "/" + strings.Join(segments, "/")
	if len(out) > PathMaxBytes {
		return "", ErrPathTooLong
	}
	return out, nil
}

func validateSegment(seg string) error {
	if len(seg) > NameMaxBytes {
		return ErrBadName
	}
	for _, b := range []byte(seg) {
		if b < 0x20 || b == 0x7f || b == '/' || b == '\\' {
			return ErrBadPath
		}
	}
	return nil
}

// ValidateName applies the literal-name rules used by rename/mkdir (spec
// §4.7 step 6): "." and ".." are rejected as names even though they would
// otherwise normalize away silently.
func ValidateName(name string) error {
	if name == "" {
		return ErrBadName
	}
	if name == "." || name == ".." {
		return ErrBadName
	}
	if len(name) > NameMaxBytes {
		return ErrBadName
	}
	for _, b := range []byte(name) {
		if b < 0x20 || b == 0x7f || b == '/' || b == '\\' {
			return ErrBadName
		}
	}
	return nil
}

// Resolve normalizes virtualPath and composes it against the guard's mount
// point, returning both the normalized virtual path and the filesystem-
// absolute path.
func (g *Guard) Resolve(virtualPath string) (normalized string, absolute string, err error) {
	normalized, err = Normalize(virtualPath)
	if err != nil {
		return "", "", err
	}
	absolute = filepath.Join(g.Mount, normalized)
	return normalized, absolute, nil
}
