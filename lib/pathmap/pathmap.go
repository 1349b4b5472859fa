// Package pathmap normalizes request URL paths to root-relative, POSIX
// style paths and maps them to absolute filesystem paths, rejecting any
// path that would escape the root.
package pathmap

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for any URL path that, after normalization,
// would resolve outside of the configured root.
var ErrInvalidPath = errors.New("invalid path")

// Mapper converts between root-relative POSIX paths and absolute
// filesystem paths rooted at a single directory.
type Mapper struct {
	root string
}

func New(root string) *Mapper {
	return &Mapper{root: filepath.Clean(root)}
}

// Root returns the absolute directory this Mapper is rooted at.
func (m *Mapper) Root() string {
	return m.root
}

// ToRelative normalizes a request URL path into a root-relative POSIX
// path: leading/trailing slashes are stripped, "." and ".." segments are
// collapsed without touching the filesystem, and an empty result becomes
// ".". A path that collapses to an ancestor of the root is ErrInvalidPath.
func (m *Mapper) ToRelative(urlPath string) (string, error) {
	trimmed := strings.Trim(urlPath, "/")
	if trimmed == "" {
		return ".", nil
	}

	// Clean as an unrooted path, not "/"+trimmed: path.Clean silently
	// absorbs leading ".." segments against an assumed root, which would
	// hide a traversal attempt instead of rejecting it.
	cleaned := path.Clean(trimmed)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}

	return cleaned, nil
}

// ToAbsolute maps a root-relative path (as produced by ToRelative) to an
// absolute filesystem path. It re-validates that the result does not
// escape the root, defending against a relative path built by hand
// rather than via ToRelative.
func (m *Mapper) ToAbsolute(relative string) (string, error) {
	if relative == "" {
		relative = "."
	}

	abs := filepath.Join(m.root, filepath.FromSlash(relative))
	rootWithSep := m.root + string(filepath.Separator)
	if abs != m.root && !strings.HasPrefix(abs, rootWithSep) {
		return "", ErrInvalidPath
	}

	return abs, nil
}
