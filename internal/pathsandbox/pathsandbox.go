// Package pathsandbox resolves candidate paths against a base directory and
// rejects any path that would land outside of it, including escapes through
// ".." segments, absolute overrides and symlinks.
//
// Resolution never touches the filesystem beyond Lstat and Readlink.
package pathsandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxSymlinkHops bounds symlink expansion, matching the usual kernel limit.
const maxSymlinkHops = 255

var (
	// ErrEscape is matched by errors for paths resolving outside the base directory.
	ErrEscape = errors.New("path escapes the sandbox")

	// ErrResolution is matched by errors for paths that could not be canonicalized.
	ErrResolution = errors.New("path could not be resolved")

	errTooManyLinks = errors.New("too many levels of symbolic links")
)

// EscapeError reports a candidate that resolved outside of Base.
type EscapeError struct {
	Candidate string
	Resolved  string
	Base      string
}

func (e *EscapeError) Error() string {
	return fmt.Sprintf("path '%s' resolves to '%s', which is outside the allowed base directory '%s'", e.Candidate, e.Resolved, e.Base)
}

func (e *EscapeError) Unwrap() error { return ErrEscape }

// ResolutionError reports a filesystem failure other than "not found" while
// canonicalizing Path.
type ResolutionError struct {
	Path string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve '%s': %v", e.Path, e.Err)
}

func (e *ResolutionError) Unwrap() []error { return []error{ErrResolution, e.Err} }

// Resolve joins candidate onto baseDir, canonicalizes the result and returns
// it if it is baseDir itself or one of its descendants.
func Resolve(baseDir, candidate string) (string, error) {
	base, err := CanonicalBase(baseDir)
	if err != nil {
		return "", err
	}

	resolved, err := Canonicalize(base, candidate)
	if err != nil {
		return "", err
	}

	if !Within(resolved, base) {
		return "", &EscapeError{Candidate: candidate, Resolved: resolved, Base: base}
	}
	return resolved, nil
}

// CanonicalBase returns the absolute, symlink-free form of an existing directory.
func CanonicalBase(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", &ResolutionError{Path: dir, Err: err}
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", &ResolutionError{Path: dir, Err: err}
	}
	return canonical, nil
}

// Canonicalize resolves candidate relative to dir the way the kernel would:
// component by component, following symlinks as they are met, so ".." is
// applied to the physical parent rather than the lexical one. Once a
// component does not exist, the remaining segments are appended literally.
//
// dir must already be canonical (see CanonicalBase). No containment check is
// made.
func Canonicalize(dir, candidate string) (string, error) {
	return walk(dir, candidate, 0)
}

func walk(dir, candidate string, hops int) (string, error) {
	current := dir
	if filepath.IsAbs(candidate) {
		current = rootOf(candidate)
	}
	parts := splitPath(candidate)

	for len(parts) > 0 {
		part := parts[0]
		parts = parts[1:]

		switch part {
		case "", ".":
			continue
		case "..":
			current = filepath.Dir(current)
			continue
		}

		next := filepath.Join(current, part)
		info, err := os.Lstat(next)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				rest := filepath.Join(append([]string{next}, parts...)...)
				if containsDotDot(parts) {
					// Join already applied the ".." lexically; walk the cleaned
					// path again so no existing symlink is skipped over.
					return walk(dir, rest, hops)
				}
				return rest, nil
			}
			return "", &ResolutionError{Path: next, Err: err}
		}

		if info.Mode()&fs.ModeSymlink == 0 {
			current = next
			continue
		}

		hops++
		if hops > maxSymlinkHops {
			return "", &ResolutionError{Path: next, Err: errTooManyLinks}
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", &ResolutionError{Path: next, Err: err}
		}
		if filepath.IsAbs(target) {
			current = rootOf(target)
		}
		parts = append(splitPath(target), parts...)
	}

	return current, nil
}

// Within reports whether path is root or lies beneath it. Both must be clean
// absolute paths.
func Within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// WithinAny reports whether path lies within any of roots.
func WithinAny(path string, roots []string) bool {
	for _, root := range roots {
		if Within(path, root) {
			return true
		}
	}
	return false
}

func splitPath(p string) []string {
	p = strings.TrimPrefix(p, filepath.VolumeName(p))
	return strings.FieldsFunc(p, func(r rune) bool {
		return r == filepath.Separator || r == '/'
	})
}

func rootOf(p string) string {
	return filepath.VolumeName(p) + string(filepath.Separator)
}

func containsDotDot(parts []string) bool {
	for _, p := range parts {
		if p == ".." {
			return true
		}
	}
	return false
}
