package errors

import (
	"strings"
	"unicode"
)

// ValidateShape validates an array or chunk shape.
// Array shapes may contain zero-length dimensions; chunk shapes may not.
func ValidateShape(shape []uint64, allowZero bool) error {
	for i, s := range shape {
		if s == 0 && !allowZero {
			return New(ErrCodeInvalidShape, "dimension %d of shape %v must be greater than zero", i, shape)
		}
	}
	return nil
}

// ValidateDimensionality checks that a shape-like value has the expected number of dimensions.
func ValidateDimensionality(what string, got, want int) error {
	if got != want {
		return New(ErrCodeInvalidShape, "%s has %d dimensions, expected %d", what, got, want)
	}
	return nil
}

// ValidateSeparator validates a chunk key separator.
func ValidateSeparator(sep string) error {
	if sep != "/" && sep != "." {
		return New(ErrCodeInvalidInput, "chunk key separator must be '/' or '.', got %q", sep)
	}
	return nil
}

// ValidatePath validates a node path within a hierarchy, such as "/" or "/0".
//
// Validation rules:
//   - Path cannot be empty
//   - Path must be absolute (start with /)
//   - No null bytes or control characters
//   - No path traversal sequences (..)
//   - No empty segments or trailing slash (except the root)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if !strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "node path must start with /: %q", path)
	}
	if path == "/" {
		return nil
	}
	if strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return New(ErrCodeInvalidPath, "node path has an empty segment: %q", path)
	}
	for _, seg := range strings.Split(path[1:], "/") {
		if seg == "." || seg == ".." {
			return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
		}
	}
	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
