// Package validate guards externally supplied identifiers before they
// reach the storage layer.
package validate

import (
	"fmt"
	"regexp"
)

// MaxIDLength bounds trace and span identifiers.
const MaxIDLength = 128

// safeIDPattern allows alphanumeric, hyphens, underscores. Anything
// else (path separators, dots) could escape the records directory when
// an ID is used as a file name.
var safeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// TraceID reports whether id is safe to use as a storage key.
func TraceID(id string) error {
	if id == "" {
		return fmt.Errorf("trace ID is required")
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("trace ID exceeds %d characters", MaxIDLength)
	}
	if !safeIDPattern.MatchString(id) {
		return fmt.Errorf("trace ID contains unsafe characters")
	}
	return nil
}
