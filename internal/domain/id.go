package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedID is returned when an identity value is not a canonical
// opaque string. The booking service occasionally leaked serialized
// documents into identity fields; those are rejected at the write
// boundary instead of being reinterpreted at read time.
var ErrMalformedID = errors.New("identity is not a canonical string")

// CanonicalizeID validates an externally supplied identity value and
// returns its trimmed canonical form.
func CanonicalizeID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("%w: empty value", ErrMalformedID)
	}
	if strings.HasPrefix(id, "{") || strings.HasPrefix(id, "[") {
		return "", fmt.Errorf("%w: serialized structure", ErrMalformedID)
	}
	if strings.Contains(id, "ObjectId(") {
		return "", fmt.Errorf("%w: wrapped object id", ErrMalformedID)
	}
	return id, nil
}

// IsCanonicalID reports whether a stored identity value passes
// canonical validation. Records that fail are treated as corrupted.
func IsCanonicalID(stored string) bool {
	id, err := CanonicalizeID(stored)
	return err == nil && id == stored
}
