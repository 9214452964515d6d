package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// BuildKey canonizes a logical report view into a deterministic cache key.
// The key is deliberately coarse: it carries only the view name and the
// selection year, never credentials or volatile query parameters, so two
// requests for the same view in the same selection window collapse to the
// same entry.
func BuildKey(view string, year int) (string, error) {
	if view == "" {
		return "", errors.New("view cannot be empty")
	}
	if year <= 0 {
		return "", errors.New("year must be positive")
	}

	return fmt.Sprintf("cache_%s_%d", normalizeView(view), year), nil
}

// KeyPrefix returns the prefix shared by all years of a view, for
// pattern deletes.
func KeyPrefix(view string) string {
	return "cache_" + normalizeView(view) + "_"
}

// normalizeView lowercases the view name and squashes anything outside
// [a-z0-9] into underscores.
func normalizeView(view string) string {
	var b strings.Builder
	b.Grow(len(view))
	for _, r := range strings.ToLower(view) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
