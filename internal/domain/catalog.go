package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// CategoryKey folds a category name for case-insensitive matching, so "Electronics" and
// "ELECTRONICS" share a key.
func CategoryKey(category string) string {
	normalized := norm.NFC.String(strings.TrimSpace(category))
	// Casers carry state and are not shared between goroutines.
	return cases.Fold().String(normalized)
}
