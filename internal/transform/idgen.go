package transform

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a name to a URL-safe slug.
// Examples: "Chase Checking.csv" → "chase-checking-csv", "Café Crédit" → "cafe-credit"
func Slugify(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("name cannot be empty")
	}

	// Strip accents
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	normalized, _, err := transform.String(t, name)
	if err != nil {
		return "", fmt.Errorf("failed to normalize name %q: %w", name, err)
	}

	slug := nonAlphanumeric.ReplaceAllString(strings.ToLower(normalized), "-")
	slug = strings.Trim(slug, "-")

	if slug == "" {
		return "", fmt.Errorf("name %q contains no alphanumeric characters", name)
	}

	return slug, nil
}

// UniqueID builds the unique ID of an imported item.
// Format: "IMP-{trackerID}-{sequence}"
// Example: UniqueID("5f0c…", 42) → "IMP-5f0c…-42"
//
// Tracker IDs are never reused, so IDs from different import runs cannot collide even
// when sequence numbers repeat across budgets.
func UniqueID(trackerID string, sequence int64) string {
	return fmt.Sprintf("IMP-%s-%d", trackerID, sequence)
}

// SourceName is the label stored on the import tracker of a file.
// Example: SourceName("/tmp/march.csv") → "Bulk Upload: march.csv"
func SourceName(fileName string) string {
	return "Bulk Upload: " + filepath.Base(fileName)
}
