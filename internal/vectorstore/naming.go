package vectorstore

import (
	"fmt"
	"regexp"
	"strings"
)

// collectionNamePattern validates collection names.
// Pattern: letters, numbers, underscores, 1-128 characters.
var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,128}$`)

const (
	collectionPrefix = "Vector_index_"
	collectionSuffix = "_Node"
)

// GenerateCollectionName derives the canonical collection name for a
// dataset: "Vector_index_" + dataset id with dashes folded to underscores
// + "_Node". Existing datasets keep whatever name their index struct
// already records, so changing this convention never orphans old
// collections.
func GenerateCollectionName(datasetID string) string {
	return collectionPrefix + strings.ReplaceAll(datasetID, "-", "_") + collectionSuffix
}

// ValidateCollectionName validates a collection name against naming rules.
// Rejects special chars, path traversal and spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[A-Za-z0-9_]{1,128}$, got %q",
			ErrInvalidCollectionName, name)
	}
	return nil
}

// EscapeQuery escapes double quotes in query text before it is embedded in
// a backend keyword expression.
func EscapeQuery(query string) string {
	return strings.ReplaceAll(query, `"`, `\"`)
}
