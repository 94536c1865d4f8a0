package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// LogicalOperator joins the conditions of a metadata filter.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

// ComparisonOperator is the closed set of per-condition operators. Anything
// outside this set is rejected rather than silently skipped, so a typo in a
// filter can never widen the result set.
type ComparisonOperator string

const (
	OpContains          ComparisonOperator = "contains"
	OpNotContains       ComparisonOperator = "not contains"
	OpStartWith         ComparisonOperator = "start with"
	OpEndWith           ComparisonOperator = "end with"
	OpEqual             ComparisonOperator = "="
	OpIs                ComparisonOperator = "is"
	OpNotEqual          ComparisonOperator = "≠"
	OpIsNot             ComparisonOperator = "is not"
	OpEmpty             ComparisonOperator = "empty"
	OpNotEmpty          ComparisonOperator = "not empty"
	OpBefore            ComparisonOperator = "before"
	OpLess              ComparisonOperator = "<"
	OpAfter             ComparisonOperator = "after"
	OpGreater           ComparisonOperator = ">"
	OpLessOrEqual       ComparisonOperator = "≤"
	OpLessOrEqualAlt    ComparisonOperator = "<="
	OpGreaterOrEqual    ComparisonOperator = "≥"
	OpGreaterOrEqualAlt ComparisonOperator = ">="
)

// Filter compiler errors.
var (
	ErrUnknownComparisonOperator = errors.New("unknown comparison operator")
	ErrUnknownLogicalOperator    = errors.New("unknown logical operator")
	ErrInvalidCondition          = errors.New("invalid metadata condition")
)

// FilterCondition is a single predicate over one document metadata field.
type FilterCondition struct {
	Name               string             `json:"name"`
	ComparisonOperator ComparisonOperator `json:"comparison_operator"`
	Value              any                `json:"value,omitempty"`
}

// MetadataCondition is a flat list of conditions joined by one logical
// operator. The zero operator means "or".
type MetadataCondition struct {
	LogicalOperator LogicalOperator   `json:"logical_operator,omitempty"`
	Conditions      []FilterCondition `json:"conditions"`
}

// FilterDocumentIDs compiles the metadata condition into a single SQL query
// over serving documents of the dataset and returns the matching document
// ids.
//
// A nil condition means "no metadata restriction" and returns (nil, nil);
// callers must treat a nil slice as unrestricted. A non-nil condition always
// yields a non-nil slice, and an empty slice means no document satisfied the
// filter, so the retrieval must return zero hits.
func (s *Store) FilterDocumentIDs(ctx context.Context, datasetID string, cond *MetadataCondition) ([]string, error) {
	if cond == nil {
		return nil, nil
	}

	joiner, err := resolveJoiner(cond.LogicalOperator)
	if err != nil {
		return nil, err
	}

	var clauses []string
	args := []any{datasetID}
	for _, c := range cond.Conditions {
		clause, clauseArgs, err := compileCondition(c)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, clauseArgs...)
	}

	query := `
		SELECT id FROM documents
		WHERE dataset_id = ? AND indexing_status = 'completed' AND enabled = 1 AND archived = 0
	`
	if len(clauses) > 0 {
		query += " AND (" + strings.Join(clauses, " "+joiner+" ") + ")"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filtering documents: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document ids: %w", err)
	}
	return ids, nil
}

func resolveJoiner(op LogicalOperator) (string, error) {
	switch op {
	case LogicalAnd:
		return "AND", nil
	case LogicalOr, "":
		return "OR", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLogicalOperator, op)
	}
}

// compileCondition translates one predicate into a SQL clause over the
// doc_metadata JSON column. Field names are bound as JSON path parameters,
// never interpolated.
//
// When the field is absent, json_extract yields NULL and every comparison,
// negated ones included, evaluates to NULL: a document lacking the key does
// not match "not contains", "≠" or "not empty". Only "empty" matches a
// missing key.
func compileCondition(c FilterCondition) (string, []any, error) {
	if c.Name == "" {
		return "", nil, fmt.Errorf("%w: name is required", ErrInvalidCondition)
	}
	path := jsonFieldPath(c.Name)

	switch c.ComparisonOperator {
	case OpContains:
		pattern, err := likePattern(c.Value, "%", "%")
		if err != nil {
			return "", nil, err
		}
		return `json_extract(doc_metadata, ?) LIKE ? ESCAPE '\'`, []any{path, pattern}, nil
	case OpNotContains:
		pattern, err := likePattern(c.Value, "%", "%")
		if err != nil {
			return "", nil, err
		}
		return `json_extract(doc_metadata, ?) NOT LIKE ? ESCAPE '\'`, []any{path, pattern}, nil
	case OpStartWith:
		pattern, err := likePattern(c.Value, "", "%")
		if err != nil {
			return "", nil, err
		}
		return `json_extract(doc_metadata, ?) LIKE ? ESCAPE '\'`, []any{path, pattern}, nil
	case OpEndWith:
		pattern, err := likePattern(c.Value, "%", "")
		if err != nil {
			return "", nil, err
		}
		return `json_extract(doc_metadata, ?) LIKE ? ESCAPE '\'`, []any{path, pattern}, nil
	case OpEqual, OpIs:
		return comparisonClause(path, "=", c.Value)
	case OpNotEqual, OpIsNot:
		return comparisonClause(path, "!=", c.Value)
	case OpEmpty:
		return `json_extract(doc_metadata, ?) IS NULL`, []any{path}, nil
	case OpNotEmpty:
		return `json_extract(doc_metadata, ?) IS NOT NULL`, []any{path}, nil
	case OpBefore, OpLess:
		return comparisonClause(path, "<", c.Value)
	case OpAfter, OpGreater:
		return comparisonClause(path, ">", c.Value)
	case OpLessOrEqual, OpLessOrEqualAlt:
		return comparisonClause(path, "<=", c.Value)
	case OpGreaterOrEqual, OpGreaterOrEqualAlt:
		return comparisonClause(path, ">=", c.Value)
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownComparisonOperator, c.ComparisonOperator)
	}
}

// comparisonClause dispatches on the value's type. String values compare as
// text; numeric values cast the extracted field to REAL first so "7" and 7.0
// compare equal.
func comparisonClause(path, op string, value any) (string, []any, error) {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("json_extract(doc_metadata, ?) %s ?", op), []any{path, v}, nil
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("CAST(json_extract(doc_metadata, ?) AS REAL) %s ?", op), []any{path, v}, nil
	default:
		return "", nil, fmt.Errorf("%w: operator %q requires a string or numeric value, got %T",
			ErrInvalidCondition, op, value)
	}
}

// jsonFieldPath builds a JSON1 path addressing a top-level metadata field.
// The path itself is passed as a bound parameter.
func jsonFieldPath(name string) string {
	return `$."` + strings.ReplaceAll(name, `"`, `\"`) + `"`
}

// likePattern builds a LIKE pattern from a string value, escaping SQL
// wildcards so the filter value is matched literally.
func likePattern(value any, prefix, suffix string) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: pattern operators require a string value, got %T",
			ErrInvalidCondition, value)
	}
	return prefix + escapeLike(s) + suffix, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
