package backend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/docvector/docvector/internal/errors"
)

// Op is a filter condition operator.
type Op string

const (
	// OpEquals matches a single scalar value exactly.
	OpEquals Op = "eq"
	// OpAnyOf matches when the field equals any of the listed values.
	OpAnyOf Op = "any_of"
	// Comparison operators. Only the local backend grammar supports these.
	OpGreaterOrEqual Op = "gte"
	OpGreaterThan    Op = "gt"
	OpLessOrEqual    Op = "lte"
	OpLessThan       Op = "lt"
)

// Condition is one field predicate: an equality value, a list of values
// ("any of"), or a comparison operator with a bound.
type Condition struct {
	Field  string
	Op     Op
	Value  any   // OpEquals and comparisons
	Values []any // OpAnyOf
}

// FilterSpec is an AND-combination of conditions. It is constructed per
// query/delete call and never persisted. A nil or empty spec means
// "no filter".
type FilterSpec struct {
	Conditions []Condition
}

// NewFilter returns an empty filter spec.
func NewFilter() *FilterSpec {
	return &FilterSpec{}
}

// Equals adds an equality condition.
func (f *FilterSpec) Equals(field string, value any) *FilterSpec {
	f.Conditions = append(f.Conditions, Condition{Field: field, Op: OpEquals, Value: value})
	return f
}

// AnyOf adds a membership condition.
func (f *FilterSpec) AnyOf(field string, values ...any) *FilterSpec {
	f.Conditions = append(f.Conditions, Condition{Field: field, Op: OpAnyOf, Values: values})
	return f
}

// Compare adds a comparison condition.
func (f *FilterSpec) Compare(field string, op Op, value any) *FilterSpec {
	f.Conditions = append(f.Conditions, Condition{Field: field, Op: op, Value: value})
	return f
}

// Empty reports whether the spec has no effective conditions.
// Unset (nil-valued) conditions are skipped, not included.
func (f *FilterSpec) Empty() bool {
	if f == nil {
		return true
	}
	for _, c := range f.Conditions {
		if !c.unset() {
			return false
		}
	}
	return true
}

func (c Condition) unset() bool {
	switch c.Op {
	case OpAnyOf:
		return len(c.Values) == 0
	default:
		return c.Value == nil
	}
}

// translateCloudFilter renders a spec in the cloud service's grammar:
// string fields as `field eq 'value'`, numeric fields unquoted, lists as a
// parenthesized OR-group of equalities, multiple fields AND-combined.
//
// The grammar supports equality only. Inequality, substring, and negation
// are not supported; comparison conditions are a caller error. This is a
// documented limitation of the cloud backend, not a gap.
//
// An empty spec translates to "" meaning no filter.
func translateCloudFilter(spec *FilterSpec) (string, error) {
	if spec.Empty() {
		return "", nil
	}

	var parts []string
	for _, c := range spec.Conditions {
		if c.unset() {
			continue
		}

		switch c.Op {
		case OpEquals:
			lit, err := cloudLiteral(c.Value)
			if err != nil {
				return "", invalidFilter(c.Field, err)
			}
			parts = append(parts, fmt.Sprintf("%s eq %s", c.Field, lit))

		case OpAnyOf:
			group := make([]string, 0, len(c.Values))
			for _, v := range c.Values {
				lit, err := cloudLiteral(v)
				if err != nil {
					return "", invalidFilter(c.Field, err)
				}
				group = append(group, fmt.Sprintf("%s eq %s", c.Field, lit))
			}
			parts = append(parts, "("+strings.Join(group, " or ")+")")

		default:
			return "", invalidFilter(c.Field,
				fmt.Errorf("operator %q is not supported by the cloud filter grammar (equality only)", c.Op))
		}
	}

	return strings.Join(parts, " and "), nil
}

// cloudLiteral renders a scalar as a cloud-grammar literal. Strings are
// single-quoted with embedded quotes doubled; numbers and booleans render
// bare. Anything else is a caller error.
func cloudLiteral(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'", nil
	case int, int32, int64, float32, float64, bool:
		return fmt.Sprintf("%v", val), nil
	default:
		return "", fmt.Errorf("unsupported filter value type %T", v)
	}
}

// localOperatorKeys maps comparison operators to the local store's
// prefixed-operator keys.
var localOperatorKeys = map[Op]string{
	OpGreaterOrEqual: "$gte",
	OpGreaterThan:    "$gt",
	OpLessOrEqual:    "$lte",
	OpLessThan:       "$lt",
}

// translateLocalFilter renders a spec in the local store's grammar:
// equality fields pass through as-is, lists become an "$in" membership
// predicate, comparisons map to prefixed-operator keys, and multiple
// conditions are wrapped in an explicit "$and" group only when more than
// one is present.
//
// An empty spec translates to nil meaning no filter.
func translateLocalFilter(spec *FilterSpec) (map[string]any, error) {
	if spec.Empty() {
		return nil, nil
	}

	var clauses []map[string]any
	for _, c := range spec.Conditions {
		if c.unset() {
			continue
		}

		switch c.Op {
		case OpEquals:
			if err := validScalar(c.Value); err != nil {
				return nil, invalidFilter(c.Field, err)
			}
			clauses = append(clauses, map[string]any{c.Field: c.Value})

		case OpAnyOf:
			for _, v := range c.Values {
				if err := validScalar(v); err != nil {
					return nil, invalidFilter(c.Field, err)
				}
			}
			clauses = append(clauses, map[string]any{c.Field: map[string]any{"$in": c.Values}})

		default:
			key, ok := localOperatorKeys[c.Op]
			if !ok {
				return nil, invalidFilter(c.Field, fmt.Errorf("unknown operator %q", c.Op))
			}
			if err := validScalar(c.Value); err != nil {
				return nil, invalidFilter(c.Field, err)
			}
			clauses = append(clauses, map[string]any{c.Field: map[string]any{key: c.Value}})
		}
	}

	if len(clauses) == 0 {
		return nil, nil
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return map[string]any{"$and": toAnySlice(clauses)}, nil
}

func validScalar(v any) error {
	switch v.(type) {
	case string, int, int32, int64, float32, float64, bool:
		return nil
	default:
		return fmt.Errorf("unsupported filter value type %T", v)
	}
}

func invalidFilter(field string, err error) error {
	return errors.New(errors.ErrCodeInvalidFilter,
		fmt.Sprintf("invalid filter condition on %q: %v", field, err), err)
}

func toAnySlice(clauses []map[string]any) []any {
	out := make([]any, len(clauses))
	for i, c := range clauses {
		out[i] = c
	}
	return out
}

// FieldNames returns the distinct field names in the spec, sorted.
func (f *FilterSpec) FieldNames() []string {
	if f == nil {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for _, c := range f.Conditions {
		if !seen[c.Field] {
			seen[c.Field] = true
			names = append(names, c.Field)
		}
	}
	sort.Strings(names)
	return names
}
