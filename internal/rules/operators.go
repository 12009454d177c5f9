// internal/rules/operators.go
package rules

import (
	"reflect"
	"strings"

	"github.com/openpa/chartcheck/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Implements the 9 comparison operators with type-aware comparison rules.
 * Values arrive exactly as encoding/json produced them (float64 for numbers,
 * []any for lists); no separate coercion pass.
 *
 * Operators:
 *   - eq/neq: Equality with numeric tolerance; eq folds case and whitespace
 *     when both operands are strings
 *   - lt/lte/gt/gte: Numeric comparison only
 *   - in: Membership of patient value in comparand list
 *   - contains: Patient list contains comparand
 *   - any_in: Overlap between patient list and comparand list
 *
 * Missing facts: a nil patient value satisfies only eq against nil/false.
 * A missing fact never satisfies a positive comparison.
 *
 * Numeric comparison: Handles float64/int/int64 mixing for JSON compatibility.
 * Incomparable operands compare as false, never as an error; the only error
 * this layer produces is ErrUnknownOperator, which is an authoring defect the
 * caller must not silently swallow.
 *
 * Why function-based: 9 operators via switch statement cleaner than 9
 * interface implementations with minimal behavior variation.
 */

// Compare applies the operator to compare the patient value against the
// condition comparand. Returns ErrUnknownOperator for operators the engine
// does not implement; every other mismatch fails closed (false, nil).
func Compare(value any, op types.Operator, comparand any) (bool, error) {
	if !op.Valid() {
		return false, types.ErrUnknownOperator
	}

	// A missing fact satisfies only "eq" against an absent/false requirement.
	if value == nil {
		if op == types.OpEq && (comparand == nil || comparand == false) {
			return true, nil
		}
		return false, nil
	}

	switch op {
	case types.OpEq:
		if vs, ok := value.(string); ok {
			if cs, ok := comparand.(string); ok {
				return foldEqual(vs, cs), nil
			}
		}
		return compareEqual(value, comparand), nil
	case types.OpNeq:
		return !compareEqual(value, comparand), nil
	case types.OpGte:
		c, ok := compareNumeric(value, comparand)
		return ok && c >= 0, nil
	case types.OpGt:
		c, ok := compareNumeric(value, comparand)
		return ok && c > 0, nil
	case types.OpLte:
		c, ok := compareNumeric(value, comparand)
		return ok && c <= 0, nil
	case types.OpLt:
		c, ok := compareNumeric(value, comparand)
		return ok && c < 0, nil
	case types.OpIn:
		return compareIn(value, comparand), nil
	case types.OpContains:
		return compareContains(value, comparand), nil
	case types.OpAnyIn:
		return compareAnyIn(value, comparand), nil
	default:
		return false, types.ErrUnknownOperator
	}
}

// foldEqual compares strings case-insensitively after trimming whitespace.
// Chart extractions and policy text disagree on casing constantly; "Failed "
// and "failed" are the same clinical fact.
func foldEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// compareEqual performs structural equality with numeric type coercion.
// Handles float64/int/int64 mixing for JSON compatibility; lists compare
// element-wise via reflect.DeepEqual.
func compareEqual(a, b any) bool {
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	return reflect.DeepEqual(a, b)
}

// compareNumeric performs three-way numeric comparison (-1/0/1).
// Second return is false for incomparable types.
func compareNumeric(a, b any) (int, bool) {
	na, nb, ok := asNumbers(a, b)
	if !ok {
		return 0, false
	}
	switch {
	case na < nb:
		return -1, true
	case na > nb:
		return 1, true
	default:
		return 0, true
	}
}

// asNumbers attempts to convert both values to float64 for numeric comparison.
// Returns converted values and success flag.
func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	return na, nb, oka && okb
}

// toFloat64 converts value to float64 if it's a numeric type.
// Handles float64, int, int64 from JSON unmarshaling and Go literals.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// compareIn checks if the patient value is an element of the comparand list.
// Non-list comparands fail closed.
func compareIn(value, set any) bool {
	arr, ok := asList(set)
	if !ok {
		return false
	}
	for _, elem := range arr {
		if elementEqual(value, elem) {
			return true
		}
	}
	return false
}

// compareContains checks if the patient list contains the comparand.
// Non-list patient values fail closed.
func compareContains(value, comparand any) bool {
	arr, ok := asList(value)
	if !ok {
		return false
	}
	for _, elem := range arr {
		if elementEqual(elem, comparand) {
			return true
		}
	}
	return false
}

// compareAnyIn checks whether any element of the patient list appears in the
// comparand list. Both operands must be lists.
func compareAnyIn(value, set any) bool {
	va, ok1 := asList(value)
	sa, ok2 := asList(set)
	if !ok1 || !ok2 {
		return false
	}
	for _, elem := range va {
		for _, target := range sa {
			if elementEqual(elem, target) {
				return true
			}
		}
	}
	return false
}

// elementEqual is the equality used for list membership: numeric mixing plus
// case/whitespace folding for string pairs, matching eq semantics so that
// an indication list matches regardless of casing.
func elementEqual(a, b any) bool {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return foldEqual(as, bs)
		}
	}
	return compareEqual(a, b)
}

// asList normalizes []any and []string into []any for membership checks.
// JSON unmarshaling always yields []any; []string appears in hand-built rules.
func asList(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []string:
		out := make([]any, len(arr))
		for i, s := range arr {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
