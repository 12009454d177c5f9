// internal/rules/evaluate.go
package rules

import (
	"fmt"
	"strings"

	"github.com/openpa/chartcheck/internal/types"
)

/*
 * Rule evaluation: conditions and logic combinators.
 *
 * EvaluateCondition resolves one dotted field path and applies the operator;
 * any resolution or comparison failure evaluates to false (fail closed).
 * EvaluateRule combines condition outcomes under the rule's logic and builds
 * the auditable RuleResult: per-condition details plus a human-readable
 * summary of what the chart actually said.
 *
 * Pure functions over (FactMap, Rule); no I/O, no clock, no mutation of
 * inputs. The same chart and rule always produce the same result.
 */

// EvaluateCondition evaluates one condition against the fact map.
// Returns the outcome plus the resolved patient value for audit detail.
// Unknown operators and over-deep paths evaluate to false with the error
// surfaced so the orchestrator can log the authoring defect.
func EvaluateCondition(facts types.FactMap, cond types.Condition) (met bool, value any, err error) {
	value, err = Resolve(facts, cond.Field)
	if err != nil {
		return false, nil, err
	}
	met, err = Compare(value, cond.Operator, cond.Value)
	if err != nil {
		return false, value, err
	}
	return met, value, nil
}

// EvaluateRule evaluates all conditions of a rule and combines the outcomes
// under the rule's logic. The returned result carries per-condition details
// and a summary of the patient values involved.
func EvaluateRule(facts types.FactMap, rule types.Rule) types.RuleResult {
	result := types.RuleResult{
		RuleID:      rule.ID,
		Description: rule.Description,
		Logic:       rule.Logic,
		Exclusion:   rule.Exclusion,
	}

	if len(rule.Conditions) == 0 {
		result.Met = false
		result.PatientValue = "Not found in chart"
		result.Details = "no conditions specified"
		return result
	}

	var (
		details  = make([]types.ConditionDetail, 0, len(rule.Conditions))
		summary  = make([]string, 0, len(rule.Conditions))
		problems []string
		metCount int
	)
	for i, cond := range rule.Conditions {
		met, value, err := EvaluateCondition(facts, cond)
		if err != nil {
			problems = append(problems, fmt.Sprintf("condition %d: %v", i, err))
		}
		if met {
			metCount++
		}
		details = append(details, types.ConditionDetail{
			Condition:    renderCondition(cond),
			PatientValue: value,
			Met:          met,
		})
		// Only values actually present in the chart make the summary;
		// missing facts are visible in the per-condition detail.
		if value != nil {
			if s := formatValue(value); s != "" {
				summary = append(summary, s)
			}
		}
	}

	result.ConditionDetails = details
	if len(summary) == 0 {
		result.PatientValue = "Not found in chart"
	} else {
		result.PatientValue = strings.Join(summary, "; ")
	}
	result.Met = combine(rule, metCount, len(rule.Conditions), &problems)
	result.Details = strings.Join(problems, "; ")
	return result
}

// combine applies the logic combinator to the met-condition count.
// Malformed logic or a missing threshold fails closed and records why.
func combine(rule types.Rule, metCount, total int, problems *[]string) bool {
	switch rule.Logic {
	case types.LogicAll:
		return metCount == total
	case types.LogicAny:
		return metCount > 0
	case types.LogicCountGte:
		if rule.Threshold == nil {
			*problems = append(*problems, "count_gte logic without threshold")
			return false
		}
		return metCount >= *rule.Threshold
	case types.LogicCountLte:
		if rule.Threshold == nil {
			*problems = append(*problems, "count_lte logic without threshold")
			return false
		}
		return metCount <= *rule.Threshold
	default:
		*problems = append(*problems, fmt.Sprintf("unknown logic %q", rule.Logic))
		return false
	}
}

// renderCondition produces the audit string "field operator value".
func renderCondition(cond types.Condition) string {
	return fmt.Sprintf("%s %s %s", cond.Field, cond.Operator, formatValue(cond.Value))
}

// formatValue renders a fact or comparand for human-readable output.
// Booleans become Yes/No, lists are comma-joined, nil reads as absence.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "Not found in chart"
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case string:
		return val
	case float64:
		// Trim the trailing ".0" JSON numbers pick up on round values.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(val, ", ")
	default:
		return fmt.Sprintf("%v", val)
	}
}
