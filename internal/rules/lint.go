// internal/rules/lint.go
package rules

import (
	"fmt"
	"strings"

	"github.com/openpa/chartcheck/internal/types"
)

/*
 * Static rule-set linting.
 *
 * Catches authoring defects before a rule set is published: duplicate IDs,
 * unknown operators and logic, count thresholds that make a rule trivially
 * met or unsatisfiable, overrides pointing at rules that do not exist, and
 * (when an extraction schema is supplied) condition fields the extractor
 * never produces plus schema fields no rule references.
 *
 * ERROR findings make a rule set unpublishable; WARNING findings surface
 * suspicious-but-legal constructs for the author to confirm.
 */

// Severity levels for lint findings.
const (
	SeverityError   = "ERROR"
	SeverityWarning = "WARNING"
)

// Issue is one lint finding against a rule set.
type Issue struct {
	Severity string `json:"severity"`
	RuleID   string `json:"rule_id"`
	Message  string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.RuleID, i.Message)
}

// HasErrors reports whether any finding is an ERROR.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Lint statically checks a rule set for authoring defects. schema lists the
// extraction schema fields to cross-check condition fields against; nil
// skips the schema checks. Returns all findings; an empty slice means the
// set is clean.
func Lint(ruleList []types.Rule, schema []string) []Issue {
	var issues []Issue
	report := func(severity, ruleID, format string, args ...any) {
		issues = append(issues, Issue{
			Severity: severity,
			RuleID:   ruleID,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if len(ruleList) > types.MaxRulesPerSet {
		report(SeverityError, "", "rule set has %d rules, maximum is %d", len(ruleList), types.MaxRulesPerSet)
	}

	ids := make(map[string]struct{}, len(ruleList))
	for _, rule := range ruleList {
		if rule.ID == "" {
			report(SeverityError, "", "rule has no id")
			continue
		}
		if _, dup := ids[rule.ID]; dup {
			report(SeverityError, rule.ID, "duplicate rule id")
		}
		ids[rule.ID] = struct{}{}
	}

	for _, rule := range ruleList {
		lintRule(rule, ids, report)
	}
	if schema != nil {
		lintSchema(ruleList, schema, report)
	}
	return issues
}

// lintSchema cross-checks condition fields against the extraction schema.
// A condition on a field the extractor never produces can only resolve to
// nil (ERROR); a schema field no rule references is dead weight (WARNING).
// Only the root segment of a dotted path is checked.
func lintSchema(ruleList []types.Rule, schema []string, report func(severity, ruleID, format string, args ...any)) {
	known := make(map[string]struct{}, len(schema))
	for _, field := range schema {
		known[field] = struct{}{}
	}

	referenced := map[string]struct{}{}
	for _, rule := range ruleList {
		for i, cond := range rule.Conditions {
			root, _, _ := strings.Cut(cond.Field, ".")
			if root == "" {
				continue
			}
			referenced[root] = struct{}{}
			if _, ok := known[root]; !ok {
				report(SeverityError, rule.ID,
					"condition %d references field %q absent from the extraction schema", i, cond.Field)
			}
		}
	}

	for _, field := range schema {
		if _, ok := referenced[field]; !ok {
			report(SeverityWarning, "", "extraction schema field %q is referenced by no rule", field)
		}
	}
}

func lintRule(rule types.Rule, ids map[string]struct{}, report func(severity, ruleID, format string, args ...any)) {
	if !rule.Logic.Valid() {
		report(SeverityError, rule.ID, "unknown logic %q", rule.Logic)
	}
	if len(rule.Conditions) == 0 {
		report(SeverityError, rule.ID, "rule has no conditions")
	}
	if len(rule.Conditions) > types.MaxConditionsPerRule {
		report(SeverityError, rule.ID, "rule has %d conditions, maximum is %d",
			len(rule.Conditions), types.MaxConditionsPerRule)
	}

	lintThreshold(rule, report)

	for i, cond := range rule.Conditions {
		if cond.Field == "" {
			report(SeverityError, rule.ID, "condition %d has no field", i)
		}
		if !cond.Operator.Valid() {
			report(SeverityError, rule.ID, "condition %d uses unknown operator %q", i, cond.Operator)
		}
		switch cond.Operator {
		case types.OpIn, types.OpAnyIn:
			arr, ok := asList(cond.Value)
			if !ok {
				report(SeverityError, rule.ID, "condition %d: %s requires a list comparand", i, cond.Operator)
			} else if len(arr) > types.MaxListValues {
				report(SeverityWarning, rule.ID, "condition %d: comparand list has %d values, maximum is %d",
					i, len(arr), types.MaxListValues)
			}
		}
	}

	if rule.ExceptionPathway && len(rule.Overrides) == 0 {
		report(SeverityWarning, rule.ID, "exception pathway overrides no rules")
	}
	if rule.Exclusion && len(rule.Overrides) > 0 {
		report(SeverityWarning, rule.ID, "exclusion rule carries overrides, which are never applied")
	}
	for _, target := range rule.Overrides {
		if _, ok := ids[target]; !ok {
			report(SeverityError, rule.ID, "overrides unknown rule %q", target)
		}
		if target == rule.ID {
			report(SeverityWarning, rule.ID, "rule overrides itself")
		}
	}
}

func lintThreshold(rule types.Rule, report func(severity, ruleID, format string, args ...any)) {
	if rule.Logic.Counted() {
		if rule.Threshold == nil {
			report(SeverityError, rule.ID, "%s logic requires a threshold", rule.Logic)
			return
		}
		t := *rule.Threshold
		n := len(rule.Conditions)
		switch rule.Logic {
		case types.LogicCountGte:
			if t <= 0 {
				report(SeverityWarning, rule.ID, "count_gte threshold %d is trivially met", t)
			}
			if t > n {
				report(SeverityError, rule.ID, "count_gte threshold %d exceeds condition count %d, rule is unsatisfiable", t, n)
			}
		case types.LogicCountLte:
			if t >= n {
				report(SeverityWarning, rule.ID, "count_lte threshold %d is trivially met with %d conditions", t, n)
			}
			if t < 0 {
				report(SeverityError, rule.ID, "count_lte threshold %d is unsatisfiable", t)
			}
		}
		return
	}
	if rule.Threshold != nil {
		report(SeverityWarning, rule.ID, "threshold set on %s logic is ignored", rule.Logic)
	}
}
