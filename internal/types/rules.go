// internal/types/rules.go
package types

/*
 * Domain types for policy rule evaluation.
 *
 * Provides Rule, Condition, and the evaluation result structures used by
 * internal/rules. These types are wire-format agnostic in the sense that the
 * normalization layer owns mapping legacy raw JSON shapes onto them; once a
 * []Rule and a FactMap exist, the engine never looks at raw JSON again.
 *
 * Key types:
 *   - Rule: one unit of policy logic (logic combinator over conditions)
 *   - Condition: single comparison with dotted field path and operator
 *   - RuleResult / Report: auditable per-rule and aggregate outcomes
 *
 * Dependencies: none (encoding/json only, via types.go).
 */

// Logic is the combinator applied to a rule's condition outcomes.
type Logic string

const (
	LogicAll      Logic = "all"       // every condition must hold
	LogicAny      Logic = "any"       // at least one condition must hold
	LogicCountGte Logic = "count_gte" // at least Threshold conditions must hold
	LogicCountLte Logic = "count_lte" // at most Threshold conditions may hold
)

// Valid reports whether l is a known logic combinator.
func (l Logic) Valid() bool {
	switch l {
	case LogicAll, LogicAny, LogicCountGte, LogicCountLte:
		return true
	}
	return false
}

// Counted reports whether l requires a threshold.
func (l Logic) Counted() bool {
	return l == LogicCountGte || l == LogicCountLte
}

// Operator compares one patient value against one condition comparand.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGte      Operator = "gte"
	OpGt       Operator = "gt"
	OpLte      Operator = "lte"
	OpLt       Operator = "lt"
	OpIn       Operator = "in"       // patient value is an element of comparand list
	OpContains Operator = "contains" // patient list contains comparand
	OpAnyIn    Operator = "any_in"   // patient list and comparand list overlap
)

// Valid reports whether op is a known comparison operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNeq, OpGte, OpGt, OpLte, OpLt, OpIn, OpContains, OpAnyIn:
		return true
	}
	return false
}

// Condition represents a single comparison in a rule.
// Field is a dotted path into the FactMap; Value is the comparand
// (any JSON scalar, or a list for in/any_in).
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Rule represents one unit of policy logic.
//
// Exclusion rules short-circuit the whole evaluation when met (categorical
// mismatch, e.g. workers' compensation). Exception-pathway rules, when met,
// waive the standard rules named in Overrides.
type Rule struct {
	ID               string      `json:"id"`
	Description      string      `json:"description"`
	Logic            Logic       `json:"logic"`
	Threshold        *int        `json:"threshold,omitempty"` // required for count_gte/count_lte
	Conditions       []Condition `json:"conditions"`
	Exclusion        bool        `json:"exclusion,omitempty"`
	ExclusionReason  string      `json:"exclusion_reason,omitempty"`
	ExceptionPathway bool        `json:"exception_pathway,omitempty"`
	Overrides        []string    `json:"overrides,omitempty"` // rule IDs waived when this exception is met
}

// ConditionDetail records the outcome of a single condition for audit output.
type ConditionDetail struct {
	Condition    string `json:"condition"` // "field operator value" rendering
	PatientValue any    `json:"patient_value"`
	Met          bool   `json:"met"`
}

// RuleResult is the per-rule evaluation outcome.
type RuleResult struct {
	RuleID           string            `json:"rule_id"`
	Description      string            `json:"description"`
	Met              bool              `json:"met"`
	Logic            Logic             `json:"logic"`
	ConditionDetails []ConditionDetail `json:"condition_details,omitempty"`
	PatientValue     string            `json:"patient_value"` // human-readable summary of referenced facts
	Details          string            `json:"details,omitempty"`
	Waived           bool              `json:"waived,omitempty"` // satisfied via exception pathway, not own conditions
	Exclusion        bool              `json:"exclusion,omitempty"`
}

// Warning is a non-blocking advisory finding. Warnings never change the
// pass/fail outcome; they surface items for clinician review.
type Warning struct {
	RuleID         string `json:"rule_id"`
	Description    string `json:"description"`
	Message        string `json:"warning"`
	Recommendation string `json:"recommendation,omitempty"`
	Severity       string `json:"severity"`
}

// Report is the aggregate evaluation outcome for one chart against one
// rule set. Directly serializable as an API response body.
type Report struct {
	Results         []RuleResult `json:"results"`
	AllCriteriaMet  bool         `json:"all_criteria_met"`
	TotalRules      int          `json:"total_rules"`
	RulesMet        int          `json:"rules_met"`
	RulesFailed     int          `json:"rules_failed"`
	Excluded        bool         `json:"excluded"`
	ExclusionReason *string      `json:"exclusion_reason"`
	ActiveOverrides []string     `json:"active_overrides"`
	Warnings        []Warning    `json:"warnings"`
}
