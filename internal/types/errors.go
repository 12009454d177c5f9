package types

import "errors"

// Sentinel errors for chartcheck operations.
var (
	// ErrUnknownOperator indicates a condition uses an operator the comparator
	// does not implement. Authoring defect, not a runtime/user error.
	ErrUnknownOperator = errors.New("unknown comparison operator")

	// ErrPathTooDeep indicates a field path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("field path exceeds maximum depth")

	// ErrMissingConditions indicates a rule is missing its conditions key
	// entirely (structurally broken rule set, not sparse data).
	ErrMissingConditions = errors.New("rule is missing conditions")

	// ErrTooManyRules indicates a rule set exceeds MaxRulesPerSet.
	ErrTooManyRules = errors.New("rule set exceeds maximum rule count")

	// ErrTooManyConditions indicates a rule exceeds MaxConditionsPerRule.
	ErrTooManyConditions = errors.New("rule exceeds maximum condition count")

	// ErrDocumentTooLarge indicates a raw document exceeds MaxRawDocumentSize.
	ErrDocumentTooLarge = errors.New("raw document exceeds maximum size")

	// ErrRuleSetNotFound indicates no compiled rule set exists for the
	// requested payer/procedure-code combination.
	ErrRuleSetNotFound = errors.New("no compiled rule set for payer and procedure code")
)
