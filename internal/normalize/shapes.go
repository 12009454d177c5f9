// Package normalize maps the raw JSON documents produced by upstream
// extractors and policy compilers onto the canonical fact map and rule list
// the engine consumes.
//
// Producers have shipped several document shapes over time and none of them
// tag their output, so shape detection is structural: matchers run in
// priority order and the first hit wins. Pre-normalized shapes always match
// before legacy ones, so a document that is already canonical passes through
// untouched.
package normalize

import (
	"encoding/json"

	"github.com/openpa/chartcheck/internal/types"
)

// PatientShape identifies which producer format a raw chart document uses.
type PatientShape string

const (
	// PatientShapePreNormalized carries the canonical fact map under
	// "normalized_data"; it passes through unchanged.
	PatientShapePreNormalized PatientShape = "pre_normalized"
	// PatientShapeWrapped nests clinical fields under "requirements"
	// with extraction metadata alongside (legacy extractor output).
	PatientShapeWrapped PatientShape = "wrapped"
	// PatientShapeFlat has clinical fields at the top level (current
	// extractor output).
	PatientShapeFlat PatientShape = "flat"
)

// PolicyShape identifies which producer format a raw policy document uses.
type PolicyShape string

const (
	// PolicyShapeCanonical carries compiled rules under "canonical_rules"
	// together with the extraction schema the rules are authored against.
	PolicyShapeCanonical PolicyShape = "canonical"
	// PolicyShapeRuleList carries compiled rules as a list under "rules".
	PolicyShapeRuleList PolicyShape = "rule_list"
	// PolicyShapeDirect is the bare policy object with "coverage_criteria"
	// at the top level.
	PolicyShapeDirect PolicyShape = "direct"
	// PolicyShapeWrapped nests the policy object under "rules" as an
	// object, with retrieval context alongside.
	PolicyShapeWrapped PolicyShape = "wrapped"
	// PolicyShapeUnknown matched nothing.
	PolicyShapeUnknown PolicyShape = "unknown"
)

// decodeObject parses a raw document into a generic JSON object, enforcing
// the size limit before touching the parser.
func decodeObject(raw types.RawDocument) (map[string]any, error) {
	if len(raw) > types.MaxRawDocumentSize {
		return nil, types.ErrDocumentTooLarge
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// DetectPatientShape classifies a decoded chart document. Detection order
// matters: pre-normalized wins over wrapped wins over flat, and flat is the
// catch-all because current extractor output has no distinguishing envelope.
func DetectPatientShape(doc map[string]any) PatientShape {
	if _, ok := doc["normalized_data"]; ok {
		return PatientShapePreNormalized
	}
	if _, ok := doc["requirements"]; ok {
		return PatientShapeWrapped
	}
	return PatientShapeFlat
}

// DetectPolicyShape classifies a decoded policy document. "canonical_rules"
// is the schema-carrying compiled shape; a "rules" list is pre-compiled
// output; a "rules" object is the legacy retrieval wrapper; top-level
// "coverage_criteria" is the bare policy object.
func DetectPolicyShape(doc map[string]any) PolicyShape {
	if _, ok := doc["canonical_rules"].([]any); ok {
		return PolicyShapeCanonical
	}
	if rules, ok := doc["rules"]; ok {
		switch rules.(type) {
		case []any:
			return PolicyShapeRuleList
		case map[string]any:
			return PolicyShapeWrapped
		}
	}
	if _, ok := doc["coverage_criteria"]; ok {
		return PolicyShapeDirect
	}
	return PolicyShapeUnknown
}

// Generic accessors over decoded JSON. Upstream documents are sloppy about
// types, so every read degrades to a zero value instead of panicking.

func getMap(doc map[string]any, key string) map[string]any {
	m, _ := doc[key].(map[string]any)
	return m
}

func getString(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func getBool(doc map[string]any, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

func getStrings(doc map[string]any, key string) []string {
	arr, ok := doc[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// getNumber returns the value as float64 when it is numeric, else nil.
// Callers that need "present vs absent" semantics keep the nil.
func getNumber(doc map[string]any, key string) *float64 {
	switch n := doc[key].(type) {
	case float64:
		return &n
	default:
		return nil
	}
}
