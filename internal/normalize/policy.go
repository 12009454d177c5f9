// internal/normalize/policy.go
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/openpa/chartcheck/internal/types"
)

/*
 * Policy document normalization.
 *
 * Turns any recognized policy shape into a rule list:
 *
 *   - Pre-compiled rule lists (canonical_rules or rules) validate and pass
 *     through; entries without an id or a conditions key are dropped with a
 *     warning. The canonical shape also carries the extraction schema the
 *     linter cross-checks condition fields against.
 *   - Wrapped and direct policy objects compile from coverage-criteria text
 *     via keyword heuristics: imaging prerequisites, physical therapy
 *     duration, medication trials, documentation recency, and the payer's
 *     clinical indication list.
 *   - Unrecognized shapes degrade to the baseline rules (workers' comp
 *     exclusion plus the evidence-quality gate) with a warning; normalization
 *     never fails a request over shape alone.
 *
 * Criteria text the heuristics recognize but cannot map onto a patient fact
 * is surfaced in Warnings, never silently dropped.
 *
 * Compiled rule sets always end with the evidence-quality gate and carry
 * the workers' compensation exclusion, which every supported payer routes
 * through a separate review channel.
 */

var (
	daysPattern   = regexp.MustCompile(`(\d+)\s*days?`)
	monthsPattern = regexp.MustCompile(`(\d+)\s*months?`)
	weeksPattern  = regexp.MustCompile(`(\d+)\s*weeks?`)
)

// PolicyResult is the outcome of policy normalization.
type PolicyResult struct {
	// Rules is the evaluable rule list.
	Rules []types.Rule
	// Schema lists the extraction schema fields, when the canonical shape
	// supplied them. Nil means no schema to lint against.
	Schema []string
	// Warnings records dropped entries and criteria text that could not be
	// mapped onto patient facts.
	Warnings []string
}

// NormalizePolicy turns a raw policy document into the rule list the engine
// evaluates. Unrecognized object shapes degrade to baseline rules with a
// warning; the only errors are oversized or syntactically invalid JSON.
func NormalizePolicy(raw types.RawDocument) (PolicyResult, error) {
	doc, err := decodeObject(raw)
	if err != nil {
		return PolicyResult{}, err
	}

	switch DetectPolicyShape(doc) {
	case PolicyShapeCanonical:
		result := validateRuleList(doc["canonical_rules"].([]any))
		result.Schema = schemaFields(doc["extraction_schema"])
		return result, nil
	case PolicyShapeRuleList:
		return validateRuleList(doc["rules"].([]any)), nil
	case PolicyShapeDirect:
		return compilePolicy(doc, nil), nil
	case PolicyShapeWrapped:
		return compilePolicy(getMap(doc, "rules"), getStrings(doc, "context")), nil
	default:
		result := compilePolicy(doc, nil)
		result.Warnings = append(result.Warnings,
			"unrecognized policy document shape; compiled baseline rules only")
		return result, nil
	}
}

// schemaFields extracts the extraction schema field names. Producers ship
// the schema as either an object keyed by field or a plain list of names.
func schemaFields(raw any) []string {
	switch schema := raw.(type) {
	case map[string]any:
		fields := make([]string, 0, len(schema))
		for field := range schema {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		return fields
	case []any:
		var fields []string
		for _, v := range schema {
			if s, ok := v.(string); ok {
				fields = append(fields, s)
			}
		}
		return fields
	default:
		return nil
	}
}

// validateRuleList filters a pre-compiled rule list down to structurally
// complete entries. An entry must carry an id and a conditions key; the
// linter catches everything subtler before publication.
func validateRuleList(entries []any) PolicyResult {
	var result PolicyResult
	for i, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("rule entry %d dropped: not an object", i))
			continue
		}
		if _, ok := obj["id"]; !ok {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("rule entry %d dropped: missing id", i))
			continue
		}
		if _, ok := obj["conditions"]; !ok {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("rule entry %d (%v) dropped: missing conditions", i, obj["id"]))
			continue
		}
		encoded, err := json.Marshal(obj)
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("rule entry %d dropped: %v", i, err))
			continue
		}
		var rule types.Rule
		if err := json.Unmarshal(encoded, &rule); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("rule entry %d dropped: %v", i, err))
			continue
		}
		result.Rules = append(result.Rules, rule)
	}
	return result
}

// compilePolicy derives rules from a policy object's coverage criteria.
// context carries retrieval snippets available only in the wrapped shape.
// Criteria text no heuristic consumes ends up in Warnings.
func compilePolicy(policy map[string]any, context []string) PolicyResult {
	coverage := getMap(policy, "coverage_criteria")
	prerequisites := getStrings(coverage, "prerequisites")
	docRequirements := getStrings(coverage, "documentation_requirements")

	var all []string
	all = append(all, prerequisites...)
	all = append(all, docRequirements...)
	all = append(all, context...)
	allText := strings.ToLower(strings.Join(all, " "))

	mapped := map[string]bool{}
	var ruleList []types.Rule
	ruleList = append(ruleList, types.Rule{
		ID:              "workers_comp_exclusion",
		Description:     "Workers' compensation claims follow a separate review process",
		Logic:           types.LogicAll,
		Exclusion:       true,
		ExclusionReason: "Workers' compensation claim; submit through the payer's WC review channel",
		Conditions: []types.Condition{
			{Field: "is_workers_compensation", Operator: types.OpEq, Value: true},
		},
	})

	if rule := compileImagingRule(prerequisites, allText, mapped); rule != nil {
		ruleList = append(ruleList, *rule)
	}
	if rule := compilePhysicalTherapyRule(prerequisites, docRequirements, allText, mapped); rule != nil {
		ruleList = append(ruleList, *rule)
	}
	if rule := compileMedicationRule(prerequisites, docRequirements, mapped); rule != nil {
		ruleList = append(ruleList, *rule)
	}
	if rule := compileRecencyRule(docRequirements, mapped); rule != nil {
		ruleList = append(ruleList, *rule)
	}
	if rule := compileIndicationRule(getStrings(coverage, "clinical_indications")); rule != nil {
		ruleList = append(ruleList, *rule)
	}

	// The extraction-quality gate applies to every compiled policy.
	ruleList = append(ruleList, types.Rule{
		ID:          "evidence_quality",
		Description: "Evidence must be validated with no hallucinations",
		Logic:       types.LogicAll,
		Conditions: []types.Condition{
			{Field: "hallucinations_detected", Operator: types.OpEq, Value: float64(0)},
			{Field: "validation_passed", Operator: types.OpEq, Value: true},
		},
	})

	var warnings []string
	for _, text := range prerequisites {
		if !mapped[text] {
			warnings = append(warnings, fmt.Sprintf("unmapped prerequisite: %q", text))
		}
	}
	for _, text := range docRequirements {
		if !mapped[text] {
			warnings = append(warnings, fmt.Sprintf("unmapped documentation requirement: %q", text))
		}
	}
	if limits := getStrings(coverage, "quantity_limits"); len(limits) > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"quantity_limits criteria cannot be mapped to patient facts (%d entries)", len(limits)))
	}

	return PolicyResult{Rules: ruleList, Warnings: warnings}
}

// compileImagingRule derives the prior-imaging prerequisite. The recency
// window comes from the prerequisite text, refined by day counts anywhere in
// the policy text; 2 months when no window is stated.
func compileImagingRule(prerequisites []string, allText string, mapped map[string]bool) *types.Rule {
	for _, prereq := range prerequisites {
		lower := strings.ToLower(prereq)
		if !strings.Contains(lower, "x-ray") && !strings.Contains(lower, "xray") &&
			!strings.Contains(lower, "imaging") {
			continue
		}
		mapped[prereq] = true

		months := 2.0
		if m := daysPattern.FindStringSubmatch(lower); m != nil {
			months = float64(atoiSafe(m[1])) / 30
		}
		if m := monthsPattern.FindStringSubmatch(lower); m != nil {
			months = float64(atoiSafe(m[1]))
		}
		switch {
		case strings.Contains(allText, "60 days"):
			months = 2
		case strings.Contains(allText, "90 days"):
			months = 3
		case strings.Contains(allText, "30 days"):
			months = 1
		}

		return &types.Rule{
			ID:          "xray_requirement",
			Description: fmt.Sprintf("Weight-bearing X-rays must be completed within %d days", int(months*30)),
			Logic:       types.LogicAll,
			Conditions: []types.Condition{
				{Field: "imaging_documented", Operator: types.OpEq, Value: true},
				{Field: "imaging_type", Operator: types.OpEq, Value: "X-ray"},
				{Field: "imaging_months_ago", Operator: types.OpLte, Value: months},
			},
		}
	}
	return nil
}

func compilePhysicalTherapyRule(prerequisites, docRequirements []string, allText string, mapped map[string]bool) *types.Rule {
	mentioned := false
	var weeksRequired int
	for _, text := range append(append([]string{}, prerequisites...), docRequirements...) {
		lower := strings.ToLower(text)
		if !strings.Contains(lower, "physical therapy") && !strings.Contains(lower, "pt") {
			continue
		}
		mentioned = true
		mapped[text] = true
		if m := weeksPattern.FindStringSubmatch(lower); m != nil {
			weeksRequired = atoiSafe(m[1])
		}
	}
	if !mentioned {
		return nil
	}
	if weeksRequired == 0 && strings.Contains(allText, "6 weeks") {
		weeksRequired = 6
	}

	rule := &types.Rule{
		ID:          "physical_therapy_requirement",
		Description: "Physical therapy must be attempted and documented",
		Logic:       types.LogicAll,
		Conditions: []types.Condition{
			{Field: "pt_attempted", Operator: types.OpEq, Value: true},
		},
	}
	if weeksRequired > 0 {
		rule.Description = fmt.Sprintf("Physical therapy must be attempted and documented (minimum %d weeks)", weeksRequired)
		rule.Conditions = append(rule.Conditions, types.Condition{
			Field: "pt_duration_weeks", Operator: types.OpGte, Value: float64(weeksRequired),
		})
	}
	return rule
}

func compileMedicationRule(prerequisites, docRequirements []string, mapped map[string]bool) *types.Rule {
	for _, text := range append(append([]string{}, prerequisites...), docRequirements...) {
		lower := strings.ToLower(text)
		if strings.Contains(lower, "medication") || strings.Contains(lower, "nsaid") ||
			strings.Contains(lower, "analgesic") {
			mapped[text] = true
			return &types.Rule{
				ID:          "medication_trial_requirement",
				Description: "Medication trial must be documented",
				Logic:       types.LogicAll,
				Conditions: []types.Condition{
					{Field: "nsaid_documented", Operator: types.OpEq, Value: true},
				},
			}
		}
	}
	return nil
}

func compileRecencyRule(docRequirements []string, mapped map[string]bool) *types.Rule {
	for _, req := range docRequirements {
		if strings.Contains(strings.ToLower(req), "30 days") {
			mapped[req] = true
			return &types.Rule{
				ID:          "recent_clinical_notes",
				Description: "Clinical notes must be within 30 days",
				Logic:       types.LogicAll,
				Conditions: []types.Condition{
					{Field: "validation_passed", Operator: types.OpEq, Value: true},
				},
			}
		}
	}
	return nil
}

// compileIndicationRule gates on the payer's clinical indication list,
// canonicalized to the shared vocabulary. No recognizable indications means
// no gate; a rule with an empty allow-list could never be met.
func compileIndicationRule(indications []string) *types.Rule {
	canonical := CanonicalIndications(indications)
	if len(canonical) == 0 {
		return nil
	}
	values := make([]any, len(canonical))
	for i, c := range canonical {
		values[i] = c
	}
	return &types.Rule{
		ID:          "clinical_indication_requirement",
		Description: fmt.Sprintf("Patient must have a valid clinical indication: %s", strings.Join(canonical, ", ")),
		Logic:       types.LogicAll,
		Conditions: []types.Condition{
			{Field: "clinical_indication", Operator: types.OpIn, Value: values},
		},
	}
}

// atoiSafe parses digits already validated by the regexp submatch.
func atoiSafe(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
