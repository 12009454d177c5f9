package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpa/chartcheck/internal/types"
)

func findRule(rules []types.Rule, id string) *types.Rule {
	for i := range rules {
		if rules[i].ID == id {
			return &rules[i]
		}
	}
	return nil
}

func TestNormalizePolicyRuleList(t *testing.T) {
	result, err := NormalizePolicy(types.RawDocument(`{
		"rules": [
			{
				"id": "pt_duration",
				"description": "PT at least 6 weeks",
				"logic": "all",
				"conditions": [{"field": "pt_duration_weeks", "operator": "gte", "value": 6}]
			},
			{"id": "broken_no_conditions", "logic": "all"},
			{"description": "broken, no id", "conditions": []},
			"not even an object"
		],
		"metadata": {"compiled_by": "policy-team"}
	}`))
	require.NoError(t, err)

	// Structurally incomplete entries are dropped with a warning each,
	// complete ones kept.
	rules := result.Rules
	require.Len(t, rules, 1)
	assert.Equal(t, "pt_duration", rules[0].ID)
	assert.Equal(t, types.LogicAll, rules[0].Logic)
	require.Len(t, rules[0].Conditions, 1)
	assert.Equal(t, types.OpGte, rules[0].Conditions[0].Operator)
	assert.Equal(t, float64(6), rules[0].Conditions[0].Value)
	assert.Len(t, result.Warnings, 3)
	assert.Nil(t, result.Schema)
}

func TestNormalizePolicyDirect(t *testing.T) {
	result, err := NormalizePolicy(types.RawDocument(`{
		"payer": "Aetna",
		"cpt_code": "73721",
		"coverage_criteria": {
			"clinical_indications": ["Suspected meniscal tear", "Knee instability"],
			"prerequisites": [
				"Weight-bearing X-rays within 60 days",
				"Physical therapy for at least 6 weeks"
			],
			"documentation_requirements": [
				"NSAID trial documented",
				"Clinical notes within 30 days"
			]
		}
	}`))
	require.NoError(t, err)
	rules := result.Rules

	xray := findRule(rules, "xray_requirement")
	require.NotNil(t, xray)
	assert.Equal(t, "Weight-bearing X-rays must be completed within 60 days", xray.Description)
	require.Len(t, xray.Conditions, 3)
	assert.Equal(t, float64(2), xray.Conditions[2].Value, "60 days is a 2-month window")

	pt := findRule(rules, "physical_therapy_requirement")
	require.NotNil(t, pt)
	require.Len(t, pt.Conditions, 2)
	assert.Equal(t, float64(6), pt.Conditions[1].Value)

	require.NotNil(t, findRule(rules, "medication_trial_requirement"))
	require.NotNil(t, findRule(rules, "recent_clinical_notes"))

	indication := findRule(rules, "clinical_indication_requirement")
	require.NotNil(t, indication)
	assert.Equal(t, types.OpIn, indication.Conditions[0].Operator)
	assert.Equal(t, []any{"meniscal tear", "instability"}, indication.Conditions[0].Value)

	// Every compiled policy carries the WC exclusion and the quality gate.
	wc := findRule(rules, "workers_comp_exclusion")
	require.NotNil(t, wc)
	assert.True(t, wc.Exclusion)
	require.Len(t, wc.Conditions, 1)
	assert.Equal(t, "is_workers_compensation", wc.Conditions[0].Field)
	quality := findRule(rules, "evidence_quality")
	require.NotNil(t, quality)
	assert.Equal(t, "evidence_quality", rules[len(rules)-1].ID, "quality gate compiles last")
	assert.Empty(t, result.Warnings, "every criterion maps to a rule")
}

func TestNormalizePolicyWrapped(t *testing.T) {
	result, err := NormalizePolicy(types.RawDocument(`{
		"rules": {
			"payer": "UHC",
			"cpt_code": "73721",
			"coverage_criteria": {
				"prerequisites": ["Recent imaging required"]
			}
		},
		"context": ["X-rays must be obtained within 90 days of the request"],
		"raw_output": "..."
	}`))
	require.NoError(t, err)

	xray := findRule(result.Rules, "xray_requirement")
	require.NotNil(t, xray)
	assert.Equal(t, float64(3), xray.Conditions[2].Value, "context snippets refine the window")
}

func TestNormalizePolicyDefaults(t *testing.T) {
	result, err := NormalizePolicy(types.RawDocument(`{
		"coverage_criteria": {
			"prerequisites": ["X-ray required before advanced imaging"]
		}
	}`))
	require.NoError(t, err)

	xray := findRule(result.Rules, "xray_requirement")
	require.NotNil(t, xray)
	assert.Equal(t, float64(2), xray.Conditions[2].Value, "unstated window defaults to 2 months")

	// No indication list means no indication gate.
	assert.Nil(t, findRule(result.Rules, "clinical_indication_requirement"))
}

func TestNormalizePolicyUnknownShapeDegrades(t *testing.T) {
	result, err := NormalizePolicy(types.RawDocument(`{"payer": "Aetna", "notes": []}`))
	require.NoError(t, err)

	// Unrecognized shapes degrade to the baseline rules with a warning.
	require.Len(t, result.Rules, 2)
	assert.Equal(t, "workers_comp_exclusion", result.Rules[0].ID)
	assert.Equal(t, "evidence_quality", result.Rules[1].ID)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "unrecognized policy document shape")
}

func TestNormalizePolicyCanonical(t *testing.T) {
	result, err := NormalizePolicy(types.RawDocument(`{
		"canonical_rules": [
			{
				"id": "pt_duration",
				"logic": "all",
				"conditions": [{"field": "pt_duration_weeks", "operator": "gte", "value": 6}]
			}
		],
		"extraction_schema": {
			"pt_duration_weeks": {"type": "number"},
			"imaging_type": {"type": "string"}
		}
	}`))
	require.NoError(t, err)

	require.Len(t, result.Rules, 1)
	assert.Equal(t, "pt_duration", result.Rules[0].ID)
	assert.Equal(t, []string{"imaging_type", "pt_duration_weeks"}, result.Schema)
	assert.Empty(t, result.Warnings)
}

func TestNormalizePolicyUnmappedCriteriaWarn(t *testing.T) {
	result, err := NormalizePolicy(types.RawDocument(`{
		"coverage_criteria": {
			"prerequisites": ["Genetic counseling completed"],
			"quantity_limits": ["One study per 12 months"]
		}
	}`))
	require.NoError(t, err)

	require.Len(t, result.Warnings, 2)
	assert.Contains(t, result.Warnings[0], "Genetic counseling completed")
	assert.Contains(t, result.Warnings[1], "quantity_limits")
}

func TestNormalizePolicyCompiledSetsAreClean(t *testing.T) {
	raw := types.RawDocument(`{
		"coverage_criteria": {
			"clinical_indications": ["meniscal tear"],
			"prerequisites": ["X-rays within 60 days", "physical therapy 6 weeks"],
			"documentation_requirements": ["NSAID trial", "notes within 30 days"]
		}
	}`)
	result, err := NormalizePolicy(raw)
	require.NoError(t, err)

	// Compiled output must satisfy the same lint gate as hand-authored sets.
	for _, rule := range result.Rules {
		assert.NotEmpty(t, rule.ID)
		assert.True(t, rule.Logic.Valid(), "rule %s", rule.ID)
		assert.NotEmpty(t, rule.Conditions, "rule %s", rule.ID)
	}
}

func TestExtractIndication(t *testing.T) {
	tests := []struct {
		name  string
		notes []string
		want  string
	}{
		{"meniscal tear", []string{"MRI shows torn meniscus"}, "meniscal tear"},
		{"mechanical symptoms", []string{"reports catching and locking"}, "mechanical symptoms"},
		{"ligament", []string{"suspected ACL injury"}, "ligament rupture"},
		{"priority order", []string{"meniscus tear with locking"}, "meniscal tear"},
		{"red flag", []string{"rule out septic arthritis"}, "red flag"},
		{"no match", []string{"knee pain"}, ""},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractIndication(tt.notes))
		})
	}
}

func TestCanonicalIndications(t *testing.T) {
	got := CanonicalIndications([]string{
		"Suspected meniscal tear",
		"Meniscus pathology",
		"ACL rupture",
		"completely unrelated text",
	})
	assert.Equal(t, []string{"meniscal tear", "ligament rupture"}, got)
}
