package rules

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpa/chartcheck/internal/types"
)

func testEngine() *Engine {
	return NewEngine(zerolog.Nop())
}

// mriKneeRules approximates a compiled commercial policy for CPT 73721:
// conservative care, an exam finding requirement, a workers' comp exclusion,
// and an acute-trauma exception pathway that waives conservative care.
func mriKneeRules() []types.Rule {
	return []types.Rule{
		{
			ID:              "workers_comp",
			Description:     "Workers' compensation claims follow a separate review process",
			Logic:           types.LogicAll,
			Exclusion:       true,
			ExclusionReason: "Workers' compensation claim; submit through the WC review channel",
			Conditions: []types.Condition{
				{Field: "is_workers_compensation", Operator: types.OpEq, Value: true},
			},
		},
		{
			ID:               "acute_trauma",
			Description:      "Acute trauma with suspected internal derangement",
			Logic:            types.LogicAll,
			ExceptionPathway: true,
			Overrides:        []string{"conservative_care"},
			Conditions: []types.Condition{
				{Field: "acute_trauma", Operator: types.OpEq, Value: true},
			},
		},
		{
			ID:          "conservative_care",
			Description: "At least 6 weeks of conservative treatment",
			Logic:       types.LogicAll,
			Conditions: []types.Condition{
				{Field: "pt_completed", Operator: types.OpEq, Value: true},
				{Field: "pt_duration_weeks", Operator: types.OpGte, Value: float64(6)},
			},
		},
		{
			ID:          "exam_findings",
			Description: "Documented positive exam finding",
			Logic:       types.LogicAny,
			Conditions: []types.Condition{
				{Field: "mcmurray_positive", Operator: types.OpEq, Value: true},
				{Field: "effusion_present", Operator: types.OpEq, Value: true},
			},
		},
	}
}

func TestEvaluateAllStandardPass(t *testing.T) {
	facts := types.FactMap{
		"is_workers_compensation": false,
		"acute_trauma":            false,
		"pt_completed":            true,
		"pt_duration_weeks":       float64(8),
		"mcmurray_positive":       true,
	}

	report, err := testEngine().EvaluateAll(facts, mriKneeRules(), Options{})
	require.NoError(t, err)

	assert.True(t, report.AllCriteriaMet)
	assert.False(t, report.Excluded)
	assert.Nil(t, report.ExclusionReason)
	// Unmet exclusions and unused exception pathways do not appear in results.
	assert.Equal(t, 2, report.TotalRules)
	assert.Equal(t, 2, report.RulesMet)
	assert.Equal(t, 0, report.RulesFailed)
	assert.Empty(t, report.ActiveOverrides)
}

func TestEvaluateAllExclusionShortCircuits(t *testing.T) {
	facts := types.FactMap{
		"is_workers_compensation": true,
		"pt_completed":            true,
		"pt_duration_weeks":       float64(8),
		"mcmurray_positive":       true,
	}

	report, err := testEngine().EvaluateAll(facts, mriKneeRules(), Options{})
	require.NoError(t, err)

	assert.True(t, report.Excluded)
	require.NotNil(t, report.ExclusionReason)
	assert.Equal(t, "Workers' compensation claim; submit through the WC review channel", *report.ExclusionReason)
	assert.False(t, report.AllCriteriaMet)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "workers_comp", report.Results[0].RuleID)
	assert.False(t, report.Results[0].Met)
	assert.True(t, report.Results[0].Exclusion)
	assert.Equal(t, 1, report.TotalRules)
	assert.Equal(t, 0, report.RulesMet)
	assert.Equal(t, 1, report.RulesFailed)
}

func TestEvaluateAllExceptionPathwayWaives(t *testing.T) {
	facts := types.FactMap{
		"is_workers_compensation": false,
		"acute_trauma":            true,
		"pt_completed":            false, // conservative care not done, but waived
		"effusion_present":        true,
	}

	report, err := testEngine().EvaluateAll(facts, mriKneeRules(), Options{})
	require.NoError(t, err)

	assert.True(t, report.AllCriteriaMet)
	assert.Equal(t, []string{"conservative_care"}, report.ActiveOverrides)

	var waived *types.RuleResult
	for i := range report.Results {
		if report.Results[i].RuleID == "conservative_care" {
			waived = &report.Results[i]
		}
	}
	require.NotNil(t, waived)
	assert.True(t, waived.Met)
	assert.True(t, waived.Waived)
	assert.Equal(t, "Waived by exception pathway", waived.PatientValue)

	// Waived rules count toward the totals like any met rule.
	assert.Equal(t, 3, report.TotalRules)
	assert.Equal(t, 3, report.RulesMet)
}

func TestEvaluateAllUnmetExceptionDoesNotWaive(t *testing.T) {
	facts := types.FactMap{
		"is_workers_compensation": false,
		"acute_trauma":            false,
		"pt_completed":            false,
		"effusion_present":        true,
	}

	report, err := testEngine().EvaluateAll(facts, mriKneeRules(), Options{})
	require.NoError(t, err)

	assert.False(t, report.AllCriteriaMet)
	assert.Empty(t, report.ActiveOverrides)
	assert.Equal(t, 1, report.RulesFailed) // conservative_care; the unused pathway is not a failure
}

func TestEvaluateAllAdvisoryWarning(t *testing.T) {
	facts := types.FactMap{
		"is_workers_compensation": false,
		"acute_trauma":            false,
		"pt_completed":            true,
		"pt_duration_weeks":       float64(8),
		"mcmurray_positive":       true,
		"imaging_type":            "MRI",
		"imaging_months_ago":      float64(3),
	}

	report, err := testEngine().EvaluateAll(facts, mriKneeRules(), Options{RequestedCPT: "73721"})
	require.NoError(t, err)

	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "repeat_imaging", report.Warnings[0].RuleID)
	assert.Equal(t, "warning", report.Warnings[0].Severity)
	// Warnings never change the outcome.
	assert.True(t, report.AllCriteriaMet)
}

func TestEvaluateAllNoWarningOutsideWindow(t *testing.T) {
	facts := types.FactMap{
		"imaging_type":       "MRI",
		"imaging_months_ago": float64(9),
	}
	report, err := testEngine().EvaluateAll(facts, nil, Options{RequestedCPT: "73721"})
	require.NoError(t, err)
	assert.Empty(t, report.Warnings)
}

func TestEvaluateAllEmptyRuleSet(t *testing.T) {
	report, err := testEngine().EvaluateAll(types.FactMap{}, nil, Options{})
	require.NoError(t, err)

	// No rules means nothing passed, not a vacuous approval.
	assert.False(t, report.AllCriteriaMet)
	assert.Equal(t, 0, report.TotalRules)
	assert.NotNil(t, report.Results)
	assert.NotNil(t, report.ActiveOverrides)
	assert.NotNil(t, report.Warnings)
}

func TestEvaluateAllTooManyRules(t *testing.T) {
	ruleList := make([]types.Rule, types.MaxRulesPerSet+1)
	for i := range ruleList {
		ruleList[i] = types.Rule{
			ID:    "r",
			Logic: types.LogicAll,
			Conditions: []types.Condition{
				{Field: "x", Operator: types.OpEq, Value: true},
			},
		}
	}
	_, err := testEngine().EvaluateAll(types.FactMap{}, ruleList, Options{})
	assert.ErrorIs(t, err, types.ErrTooManyRules)
}

func TestEvaluateAllIdempotent(t *testing.T) {
	facts := types.FactMap{
		"is_workers_compensation": false,
		"acute_trauma":            true,
		"pt_completed":            false,
		"effusion_present":        true,
		"imaging_type":            "MRI",
		"imaging_months_ago":      float64(2),
	}

	eng := testEngine()
	first, err := eng.EvaluateAll(facts, mriKneeRules(), Options{RequestedCPT: "73721"})
	require.NoError(t, err)
	second, err := eng.EvaluateAll(facts, mriKneeRules(), Options{RequestedCPT: "73721"})
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b), "same inputs must serialize identically")
}

func TestEvaluateAllDoesNotMutateFacts(t *testing.T) {
	facts := types.FactMap{"pt_completed": true}
	_, err := testEngine().EvaluateAll(facts, mriKneeRules(), Options{})
	require.NoError(t, err)
	assert.Equal(t, types.FactMap{"pt_completed": true}, facts)
}
