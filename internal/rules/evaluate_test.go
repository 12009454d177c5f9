package rules

import (
	"strings"
	"testing"

	"github.com/openpa/chartcheck/internal/types"
)

func intPtr(v int) *int { return &v }

func TestEvaluateRuleLogic(t *testing.T) {
	facts := types.FactMap{
		"pt_completed":      true,
		"pt_duration_weeks": float64(8),
		"nsaids_tried":      false,
		"injection_tried":   true,
	}

	conds := []types.Condition{
		{Field: "pt_completed", Operator: types.OpEq, Value: true},
		{Field: "nsaids_tried", Operator: types.OpEq, Value: true},
		{Field: "injection_tried", Operator: types.OpEq, Value: true},
	}

	tests := []struct {
		name      string
		logic     types.Logic
		threshold *int
		want      bool
	}{
		{"all fails with one unmet", types.LogicAll, nil, false},
		{"any passes with one met", types.LogicAny, nil, true},
		{"count_gte 2 passes", types.LogicCountGte, intPtr(2), true},
		{"count_gte 3 fails", types.LogicCountGte, intPtr(3), false},
		{"count_gte 0 trivially passes", types.LogicCountGte, intPtr(0), true},
		{"count_lte 2 passes", types.LogicCountLte, intPtr(2), true},
		{"count_lte 1 fails", types.LogicCountLte, intPtr(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := types.Rule{
				ID:         "r1",
				Logic:      tt.logic,
				Threshold:  tt.threshold,
				Conditions: conds,
			}
			result := EvaluateRule(facts, rule)
			if result.Met != tt.want {
				t.Errorf("Met = %v, want %v (details: %s)", result.Met, tt.want, result.Details)
			}
			if len(result.ConditionDetails) != len(conds) {
				t.Errorf("ConditionDetails = %d entries, want %d", len(result.ConditionDetails), len(conds))
			}
		})
	}
}

func TestEvaluateRuleAllConditionsMet(t *testing.T) {
	facts := types.FactMap{"pt_completed": true, "pt_duration_weeks": float64(8)}
	rule := types.Rule{
		ID:    "conservative_care",
		Logic: types.LogicAll,
		Conditions: []types.Condition{
			{Field: "pt_completed", Operator: types.OpEq, Value: true},
			{Field: "pt_duration_weeks", Operator: types.OpGte, Value: float64(6)},
		},
	}

	result := EvaluateRule(facts, rule)
	if !result.Met {
		t.Fatalf("Met = false, want true (details: %s)", result.Details)
	}
	if result.Details != "" {
		t.Errorf("Details = %q, want empty", result.Details)
	}
}

func TestEvaluateRuleFailsClosed(t *testing.T) {
	t.Run("no conditions", func(t *testing.T) {
		result := EvaluateRule(types.FactMap{}, types.Rule{ID: "empty", Logic: types.LogicAll})
		if result.Met {
			t.Error("rule with no conditions must not be met")
		}
		if result.Details == "" {
			t.Error("expected details explaining the defect")
		}
	})

	t.Run("count logic without threshold", func(t *testing.T) {
		rule := types.Rule{
			ID:    "r1",
			Logic: types.LogicCountGte,
			Conditions: []types.Condition{
				{Field: "pt_completed", Operator: types.OpEq, Value: true},
			},
		}
		result := EvaluateRule(types.FactMap{"pt_completed": true}, rule)
		if result.Met {
			t.Error("count_gte without threshold must not be met")
		}
		if !strings.Contains(result.Details, "threshold") {
			t.Errorf("Details = %q, want mention of threshold", result.Details)
		}
	})

	t.Run("unknown operator", func(t *testing.T) {
		rule := types.Rule{
			ID:    "r1",
			Logic: types.LogicAll,
			Conditions: []types.Condition{
				{Field: "pt_completed", Operator: types.Operator("regex"), Value: "x"},
			},
		}
		result := EvaluateRule(types.FactMap{"pt_completed": true}, rule)
		if result.Met {
			t.Error("unknown operator must fail the condition")
		}
		if !strings.Contains(result.Details, "unknown comparison operator") {
			t.Errorf("Details = %q, want unknown operator mention", result.Details)
		}
	})

	t.Run("unknown logic", func(t *testing.T) {
		rule := types.Rule{
			ID:    "r1",
			Logic: types.Logic("most"),
			Conditions: []types.Condition{
				{Field: "pt_completed", Operator: types.OpEq, Value: true},
			},
		}
		result := EvaluateRule(types.FactMap{"pt_completed": true}, rule)
		if result.Met {
			t.Error("unknown logic must not be met")
		}
	})
}

func TestEvaluateRulePatientValueSummary(t *testing.T) {
	facts := types.FactMap{
		"pt_completed": true,
		"indications":  []any{"osteoarthritis", "meniscal tear"},
	}
	rule := types.Rule{
		ID:    "r1",
		Logic: types.LogicAll,
		Conditions: []types.Condition{
			{Field: "pt_completed", Operator: types.OpEq, Value: true},
			{Field: "indications", Operator: types.OpAnyIn, Value: []any{"osteoarthritis"}},
			{Field: "mri_contraindication", Operator: types.OpEq, Value: false},
		},
	}

	result := EvaluateRule(facts, rule)
	// Only values present in the chart are summarized; the missing
	// mri_contraindication fact shows up in the condition detail only.
	want := "Yes; osteoarthritis, meniscal tear"
	if result.PatientValue != want {
		t.Errorf("PatientValue = %q, want %q", result.PatientValue, want)
	}
	if !result.Met {
		t.Errorf("Met = false, want true: nil fact satisfies eq false")
	}
}

func TestEvaluateRuleAllFactsMissing(t *testing.T) {
	rule := types.Rule{
		ID:    "r1",
		Logic: types.LogicAll,
		Conditions: []types.Condition{
			{Field: "pt_attempted", Operator: types.OpEq, Value: true},
			{Field: "imaging_documented", Operator: types.OpEq, Value: true},
		},
	}

	result := EvaluateRule(types.FactMap{}, rule)
	if result.PatientValue != "Not found in chart" {
		t.Errorf("PatientValue = %q, want %q", result.PatientValue, "Not found in chart")
	}
	if result.Met {
		t.Error("rule over an empty chart must not be met")
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "Not found in chart"},
		{true, "Yes"},
		{false, "No"},
		{"knee pain", "knee pain"},
		{float64(8), "8"},
		{float64(2.5), "2.5"},
		{[]any{"a", true, float64(3)}, "a, Yes, 3"},
		{[]string{"a", "b"}, "a, b"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
