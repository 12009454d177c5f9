package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openpa/chartcheck/internal/types"
)

func validRule(id string) types.Rule {
	return types.Rule{
		ID:    id,
		Logic: types.LogicAll,
		Conditions: []types.Condition{
			{Field: "pt_completed", Operator: types.OpEq, Value: true},
		},
	}
}

func findIssue(issues []Issue, severity, ruleID string) *Issue {
	for i := range issues {
		if issues[i].Severity == severity && issues[i].RuleID == ruleID {
			return &issues[i]
		}
	}
	return nil
}

func TestLintCleanSet(t *testing.T) {
	issues := Lint([]types.Rule{validRule("a"), validRule("b")}, nil)
	assert.Empty(t, issues)
	assert.False(t, HasErrors(issues))
}

func TestLintDuplicateIDs(t *testing.T) {
	issues := Lint([]types.Rule{validRule("a"), validRule("a")}, nil)
	assert.NotNil(t, findIssue(issues, SeverityError, "a"))
	assert.True(t, HasErrors(issues))
}

func TestLintMissingID(t *testing.T) {
	r := validRule("")
	issues := Lint([]types.Rule{r}, nil)
	assert.True(t, HasErrors(issues))
}

func TestLintUnknownOperatorAndLogic(t *testing.T) {
	r := validRule("a")
	r.Logic = types.Logic("most")
	r.Conditions[0].Operator = types.Operator("regex")
	issues := Lint([]types.Rule{r}, nil)

	assert.True(t, HasErrors(issues))
	assert.Len(t, issues, 2)
}

func TestLintEmptyConditions(t *testing.T) {
	r := validRule("a")
	r.Conditions = nil
	issues := Lint([]types.Rule{r}, nil)
	assert.True(t, HasErrors(issues))
}

func TestLintThresholds(t *testing.T) {
	t.Run("count logic requires threshold", func(t *testing.T) {
		r := validRule("a")
		r.Logic = types.LogicCountGte
		assert.True(t, HasErrors(Lint([]types.Rule{r}, nil)))
	})

	t.Run("count_gte zero threshold warns", func(t *testing.T) {
		r := validRule("a")
		r.Logic = types.LogicCountGte
		r.Threshold = intPtr(0)
		issues := Lint([]types.Rule{r}, nil)
		assert.False(t, HasErrors(issues))
		assert.NotNil(t, findIssue(issues, SeverityWarning, "a"))
	})

	t.Run("count_gte threshold above condition count errors", func(t *testing.T) {
		r := validRule("a")
		r.Logic = types.LogicCountGte
		r.Threshold = intPtr(5)
		assert.True(t, HasErrors(Lint([]types.Rule{r}, nil)))
	})

	t.Run("count_lte trivially met warns", func(t *testing.T) {
		r := validRule("a")
		r.Logic = types.LogicCountLte
		r.Threshold = intPtr(1)
		issues := Lint([]types.Rule{r}, nil)
		assert.False(t, HasErrors(issues))
		assert.NotNil(t, findIssue(issues, SeverityWarning, "a"))
	})

	t.Run("threshold on all logic warns", func(t *testing.T) {
		r := validRule("a")
		r.Threshold = intPtr(1)
		issues := Lint([]types.Rule{r}, nil)
		assert.False(t, HasErrors(issues))
		assert.NotNil(t, findIssue(issues, SeverityWarning, "a"))
	})
}

func TestLintOverrides(t *testing.T) {
	t.Run("override of unknown rule errors", func(t *testing.T) {
		exc := validRule("exc")
		exc.ExceptionPathway = true
		exc.Overrides = []string{"missing"}
		assert.True(t, HasErrors(Lint([]types.Rule{exc}, nil)))
	})

	t.Run("override of existing rule is clean", func(t *testing.T) {
		exc := validRule("exc")
		exc.ExceptionPathway = true
		exc.Overrides = []string{"std"}
		issues := Lint([]types.Rule{exc, validRule("std")}, nil)
		assert.Empty(t, issues)
	})

	t.Run("exception without overrides warns", func(t *testing.T) {
		exc := validRule("exc")
		exc.ExceptionPathway = true
		issues := Lint([]types.Rule{exc}, nil)
		assert.False(t, HasErrors(issues))
		assert.NotNil(t, findIssue(issues, SeverityWarning, "exc"))
	})

	t.Run("self-override warns", func(t *testing.T) {
		exc := validRule("exc")
		exc.ExceptionPathway = true
		exc.Overrides = []string{"exc"}
		issues := Lint([]types.Rule{exc}, nil)
		assert.NotNil(t, findIssue(issues, SeverityWarning, "exc"))
	})

	t.Run("exclusion with overrides warns", func(t *testing.T) {
		excl := validRule("excl")
		excl.Exclusion = true
		excl.Overrides = []string{"std"}
		issues := Lint([]types.Rule{excl, validRule("std")}, nil)
		assert.False(t, HasErrors(issues))
		assert.NotNil(t, findIssue(issues, SeverityWarning, "excl"))
	})
}

func TestLintListComparands(t *testing.T) {
	t.Run("in without list errors", func(t *testing.T) {
		r := validRule("a")
		r.Conditions[0].Operator = types.OpIn
		r.Conditions[0].Value = "knee"
		assert.True(t, HasErrors(Lint([]types.Rule{r}, nil)))
	})

	t.Run("oversized list warns", func(t *testing.T) {
		vals := make([]any, types.MaxListValues+1)
		for i := range vals {
			vals[i] = float64(i)
		}
		r := validRule("a")
		r.Conditions[0].Operator = types.OpAnyIn
		r.Conditions[0].Value = vals
		issues := Lint([]types.Rule{r}, nil)
		assert.False(t, HasErrors(issues))
		assert.NotNil(t, findIssue(issues, SeverityWarning, "a"))
	})
}

func TestLintSchema(t *testing.T) {
	t.Run("field outside schema errors", func(t *testing.T) {
		issues := Lint([]types.Rule{validRule("a")}, []string{"imaging_type"})
		assert.True(t, HasErrors(issues))
		assert.NotNil(t, findIssue(issues, SeverityError, "a"))
	})

	t.Run("orphan schema field warns", func(t *testing.T) {
		issues := Lint([]types.Rule{validRule("a")}, []string{"pt_completed", "imaging_type"})
		assert.False(t, HasErrors(issues))
		assert.NotNil(t, findIssue(issues, SeverityWarning, ""))
	})

	t.Run("dotted paths check the root segment", func(t *testing.T) {
		r := validRule("a")
		r.Conditions[0].Field = "pt_completed.documented"
		issues := Lint([]types.Rule{r}, []string{"pt_completed"})
		assert.Empty(t, issues)
	})

	t.Run("nil schema skips the checks", func(t *testing.T) {
		assert.Empty(t, Lint([]types.Rule{validRule("a")}, nil))
	})
}
