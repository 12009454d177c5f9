// internal/rules/engine.go
package rules

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openpa/chartcheck/internal/types"
)

/*
 * Evaluation orchestrator.
 *
 * Runs a rule set against a fact map in four fixed passes:
 *
 *   1. Exclusion rules: a met exclusion short-circuits the evaluation and
 *      returns an excluded report with a single synthetic result.
 *   2. Exception pathways: met exceptions activate their override lists.
 *   3. Standard rules: evaluated normally unless waived by an active
 *      override, in which case they count as met.
 *   4. Advisory checks: repeat-imaging and other warnings that never
 *      change the pass/fail outcome.
 *
 * Each rule evaluates inside a recover guard so one malformed rule cannot
 * take down the whole evaluation; a panicking rule counts as failed.
 */

// Options carries per-evaluation context that is not part of the chart.
type Options struct {
	// RequestedCPT is the procedure code under review, used by advisory
	// checks (repeat imaging). Empty disables CPT-keyed advisories.
	RequestedCPT string
}

// Engine evaluates rule sets. Stateless apart from its logger; safe for
// concurrent use.
type Engine struct {
	log zerolog.Logger
}

// NewEngine returns an engine that logs authoring defects and panics to log.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log}
}

// EvaluateAll runs the full rule set against the fact map and returns the
// aggregate report. The only error is a rule set exceeding MaxRulesPerSet;
// everything else degrades to failed rules inside the report.
func (e *Engine) EvaluateAll(facts types.FactMap, ruleList []types.Rule, opts Options) (types.Report, error) {
	if len(ruleList) > types.MaxRulesPerSet {
		return types.Report{}, types.ErrTooManyRules
	}

	// Pass 1: exclusions short-circuit everything else.
	for _, rule := range ruleList {
		if !rule.Exclusion {
			continue
		}
		result := e.evaluateSafe(facts, rule)
		if !result.Met {
			continue
		}
		reason := rule.ExclusionReason
		if reason == "" {
			reason = fmt.Sprintf("Excluded: %s", rule.Description)
		}
		e.log.Info().Str("rule_id", rule.ID).Str("reason", reason).
			Msg("exclusion rule met, short-circuiting evaluation")
		synthetic := result
		synthetic.Met = false
		synthetic.Exclusion = true
		synthetic.Details = reason
		return types.Report{
			Results:         []types.RuleResult{synthetic},
			AllCriteriaMet:  false,
			TotalRules:      1,
			RulesMet:        0,
			RulesFailed:     1,
			Excluded:        true,
			ExclusionReason: &reason,
			ActiveOverrides: []string{},
			Warnings:        []types.Warning{},
		}, nil
	}

	// Pass 2: exception pathways activate overrides. An unmet exception is an
	// unused alternative route, not a failed criterion, so it is omitted from
	// the results entirely.
	var (
		activeOverrides []string
		overrideSource  = map[string]string{} // waived rule ID -> exception rule ID
		results         []types.RuleResult
	)
	for _, rule := range ruleList {
		if rule.Exclusion || !rule.ExceptionPathway {
			continue
		}
		result := e.evaluateSafe(facts, rule)
		if !result.Met {
			continue
		}
		results = append(results, result)
		for _, id := range rule.Overrides {
			if _, seen := overrideSource[id]; seen {
				continue
			}
			overrideSource[id] = rule.ID
			activeOverrides = append(activeOverrides, id)
		}
	}

	// Pass 3: standard rules, honoring active overrides.
	for _, rule := range ruleList {
		if rule.Exclusion || rule.ExceptionPathway {
			continue
		}
		if excID, waived := overrideSource[rule.ID]; waived {
			results = append(results, types.RuleResult{
				RuleID:       rule.ID,
				Description:  rule.Description,
				Met:          true,
				Logic:        rule.Logic,
				PatientValue: "Waived by exception pathway",
				Details:      fmt.Sprintf("waived by exception pathway %q", excID),
				Waived:       true,
			})
			continue
		}
		results = append(results, e.evaluateSafe(facts, rule))
	}

	// Pass 4: advisory checks.
	warnings := []types.Warning{}
	if w := repeatImagingWarning(facts, opts.RequestedCPT); w != nil {
		warnings = append(warnings, *w)
	}

	report := types.Report{
		Results:         results,
		TotalRules:      len(results),
		ActiveOverrides: activeOverrides,
		ExclusionReason: nil,
		Warnings:        warnings,
	}
	if report.Results == nil {
		report.Results = []types.RuleResult{}
	}
	if report.ActiveOverrides == nil {
		report.ActiveOverrides = []string{}
	}
	for _, r := range results {
		if r.Met {
			report.RulesMet++
		} else {
			report.RulesFailed++
		}
	}
	report.AllCriteriaMet = report.RulesFailed == 0 && report.TotalRules > 0
	return report, nil
}

// evaluateSafe evaluates one rule inside a recover guard. A panicking rule
// counts as failed; the defect is logged, never propagated.
func (e *Engine) evaluateSafe(facts types.FactMap, rule types.Rule) (result types.RuleResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("rule_id", rule.ID).Interface("panic", r).
				Msg("rule evaluation panicked, marking rule failed")
			result = types.RuleResult{
				RuleID:       rule.ID,
				Description:  rule.Description,
				Met:          false,
				Logic:        rule.Logic,
				Exclusion:    rule.Exclusion,
				PatientValue: "Not found in chart",
				Details:      fmt.Sprintf("evaluation error: %v", r),
			}
		}
	}()
	result = EvaluateRule(facts, rule)
	if result.Details != "" && !result.Exclusion {
		e.log.Warn().Str("rule_id", rule.ID).Str("details", result.Details).
			Msg("rule evaluated with authoring defects")
	}
	return result
}
