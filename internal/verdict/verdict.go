// Package verdict maps an evaluation report onto the reviewer-facing
// summary: a verdict label, a readiness score, per-criterion pass/fail
// lines, the gap list, and plain-English next steps.
//
// Pure derivation over the report; thresholds are fixed so the same report
// always yields the same verdict.
package verdict

import (
	"fmt"
	"strings"

	"github.com/openpa/chartcheck/internal/types"
)

// Label is the overall readiness verdict for a chart.
type Label string

const (
	// Excluded means the case is categorically ineligible for this review
	// channel (e.g. workers' compensation).
	Excluded Label = "EXCLUDED"
	// LikelyToApprove means every criterion is met with a high score.
	LikelyToApprove Label = "LIKELY_TO_APPROVE"
	// LikelyToDeny means the chart falls well short.
	LikelyToDeny Label = "LIKELY_TO_DENY"
	// NeedsReview covers everything in between.
	NeedsReview Label = "NEEDS_REVIEW"
)

// Verdict thresholds. A chart approves only with a high score and zero
// failures; it denies below half readiness or with multiple failures.
const (
	approveScore = 80
	denyScore    = 50
	denyFailures = 2
)

// Criterion is one reviewer-facing pass/fail line.
type Criterion struct {
	Criterion string `json:"criterion"`
	Required  string `json:"required"`
	Found     string `json:"found"`
	Status    string `json:"status"` // PASS or FAIL
}

// Summary is the derived readiness summary for one evaluation.
type Summary struct {
	Verdict          Label       `json:"verdict"`
	ReadinessScore   int         `json:"readiness_score"`
	Criteria         []Criterion `json:"criteria"`
	Gaps             []string    `json:"gaps"`
	NextSteps        string      `json:"next_steps"`
	ExceptionApplied *string     `json:"exception_applied"`
}

// Derive builds the readiness summary from an evaluation report.
func Derive(report types.Report) Summary {
	score := readinessScore(report)

	criteria := make([]Criterion, 0, len(report.Results))
	gaps := []string{}
	for _, result := range report.Results {
		status := "FAIL"
		if result.Met {
			status = "PASS"
		} else {
			gap := result.Description
			if gap == "" {
				gap = result.RuleID
			}
			gaps = append(gaps, gap)
		}
		found := result.PatientValue
		if found == "" {
			found = "Not found in chart"
		}
		criteria = append(criteria, Criterion{
			Criterion: result.Description,
			Required:  "Must be documented",
			Found:     found,
			Status:    status,
		})
	}

	var exception *string
	if len(report.ActiveOverrides) > 0 {
		note := fmt.Sprintf("waived: %s", strings.Join(report.ActiveOverrides, ", "))
		exception = &note
	}

	return Summary{
		Verdict:          deriveLabel(score, report.RulesFailed, report.Excluded),
		ReadinessScore:   score,
		Criteria:         criteria,
		Gaps:             gaps,
		NextSteps:        nextSteps(gaps, exception),
		ExceptionApplied: exception,
	}
}

// readinessScore is the percentage of criteria met. Excluded charts score
// zero regardless of what their single synthetic result says.
func readinessScore(report types.Report) int {
	if report.Excluded || report.TotalRules == 0 {
		return 0
	}
	return report.RulesMet * 100 / report.TotalRules
}

func deriveLabel(score, failCount int, excluded bool) Label {
	switch {
	case excluded:
		return Excluded
	case score >= approveScore && failCount == 0:
		return LikelyToApprove
	case score < denyScore || failCount >= denyFailures:
		return LikelyToDeny
	default:
		return NeedsReview
	}
}

// nextSteps produces plain-English guidance keyed off the gap list.
func nextSteps(gaps []string, exception *string) string {
	var step string
	switch len(gaps) {
	case 0:
		return "All criteria met. This chart is ready for PA submission."
	case 1:
		step = "One criterion is unmet. Resolve the item in the gaps list before submitting."
	default:
		step = "Multiple criteria are unmet. Review the gaps list and update the chart before submitting."
	}
	if exception != nil {
		step += fmt.Sprintf(" Note: Exception pathway applied (%s).", *exception)
	}
	return step
}
