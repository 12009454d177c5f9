// internal/rules/advisory.go
package rules

import (
	"fmt"
	"strings"

	"github.com/openpa/chartcheck/internal/types"
)

// recentImagingMonths is the window in which a prior study of the same
// modality triggers a repeat-imaging advisory.
const recentImagingMonths = 6

// cptModality maps procedure codes to the imaging modality they order.
// Lower-extremity MRI and CT codes; codes outside this table produce no
// repeat-imaging advisory.
var cptModality = map[string]string{
	"73721": "MRI",
	"73722": "MRI",
	"73723": "MRI",
	"73700": "CT",
	"73701": "CT",
}

// repeatImagingWarning checks whether the chart documents a prior study of
// the same modality as the requested procedure within the recent-imaging
// window. Advisory only: surfaces a duplicate-study flag for the reviewer,
// never blocks the evaluation.
func repeatImagingWarning(facts types.FactMap, requestedCPT string) *types.Warning {
	modality, ok := cptModality[requestedCPT]
	if !ok {
		return nil
	}

	prior, _ := facts["imaging_type"].(string)
	if !strings.EqualFold(strings.TrimSpace(prior), modality) {
		return nil
	}
	monthsAgo, ok := toFloat64(facts["imaging_months_ago"])
	if !ok || monthsAgo >= recentImagingMonths {
		return nil
	}

	return &types.Warning{
		RuleID:      "repeat_imaging",
		Description: "Recent imaging of the same modality",
		Message: fmt.Sprintf("Chart documents %s imaging %g month(s) ago; requested CPT %s orders the same modality",
			modality, monthsAgo, requestedCPT),
		Recommendation: "Confirm a repeat study is clinically warranted and reference the prior study in the request",
		Severity:       "warning",
	}
}
