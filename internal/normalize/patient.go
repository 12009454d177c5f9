// internal/normalize/patient.go
package normalize

import (
	"strings"

	"github.com/openpa/chartcheck/internal/types"
)

/*
 * Chart document normalization.
 *
 * Flattens any recognized chart shape into the canonical fact map:
 * symptom duration (with months/weeks conversion), conservative therapy
 * (PT, NSAIDs, injections), imaging (with modality canonicalization and
 * days-to-months conversion), functional impairment, extracted clinical
 * indication, claim context, and extraction-quality metadata.
 *
 * Every fact gets an explicit value or an explicit nil; the engine's
 * missing-value semantics rely on absent facts resolving to nil, and the
 * normalizer never fails on sparse data.
 */

// failedOutcomes are the free-text outcome values that count as a failed
// treatment trial.
var failedOutcomes = map[string]struct{}{
	"failed":       {},
	"no relief":    {},
	"unsuccessful": {},
	"ineffective":  {},
}

// NormalizePatient flattens a raw chart document into the canonical fact
// map. Pre-normalized documents pass through unchanged. Sparse documents
// normalize to sparse fact maps, never to errors; the only errors are
// oversized or syntactically invalid JSON.
func NormalizePatient(raw types.RawDocument) (types.FactMap, error) {
	doc, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	switch DetectPatientShape(doc) {
	case PatientShapePreNormalized:
		facts := types.FactMap(getMap(doc, "normalized_data"))
		if facts == nil {
			facts = types.FactMap{}
		}
		return facts, nil
	case PatientShapeWrapped:
		return normalizeChart(getMap(doc, "requirements"), doc), nil
	default:
		return normalizeChart(doc, doc), nil
	}
}

// normalizeChart builds the fact map from the clinical fields in source and
// the envelope fields (score, filename, ...) in envelope. For the flat shape
// both are the same object.
func normalizeChart(source, envelope map[string]any) types.FactMap {
	if source == nil {
		source = map[string]any{}
	}
	facts := types.FactMap{}

	normalizeSymptomDuration(source, facts)
	normalizeConservativeTherapy(source, facts)
	normalizeImaging(source, facts)

	functional := getMap(source, "functional_impairment")
	facts["functional_impairment_documented"] = getBool(functional, "documented")
	facts["functional_impairment_description"] = orNil(functional, "description")

	notes := getStrings(source, "evidence_notes")
	if indication := ExtractIndication(notes); indication != "" {
		facts["clinical_indication"] = indication
	} else {
		facts["clinical_indication"] = nil
	}
	facts["evidence_notes"] = toAnySlice(notes)

	normalizeClaimContext(source, facts)

	metadata := getMap(source, "_metadata")
	facts["validation_passed"] = getBool(metadata, "validation_passed")
	if n := getNumber(metadata, "hallucinations_detected"); n != nil {
		facts["hallucinations_detected"] = *n
	} else {
		facts["hallucinations_detected"] = float64(0)
	}

	facts["score"] = orNil(envelope, "score")
	facts["filename"] = orNil(envelope, "filename")
	facts["timestamp"] = orNil(envelope, "timestamp")
	if items, ok := envelope["missing_items"].([]any); ok {
		facts["missing_items"] = items
	} else {
		facts["missing_items"] = []any{}
	}

	return facts
}

// normalizeSymptomDuration records duration in both months and weeks,
// converting whichever unit the producer supplied.
func normalizeSymptomDuration(source map[string]any, facts types.FactMap) {
	months := getNumber(source, "symptom_duration_months")
	weeks := getNumber(source, "symptom_duration_weeks")
	switch {
	case months != nil:
		facts["symptom_duration_months"] = *months
		facts["symptom_duration_weeks"] = *months * 4
	case weeks != nil:
		facts["symptom_duration_weeks"] = *weeks
		facts["symptom_duration_months"] = *weeks / 4
	default:
		facts["symptom_duration_months"] = nil
		facts["symptom_duration_weeks"] = nil
	}
}

func normalizeConservativeTherapy(source map[string]any, facts types.FactMap) {
	conservative := getMap(source, "conservative_therapy")

	pt := getMap(conservative, "physical_therapy")
	facts["pt_attempted"] = getBool(pt, "attempted")
	facts["pt_duration_weeks"] = firstNumber(pt, "duration_weeks", "weeks", "duration")
	facts["pt_sessions"] = firstNumber(pt, "sessions", "session_count")

	normalizeTreatmentTrial(getMap(conservative, "nsaids"), facts, "nsaid")
	normalizeTreatmentTrial(getMap(conservative, "injections"), facts, "injection")
}

// normalizeTreatmentTrial records documented/outcome/failed facts for one
// treatment under the given fact prefix.
func normalizeTreatmentTrial(trial map[string]any, facts types.FactMap, prefix string) {
	facts[prefix+"_documented"] = getBool(trial, "documented")
	outcome := getString(trial, "outcome")
	if outcome != "" {
		facts[prefix+"_outcome"] = outcome
	} else {
		facts[prefix+"_outcome"] = nil
	}
	_, failed := failedOutcomes[strings.ToLower(strings.TrimSpace(outcome))]
	facts[prefix+"_failed"] = failed
}

func normalizeImaging(source map[string]any, facts types.FactMap) {
	imaging := getMap(source, "imaging")
	facts["imaging_documented"] = getBool(imaging, "documented")
	facts["imaging_type"] = canonicalModality(getString(imaging, "type"))
	facts["imaging_body_part"] = orNil(imaging, "body_part")

	monthsAgo := getNumber(imaging, "months_ago")
	if monthsAgo == nil {
		if daysAgo := getNumber(imaging, "days_ago"); daysAgo != nil {
			converted := *daysAgo / 30
			monthsAgo = &converted
		}
	}
	if monthsAgo != nil {
		facts["imaging_months_ago"] = *monthsAgo
	} else {
		facts["imaging_months_ago"] = nil
	}
}

// canonicalModality folds the producer's free-text imaging type onto the
// canonical modality names. Unrecognized types pass through as-is.
func canonicalModality(raw string) any {
	if raw == "" {
		return nil
	}
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "x-ray"), strings.Contains(lower, "xray"):
		return "X-ray"
	case strings.Contains(lower, "mri"):
		return "MRI"
	case strings.Contains(lower, "ct"):
		return "CT"
	default:
		return raw
	}
}

// normalizeClaimContext records whether the chart belongs to a workers'
// compensation claim, from an explicit flag or the claim type text. Older
// extractors shipped the flag as is_workers_comp; both spellings are read,
// the canonical fact is always is_workers_compensation.
func normalizeClaimContext(source map[string]any, facts types.FactMap) {
	for _, key := range []string{"is_workers_compensation", "is_workers_comp"} {
		if flag, ok := source[key].(bool); ok {
			facts["is_workers_compensation"] = flag
			return
		}
	}
	claimType := strings.ToLower(getString(source, "claim_type"))
	facts["is_workers_compensation"] = strings.Contains(claimType, "workers")
}

// orNil returns the raw value for key, or explicit nil when absent, so the
// fact map always carries the key.
func orNil(doc map[string]any, key string) any {
	if doc == nil {
		return nil
	}
	v, ok := doc[key]
	if !ok {
		return nil
	}
	return v
}

// firstNumber returns the first numeric value among the given keys, or nil.
// Producers have used several names for the same measurement.
func firstNumber(doc map[string]any, keys ...string) any {
	for _, key := range keys {
		if n := getNumber(doc, key); n != nil {
			return *n
		}
	}
	return nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
