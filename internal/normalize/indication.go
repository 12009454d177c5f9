// internal/normalize/indication.go
package normalize

import "strings"

// indicationEntry maps a canonical clinical indication to the keywords that
// identify it in free-text evidence notes or payer policy language.
type indicationEntry struct {
	canonical string
	keywords  []string
}

// indicationTable is ordered by priority: the first entry whose keywords
// match wins. Specific diagnoses rank above generic findings so "torn
// meniscus with catching" classifies as a meniscal tear, not mechanical
// symptoms.
var indicationTable = []indicationEntry{
	{"meniscal tear", []string{"meniscal tear", "meniscus tear", "torn meniscus", "meniscus"}},
	{"mechanical symptoms", []string{"mechanical", "catching", "locking", "clicking", "popping"}},
	{"ligament rupture", []string{"acl", "pcl", "mcl", "lcl", "ligament", "cruciate", "collateral"}},
	{"instability", []string{"instability", "giving way", "unstable"}},
	{"traumatic injury", []string{"trauma", "traumatic", "acute injury", "fall", "accident"}},
	{"positive mcmurray", []string{"mcmurray", "thessaly", "apley"}},
	{"post-operative", []string{"post-op", "post-surgical", "post surgery", "postoperative"}},
	{"red flag", []string{"infection", "tumor", "fracture", "cancer", "septic"}},
}

// ExtractIndication scans free-text evidence notes for the first canonical
// clinical indication. Returns "" when nothing matches; the engine's missing
// value semantics handle the absence.
func ExtractIndication(notes []string) string {
	text := strings.ToLower(strings.Join(notes, " "))
	if text == "" {
		return ""
	}
	for _, entry := range indicationTable {
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				return entry.canonical
			}
		}
	}
	return ""
}

// CanonicalIndications maps payer policy indication phrases onto the
// canonical vocabulary, dropping phrases that match nothing and preserving
// first-seen order without duplicates. Policy text and chart text must land
// on the same vocabulary or the in-operator can never match.
func CanonicalIndications(phrases []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, phrase := range phrases {
		canonical := ExtractIndication([]string{phrase})
		if canonical == "" {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}
