// internal/rules/fieldpath.go
package rules

import (
	"strconv"
	"strings"

	"github.com/openpa/chartcheck/internal/types"
)

/*
 * Dotted field path resolution against a fact map.
 *
 * Paths like "conservative_tx.pt.duration_weeks" or "prior_studies.0.modality"
 * traverse nested maps and lists. Numeric segments index into lists.
 *
 * Missing data is not an error: a path that leads nowhere resolves to nil,
 * and the comparator's nil semantics take over (fail closed). The only
 * resolution error is ErrPathTooDeep, a guard against authoring mistakes
 * and hostile input rather than a data condition.
 */

// pathSegment is one step of a parsed field path.
type pathSegment struct {
	key     string
	index   int
	isIndex bool
}

// parsePath splits a dotted path into segments, recognizing non-negative
// integer segments as list indices.
func parsePath(path string) []pathSegment {
	parts := strings.Split(path, ".")
	segs := make([]pathSegment, 0, len(parts))
	for _, p := range parts {
		if idx, err := strconv.Atoi(p); err == nil && idx >= 0 {
			segs = append(segs, pathSegment{index: idx, isIndex: true})
			continue
		}
		segs = append(segs, pathSegment{key: p})
	}
	return segs
}

// Resolve walks a dotted field path through the fact map. A missing key,
// out-of-range index, or traversal into a scalar resolves to nil; only a
// path deeper than MaxPathDepth is an error.
func Resolve(facts types.FactMap, path string) (any, error) {
	segs := parsePath(path)
	if len(segs) > types.MaxPathDepth {
		return nil, types.ErrPathTooDeep
	}

	var current any = map[string]any(facts)
	for _, seg := range segs {
		if current == nil {
			return nil, nil
		}
		switch node := current.(type) {
		case map[string]any:
			if seg.isIndex {
				// Maps with numeric string keys occur in hand-built fact
				// maps; honor them before treating the segment as an index.
				v, ok := node[strconv.Itoa(seg.index)]
				if !ok {
					return nil, nil
				}
				current = v
				continue
			}
			v, ok := node[seg.key]
			if !ok {
				return nil, nil
			}
			current = v
		case types.FactMap:
			v, ok := node[segmentKey(seg)]
			if !ok {
				return nil, nil
			}
			current = v
		case []any:
			if !seg.isIndex || seg.index >= len(node) {
				return nil, nil
			}
			current = node[seg.index]
		default:
			// Scalar reached before the path ended.
			return nil, nil
		}
	}
	return current, nil
}

func segmentKey(seg pathSegment) string {
	if seg.isIndex {
		return strconv.Itoa(seg.index)
	}
	return seg.key
}
