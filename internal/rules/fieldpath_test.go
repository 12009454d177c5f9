package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/openpa/chartcheck/internal/types"
)

func TestResolve(t *testing.T) {
	facts := types.FactMap{
		"pt_completed": true,
		"conservative_tx": map[string]any{
			"pt": map[string]any{
				"duration_weeks": float64(8),
			},
		},
		"prior_studies": []any{
			map[string]any{"modality": "MRI"},
			map[string]any{"modality": "CT"},
		},
		"2023": "numeric-string key",
	}

	tests := []struct {
		name string
		path string
		want any
	}{
		{"top level", "pt_completed", true},
		{"nested map", "conservative_tx.pt.duration_weeks", float64(8)},
		{"list index", "prior_studies.1.modality", "CT"},
		{"missing top level", "nope", nil},
		{"missing intermediate", "conservative_tx.ot.duration_weeks", nil},
		{"index out of range", "prior_studies.5.modality", nil},
		{"index into map key", "2023", "numeric-string key"},
		{"traverse into scalar", "pt_completed.deeper", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(facts, tt.path)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestResolveDepthLimit(t *testing.T) {
	path := strings.Repeat("a.", types.MaxPathDepth) + "a"
	_, err := Resolve(types.FactMap{}, path)
	if !errors.Is(err, types.ErrPathTooDeep) {
		t.Fatalf("Resolve() error = %v, want ErrPathTooDeep", err)
	}
}

// genPathKey generates map keys that survive dotted-path parsing: non-empty
// lowercase identifiers, never purely numeric.
func genPathKey() gopter.Gen {
	return gen.RegexMatch(`[a-z][a-z0-9_]{0,7}`)
}

func TestResolveProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("nesting a leaf along generated keys round-trips", prop.ForAll(
		func(keys []string, leaf int) bool {
			if len(keys) == 0 || len(keys) > types.MaxPathDepth {
				return true
			}
			// Build the nested map inside-out.
			var node any = float64(leaf)
			for i := len(keys) - 1; i >= 1; i-- {
				node = map[string]any{keys[i]: node}
			}
			facts := types.FactMap{keys[0]: node}
			got, err := Resolve(facts, strings.Join(keys, "."))
			return err == nil && got == float64(leaf)
		},
		gen.SliceOf(genPathKey()),
		gen.Int(),
	))

	properties.Property("paths into an empty fact map resolve to nil", prop.ForAll(
		func(keys []string) bool {
			if len(keys) == 0 || len(keys) > types.MaxPathDepth {
				return true
			}
			got, err := Resolve(types.FactMap{}, strings.Join(keys, "."))
			return err == nil && got == nil
		},
		gen.SliceOf(genPathKey()),
	))

	properties.Property("resolution never mutates the fact map", prop.ForAll(
		func(key string, value int) bool {
			facts := types.FactMap{key: float64(value)}
			_, _ = Resolve(facts, key+".missing.deeper")
			stored, ok := facts[key]
			return ok && stored == float64(value) && len(facts) == 1
		},
		genPathKey(),
		gen.Int(),
	))

	properties.TestingRun(t)
}
