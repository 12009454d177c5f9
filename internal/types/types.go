// Package types provides domain models shared across chartcheck components.
//
// Zero-dependency design: types.go, rules.go, and errors.go use only
// encoding/json so the engine packages stay free of transport and storage
// concerns. ID utilities in ids.go import uuid but are isolated for selective
// inclusion.
package types

import "encoding/json"

// EvaluationID represents a UUIDv7 evaluation identifier.
// String alias enables type safety while maintaining JSON string serialization.
// UUIDv7 time-ordering ensures sequential IDs cluster in B-tree indexes.
type EvaluationID string

// RuleSetID represents a UUIDv7 compiled rule-set identifier.
// String alias enables type safety while maintaining JSON string serialization.
type RuleSetID string

// FactMap is the canonical flat patient fact map the engine consumes.
// Keys are canonical field names (pt_duration_weeks, imaging_months_ago, ...);
// values are JSON scalars or lists. Built once per chart by the normalization
// layer and never mutated during evaluation.
type FactMap map[string]any

// RawDocument is an arbitrary JSON document from an upstream producer
// (evidence extraction, policy compilation, manual entry). json.RawMessage
// wrapper preserves original bytes; shape detection happens in the
// normalization layer, not here.
type RawDocument json.RawMessage

// MarshalJSON implements json.Marshaler.
// Delegates to json.RawMessage to preserve original document bytes unchanged.
func (d RawDocument) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return json.RawMessage(d).MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
// Delegates to json.RawMessage to capture raw bytes without parsing.
func (d *RawDocument) UnmarshalJSON(data []byte) error {
	return (*json.RawMessage)(d).UnmarshalJSON(data)
}

// Resource limits enforced by the engine and normalization layer to prevent
// unbounded work on hostile or malformed input.
const (
	// MaxRawDocumentSize limits raw patient/policy documents to prevent OOM
	// during normalization. 1MB covers any realistic extraction output.
	MaxRawDocumentSize = 1024 * 1024

	// MaxPathDepth prevents stack overflow during recursive path resolution.
	// 16 levels handles deeply nested fact maps without performance degradation.
	MaxPathDepth = 16

	// MaxRulesPerSet limits compiled rule sets. Real payer policies compile to
	// well under 64 rules; 256 leaves headroom without unbounded iteration.
	MaxRulesPerSet = 256

	// MaxConditionsPerRule bounds per-rule evaluation work.
	MaxConditionsPerRule = 64

	// MaxListValues limits list comparands for in/any_in to prevent quadratic
	// comparison cost.
	MaxListValues = 64
)
