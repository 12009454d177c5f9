package types

import (
	"time"

	"github.com/google/uuid"
)

// NewEvaluationID generates a UUIDv7 evaluation identifier.
// Time-ordered IDs ensure sequential inserts cluster in B-tree pages.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewEvaluationID() EvaluationID {
	return EvaluationID(uuid.Must(uuid.NewV7()).String())
}

// NewRuleSetID generates a UUIDv7 rule-set identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleSetID() RuleSetID {
	return RuleSetID(uuid.Must(uuid.NewV7()).String())
}

// ParseEvaluationID validates and converts a string to EvaluationID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseEvaluationID(s string) (EvaluationID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return EvaluationID(s), nil
}

// ParseRuleSetID validates and converts a string to RuleSetID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseRuleSetID(s string) (RuleSetID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return RuleSetID(s), nil
}

// EvaluationIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Enables time-based queries without database lookup.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func EvaluationIDTime(id EvaluationID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
