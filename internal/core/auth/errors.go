package auth

import "errors"

// Authentication error types enable the tiered error taxonomy.
// 401 for missing/invalid (doesn't confirm key existence).
// 403 for revoked (confirms key exists but blocked).
var (
	ErrMissingKey       = errors.New("API key required in X-Api-Key header")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
)
