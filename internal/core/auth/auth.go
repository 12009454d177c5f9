// Package auth provides HMAC-based API key authentication for the HTTP API.
package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// tenantIDKey is the context key for storing authenticated tenant ID.
const tenantIDKey = contextKey("tenant_id")

// Queries interface defines database operations needed for authentication.
// Implemented by *db.Queries to allow query loading via LoadQueries().
type Queries interface {
	Get(name string, dest interface{}, args ...interface{}) error
	Exec(name string, args ...interface{}) (sql.Result, error)
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Holds in-memory secret map for O(1) lookup and queries for key verification.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	log     zerolog.Logger
}

// NewAuthenticator creates an authenticator with HMAC secrets and query interface.
func NewAuthenticator(secrets map[string][]byte, queries Queries, log zerolog.Logger) *Authenticator {
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		log:     log,
	}
}

// Authenticate validates an API key and returns the tenant_id on success.
// Returns a specific error for each failure mode.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (string, error) {
	// Parse API key format
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	// O(1) lookup of HMAC secret using secret_id from key format
	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	computedHash := ComputeHMAC(secret, apiKey)

	// Query database by key_hash using named query (unique constraint ensures single result)
	var result struct {
		APIKeyID   string       `db:"api_key_id"`
		TenantID   string       `db:"tenant_id"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}

	err = a.queries.Get("get-api-key-by-hash", &result, computedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("database error: %w", err)
	}

	// Check revocation status
	if result.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	// Update last_used_at if >1 minute since last update
	// 1-minute throttle reduces write amplification for busy clients
	if shouldUpdateLastUsed(result.LastUsedAt) {
		_, _ = a.queries.Exec("update-last-used", time.Now().UTC().Format(time.RFC3339), result.APIKeyID)
	}

	return result.TenantID, nil
}

// shouldUpdateLastUsed implements the 1-minute throttle.
func shouldUpdateLastUsed(lastUsed sql.NullTime) bool {
	if !lastUsed.Valid {
		return true
	}
	return time.Since(lastUsed.Time) > time.Minute
}

// Middleware returns HTTP middleware that authenticates requests via the
// X-Api-Key header and injects the tenant ID into the request context.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-Api-Key")
			if apiKey == "" {
				writeAuthError(w, http.StatusUnauthorized, ErrMissingKey)
				return
			}

			tenantID, err := a.Authenticate(r.Context(), apiKey)
			if err != nil {
				switch {
				case errors.Is(err, ErrKeyRevoked):
					writeAuthError(w, http.StatusForbidden, err)
				case isDatabaseError(err):
					a.log.Error().Err(err).Msg("authentication lookup failed")
					writeAuthError(w, http.StatusServiceUnavailable, errors.New("authentication temporarily unavailable"))
				default:
					writeAuthError(w, http.StatusUnauthorized, err)
				}
				return
			}

			ctx := context.WithValue(r.Context(), tenantIDKey, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isDatabaseError(err error) bool {
	return err != nil && !errors.Is(err, ErrInvalidKeyFormat) &&
		!errors.Is(err, ErrUnknownKey) && !errors.Is(err, ErrInvalidKey) &&
		!errors.Is(err, ErrKeyRevoked)
}

func writeAuthError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// TenantIDFromContext extracts tenant ID from context.
// Returns empty string if not found.
func TenantIDFromContext(ctx context.Context) string {
	if tenantID, ok := ctx.Value(tenantIDKey).(string); ok {
		return tenantID
	}
	return ""
}

// WithTenantID returns a context carrying the tenant ID. Test helper for
// exercising handlers without the middleware.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}
