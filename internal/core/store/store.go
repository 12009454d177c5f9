// Package store persists compiled rule sets and evaluation audit records.
//
// Thin layer over named queries: callers hand in domain types, the store
// owns JSON encoding, timestamps, and content-addressable ETags. Rule sets
// are keyed by payer and procedure code; the ETag is SHA-256 of the stored
// rules JSON, so identical rule sets always share an ETag.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openpa/chartcheck/internal/types"
)

// Queries is the named-query surface the store needs, implemented by
// *db.Queries.
type Queries interface {
	Get(name string, dest interface{}, args ...interface{}) error
	Select(name string, dest interface{}, args ...interface{}) error
	Exec(name string, args ...interface{}) (sql.Result, error)
}

// Store provides rule-set and evaluation persistence.
type Store struct {
	q Queries
}

// New creates a store over the given query set.
func New(q Queries) *Store {
	return &Store{q: q}
}

// ruleSetRow mirrors the rulesets table.
type ruleSetRow struct {
	RuleSetID string `db:"ruleset_id"`
	Payer     string `db:"payer"`
	CPTCode   string `db:"cpt_code"`
	Rules     string `db:"rules"`
	ETag      string `db:"etag"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

// LoadRuleSet returns the compiled rule set for a payer/procedure-code pair
// along with its ETag. Returns types.ErrRuleSetNotFound when none is stored.
func (s *Store) LoadRuleSet(payer, cptCode string) ([]types.Rule, string, error) {
	var row ruleSetRow
	err := s.q.Get("get-ruleset", &row, payer, cptCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", types.ErrRuleSetNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("load ruleset %s/%s: %w", payer, cptCode, err)
	}

	var rules []types.Rule
	if err := json.Unmarshal([]byte(row.Rules), &rules); err != nil {
		return nil, "", fmt.Errorf("decode ruleset %s/%s: %w", payer, cptCode, err)
	}
	return rules, row.ETag, nil
}

// ETag is the content-addressable tag for an encoded rule list: SHA-256 of
// the rules JSON. Identical rules always share an ETag, stored or inline.
func ETag(encodedRules []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(encodedRules))
}

// SaveRuleSet upserts the rule set for a payer/procedure-code pair and
// returns its ETag. The ruleset_id is preserved across updates; only the
// rules, ETag, and updated_at change.
func (s *Store) SaveRuleSet(payer, cptCode string, rules []types.Rule) (string, error) {
	if len(rules) > types.MaxRulesPerSet {
		return "", types.ErrTooManyRules
	}

	encoded, err := json.Marshal(rules)
	if err != nil {
		return "", fmt.Errorf("encode ruleset %s/%s: %w", payer, cptCode, err)
	}
	etag := ETag(encoded)
	now := timestamp()

	_, err = s.q.Exec("upsert-ruleset",
		string(types.NewRuleSetID()), payer, cptCode, string(encoded), etag, now, now)
	if err != nil {
		return "", fmt.Errorf("save ruleset %s/%s: %w", payer, cptCode, err)
	}
	return etag, nil
}

// EvaluationRecord is one persisted evaluation outcome. The full report is
// stored as JSON for audit; the scalar columns support listing and metrics
// without decoding it.
type EvaluationRecord struct {
	EvaluationID   string `db:"evaluation_id" json:"evaluation_id"`
	TenantID       string `db:"tenant_id" json:"-"`
	Payer          string `db:"payer" json:"payer"`
	CPTCode        string `db:"cpt_code" json:"cpt_code"`
	RuleSetETag    string `db:"ruleset_etag" json:"ruleset_etag"`
	Verdict        string `db:"verdict" json:"verdict"`
	ReadinessScore int    `db:"readiness_score" json:"readiness_score"`
	Excluded       bool   `db:"excluded" json:"excluded"`
	RulesMet       int    `db:"rules_met" json:"rules_met"`
	RulesFailed    int    `db:"rules_failed" json:"rules_failed"`
	Report         string `db:"report" json:"-"`
	CreatedAt      string `db:"created_at" json:"created_at"`
}

// RecordEvaluation persists one evaluation outcome and returns its ID.
func (s *Store) RecordEvaluation(tenantID, payer, cptCode, etag string, report types.Report, verdictLabel string, score int) (types.EvaluationID, error) {
	encoded, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode evaluation report: %w", err)
	}

	id := types.NewEvaluationID()
	_, err = s.q.Exec("insert-evaluation",
		string(id), tenantID, payer, cptCode, etag,
		verdictLabel, score, report.Excluded,
		report.RulesMet, report.RulesFailed,
		string(encoded), timestamp())
	if err != nil {
		return "", fmt.Errorf("record evaluation: %w", err)
	}
	return id, nil
}

// GetEvaluation fetches one evaluation scoped to the tenant that created it.
func (s *Store) GetEvaluation(tenantID string, id types.EvaluationID) (*EvaluationRecord, error) {
	var rec EvaluationRecord
	err := s.q.Get("get-evaluation", &rec, string(id), tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get evaluation %s: %w", id, err)
	}
	return &rec, nil
}

// ListSummary is one row of the recent-evaluations listing.
type ListSummary struct {
	EvaluationID   string `db:"evaluation_id" json:"evaluation_id"`
	Payer          string `db:"payer" json:"payer"`
	CPTCode        string `db:"cpt_code" json:"cpt_code"`
	Verdict        string `db:"verdict" json:"verdict"`
	ReadinessScore int    `db:"readiness_score" json:"readiness_score"`
	CreatedAt      string `db:"created_at" json:"created_at"`
}

// ListRecentEvaluations returns the tenant's most recent evaluations,
// newest first.
func (s *Store) ListRecentEvaluations(tenantID string) ([]ListSummary, error) {
	var rows []ListSummary
	if err := s.q.Select("list-recent-evaluations", &rows, tenantID); err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return rows, nil
}

// timestamp renders UTC time at second precision, matching the RFC3339
// CHECK constraints in the sqlite schema.
func timestamp() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}
