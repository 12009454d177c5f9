package api

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// auditEntry is one line in the daily audit file.
type auditEntry struct {
	EvaluationID   string `json:"evaluation_id"`
	TenantID       string `json:"tenant_id"`
	Payer          string `json:"payer"`
	CPTCode        string `json:"cpt_code"`
	Verdict        string `json:"verdict"`
	ReadinessScore int    `json:"readiness_score"`
	Excluded       bool   `json:"excluded"`
	RecordedAt     string `json:"recorded_at"`
}

// appendAudit writes the entry to the current day's JSONL file.
// Best-effort debugging aid, not authoritative; the database is the source
// of truth. Failures are logged and otherwise ignored.
func (s *Service) appendAudit(entry auditEntry) {
	now := time.Now().UTC()
	entry.RecordedAt = now.Format(time.RFC3339)
	filename := filepath.Join(s.cfg.DataDir, "audit", now.Format("2006-01-02.jsonl"))

	mu := s.getJSONLMutex(filename)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		s.log.Warn().Err(err).Str("file", filename).Msg("audit append failed")
		return
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(entry); err != nil {
		s.log.Warn().Err(err).Str("file", filename).Msg("audit encode failed")
	}
}
