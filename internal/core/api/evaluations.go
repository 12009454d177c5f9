package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openpa/chartcheck/internal/core/auth"
	"github.com/openpa/chartcheck/internal/core/store"
	"github.com/openpa/chartcheck/internal/normalize"
	"github.com/openpa/chartcheck/internal/rules"
	"github.com/openpa/chartcheck/internal/types"
	"github.com/openpa/chartcheck/internal/verdict"
)

// evaluationRequest is the POST /v1/evaluations body. Callers supply either
// a structured patient document or raw chart text; chart text requires a
// configured evidence extractor. An inline policy document bypasses the
// rule-set store for ad-hoc what-if evaluations.
type evaluationRequest struct {
	Payer     string            `json:"payer"`
	CPTCode   string            `json:"cpt_code"`
	Patient   types.RawDocument `json:"patient,omitempty"`
	ChartText string            `json:"chart_text,omitempty"`
	Policy    types.RawDocument `json:"policy,omitempty"`
}

// evaluationResponse is the full evaluation outcome returned to the caller.
type evaluationResponse struct {
	EvaluationID types.EvaluationID `json:"evaluation_id"`
	Payer        string             `json:"payer"`
	CPTCode      string             `json:"cpt_code"`
	RuleSetETag  string             `json:"ruleset_etag"`
	verdict.Summary
	Report         types.Report `json:"report"`
	PolicyWarnings []string     `json:"policy_warnings,omitempty"`
}

// handleCreateEvaluation runs the full readiness check: load the compiled
// rule set, normalize (or extract) the patient document, evaluate, derive
// the verdict, and persist the outcome.
func (s *Service) handleCreateEvaluation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tenantID := auth.TenantIDFromContext(r.Context())
	s.limitBody(w, r)

	var req evaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Payer == "" || req.CPTCode == "" {
		writeError(w, http.StatusBadRequest, "payer and cpt_code are required")
		return
	}
	if len(req.Patient) == 0 && req.ChartText == "" {
		writeError(w, http.StatusBadRequest, "either patient or chart_text is required")
		return
	}

	var (
		ruleList       []types.Rule
		etag           string
		policyWarnings []string
	)
	if len(req.Policy) > 0 {
		// Inline policy: normalize and lint per request, nothing is stored.
		result, err := normalize.NormalizePolicy(req.Policy)
		if err != nil {
			s.metrics.IncrementNormalizeFailure("policy")
			writeError(w, http.StatusUnprocessableEntity, "invalid policy document: "+err.Error())
			return
		}
		issues := rules.Lint(result.Rules, result.Schema)
		if rules.HasErrors(issues) {
			s.metrics.IncrementLintRejection()
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "inline policy rejected by lint",
				"issues": issueStrings(issues),
			})
			return
		}
		encoded, err := json.Marshal(result.Rules)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode compiled rules")
			return
		}
		ruleList = result.Rules
		etag = store.ETag(encoded)
		policyWarnings = result.Warnings
	} else {
		var err error
		ruleList, etag, err = s.store.LoadRuleSet(req.Payer, req.CPTCode)
		if err != nil {
			if errors.Is(err, types.ErrRuleSetNotFound) {
				writeError(w, http.StatusNotFound, "no compiled rule set for payer and cpt_code; publish one first")
				return
			}
			s.log.Error().Err(err).Msg("rule set load failed")
			writeError(w, http.StatusServiceUnavailable, "rule set storage unavailable")
			return
		}
	}

	raw := req.Patient
	if len(raw) == 0 {
		if s.extractor == nil {
			writeError(w, http.StatusUnprocessableEntity, "chart_text requires an evidence extractor; submit a structured patient document")
			return
		}
		extracted, err := s.extractor.Extract(r.Context(), req.ChartText)
		if err != nil {
			s.log.Error().Err(err).Msg("evidence extraction failed")
			writeError(w, http.StatusUnprocessableEntity, "failed to extract clinical evidence from the chart")
			return
		}
		raw = extracted
	}

	facts, err := normalize.NormalizePatient(raw)
	if err != nil {
		s.metrics.IncrementNormalizeFailure("patient")
		writeError(w, http.StatusUnprocessableEntity, "invalid patient document: "+err.Error())
		return
	}

	report, err := s.engine.EvaluateAll(facts, ruleList, rules.Options{RequestedCPT: req.CPTCode})
	if err != nil {
		s.log.Error().Err(err).Str("payer", req.Payer).Str("cpt_code", req.CPTCode).
			Msg("evaluation failed")
		writeError(w, http.StatusInternalServerError, "failed to evaluate chart against policy rules")
		return
	}
	summary := verdict.Derive(report)

	id, err := s.store.RecordEvaluation(tenantID, req.Payer, req.CPTCode, etag,
		report, string(summary.Verdict), summary.ReadinessScore)
	if err != nil {
		s.log.Error().Err(err).Msg("evaluation persistence failed")
		writeError(w, http.StatusServiceUnavailable, "evaluation storage unavailable")
		return
	}

	s.appendAudit(auditEntry{
		EvaluationID:   string(id),
		TenantID:       tenantID,
		Payer:          req.Payer,
		CPTCode:        req.CPTCode,
		Verdict:        string(summary.Verdict),
		ReadinessScore: summary.ReadinessScore,
		Excluded:       report.Excluded,
	})

	s.metrics.IncrementVerdict(string(summary.Verdict), req.Payer)
	s.metrics.ObserveEvaluateLatency(time.Since(start))
	s.log.Info().Str("evaluation_id", string(id)).Str("payer", req.Payer).
		Str("cpt_code", req.CPTCode).Str("verdict", string(summary.Verdict)).
		Int("readiness_score", summary.ReadinessScore).Msg("evaluation completed")

	writeJSON(w, http.StatusOK, evaluationResponse{
		EvaluationID:   id,
		Payer:          req.Payer,
		CPTCode:        req.CPTCode,
		RuleSetETag:    etag,
		Summary:        summary,
		Report:         report,
		PolicyWarnings: policyWarnings,
	})
}

// handleGetEvaluation returns one stored evaluation, scoped to the caller's
// tenant.
func (s *Service) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantIDFromContext(r.Context())

	id, err := types.ParseEvaluationID(chi.URLParam(r, "evaluationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid evaluation id")
		return
	}

	rec, err := s.store.GetEvaluation(tenantID, id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "evaluation not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("evaluation lookup failed")
		writeError(w, http.StatusServiceUnavailable, "evaluation storage unavailable")
		return
	}

	var report types.Report
	if err := json.Unmarshal([]byte(rec.Report), &report); err != nil {
		s.log.Error().Err(err).Str("evaluation_id", string(id)).Msg("stored report corrupt")
		writeError(w, http.StatusInternalServerError, "stored evaluation is unreadable")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		*store.EvaluationRecord
		Report types.Report `json:"report"`
	}{rec, report})
}

// handleListEvaluations returns the tenant's recent evaluations.
func (s *Service) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantIDFromContext(r.Context())

	summaries, err := s.store.ListRecentEvaluations(tenantID)
	if err != nil {
		s.log.Error().Err(err).Msg("evaluation listing failed")
		writeError(w, http.StatusServiceUnavailable, "evaluation storage unavailable")
		return
	}
	if summaries == nil {
		summaries = []store.ListSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"evaluations": summaries})
}
