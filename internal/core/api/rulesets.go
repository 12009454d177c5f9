package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openpa/chartcheck/internal/normalize"
	"github.com/openpa/chartcheck/internal/rules"
	"github.com/openpa/chartcheck/internal/types"
)

// ruleSetResponse is returned on publish and on fetch. Issues carries lint
// findings: on rejection the errors that blocked the publish, otherwise the
// warnings that did not. Warnings carries normalization notes (dropped
// entries, unmapped criteria text).
type ruleSetResponse struct {
	Payer     string       `json:"payer"`
	CPTCode   string       `json:"cpt_code"`
	ETag      string       `json:"etag,omitempty"`
	RuleCount int          `json:"rule_count"`
	Rules     []types.Rule `json:"rules,omitempty"`
	Issues    []string     `json:"issues,omitempty"`
	Warnings  []string     `json:"warnings,omitempty"`
}

// handlePutRuleSet publishes a payer policy document. The body may be a
// pre-built rule list or a legacy policy document; either way it is
// normalized, linted, and stored under a content-addressable ETag.
func (s *Service) handlePutRuleSet(w http.ResponseWriter, r *http.Request) {
	payer := chi.URLParam(r, "payer")
	cptCode := chi.URLParam(r, "cptCode")
	s.limitBody(w, r)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}

	result, err := normalize.NormalizePolicy(types.RawDocument(body))
	if err != nil {
		s.metrics.IncrementNormalizeFailure("policy")
		writeError(w, http.StatusUnprocessableEntity, "invalid policy document: "+err.Error())
		return
	}

	issues := rules.Lint(result.Rules, result.Schema)
	if rules.HasErrors(issues) {
		s.metrics.IncrementLintRejection()
		s.log.Warn().Str("payer", payer).Str("cpt_code", cptCode).
			Int("issues", len(issues)).Msg("rule set rejected by lint")
		writeJSON(w, http.StatusUnprocessableEntity, ruleSetResponse{
			Payer:     payer,
			CPTCode:   cptCode,
			RuleCount: len(result.Rules),
			Issues:    issueStrings(issues),
			Warnings:  result.Warnings,
		})
		return
	}

	etag, err := s.store.SaveRuleSet(payer, cptCode, result.Rules)
	if err != nil {
		if errors.Is(err, types.ErrTooManyRules) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("rule set save failed")
		writeError(w, http.StatusServiceUnavailable, "rule set storage unavailable")
		return
	}

	s.log.Info().Str("payer", payer).Str("cpt_code", cptCode).Str("etag", etag).
		Int("rule_count", len(result.Rules)).Int("warnings", len(result.Warnings)).
		Msg("rule set published")

	writeJSON(w, http.StatusOK, ruleSetResponse{
		Payer:     payer,
		CPTCode:   cptCode,
		ETag:      etag,
		RuleCount: len(result.Rules),
		Issues:    issueStrings(issues),
		Warnings:  result.Warnings,
	})
}

// handleGetRuleSet returns the stored compiled rule set for inspection.
func (s *Service) handleGetRuleSet(w http.ResponseWriter, r *http.Request) {
	payer := chi.URLParam(r, "payer")
	cptCode := chi.URLParam(r, "cptCode")

	ruleList, etag, err := s.store.LoadRuleSet(payer, cptCode)
	if err != nil {
		if errors.Is(err, types.ErrRuleSetNotFound) {
			writeError(w, http.StatusNotFound, "rule set not found")
			return
		}
		s.log.Error().Err(err).Msg("rule set load failed")
		writeError(w, http.StatusServiceUnavailable, "rule set storage unavailable")
		return
	}

	writeJSON(w, http.StatusOK, ruleSetResponse{
		Payer:     payer,
		CPTCode:   cptCode,
		ETag:      etag,
		RuleCount: len(ruleList),
		Rules:     ruleList,
	})
}

func issueStrings(issues []rules.Issue) []string {
	if len(issues) == 0 {
		return nil
	}
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.String()
	}
	return out
}
