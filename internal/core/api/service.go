// Package api provides the HTTP service for chart evaluation and rule-set
// management.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/openpa/chartcheck/internal/core/auth"
	"github.com/openpa/chartcheck/internal/core/config"
	"github.com/openpa/chartcheck/internal/core/metrics"
	"github.com/openpa/chartcheck/internal/core/store"
	"github.com/openpa/chartcheck/internal/rules"
	"github.com/openpa/chartcheck/internal/types"
)

// EvidenceExtractor turns free-text chart notes into a raw patient document
// the normalization layer understands. Implementations wrap whatever
// extraction backend the deployment uses; the service itself never talks to
// one directly. A nil extractor disables chart_text requests.
type EvidenceExtractor interface {
	Extract(ctx context.Context, chartText string) (types.RawDocument, error)
}

// Service implements the chartcheck HTTP API.
// Thin orchestration layer delegating to normalize, rules, verdict, and the
// store.
type Service struct {
	store     *store.Store
	engine    *rules.Engine
	cfg       *config.ServerConfig
	log       zerolog.Logger
	metrics   *metrics.Metrics
	extractor EvidenceExtractor

	jsonlMutexes map[string]*sync.Mutex
	mutexLock    sync.Mutex
}

// NewService creates the service instance with its dependencies.
// Auto-creates the audit directory if not exists. The extractor may be nil.
func NewService(st *store.Store, engine *rules.Engine, cfg *config.ServerConfig, log zerolog.Logger, m *metrics.Metrics, extractor EvidenceExtractor) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}

	auditDir := filepath.Join(cfg.DataDir, "audit")
	if err := os.MkdirAll(auditDir, 0755); err != nil {
		return nil, err
	}

	return &Service{
		store:        st,
		engine:       engine,
		cfg:          cfg,
		log:          log,
		metrics:      m,
		extractor:    extractor,
		jsonlMutexes: make(map[string]*sync.Mutex),
	}, nil
}

// Router builds the authenticated API routes.
func (s *Service) Router(authenticator *auth.Authenticator) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	r.Use(authenticator.Middleware())

	r.Post("/evaluations", s.handleCreateEvaluation)
	r.Get("/evaluations", s.handleListEvaluations)
	r.Get("/evaluations/{evaluationID}", s.handleGetEvaluation)

	r.Put("/rulesets/{payer}/{cptCode}", s.handlePutRuleSet)
	r.Get("/rulesets/{payer}/{cptCode}", s.handleGetRuleSet)

	return r
}

// limitBody caps request body reads at the configured maximum.
func (s *Service) limitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
}

// getJSONLMutex returns mutex for given filename, creating if not exists.
// Per-file mutex protects concurrent appends to the same daily audit file.
// Mutex map grows by ~1 entry/day (acceptable memory footprint).
func (s *Service) getJSONLMutex(filename string) *sync.Mutex {
	s.mutexLock.Lock()
	defer s.mutexLock.Unlock()

	if _, ok := s.jsonlMutexes[filename]; !ok {
		s.jsonlMutexes[filename] = &sync.Mutex{}
	}
	return s.jsonlMutexes[filename]
}
