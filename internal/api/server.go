// Package api exposes the enforcement engine over HTTP. The surface is a
// thin boundary: request decoding, engine calls, JSON responses.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yairfalse/valvo/dashboard"
	"github.com/yairfalse/valvo/policy"
	"github.com/yairfalse/valvo/sdlc"
	"github.com/yairfalse/valvo/telemetry"
	"github.com/yairfalse/valvo/types"
)

// Server routes HTTP requests to the engine, aggregator and SDLC registry.
type Server struct {
	engine     *policy.Engine
	aggregator *dashboard.Aggregator
	registry   *sdlc.Registry
	logger     *telemetry.Logger
	router     *mux.Router
}

// NewServer builds the router. registry may be nil, which disables the
// /v1/sdlc routes. metricsHandler may be nil, in which case /metrics
// serves the default promhttp handler.
func NewServer(engine *policy.Engine, aggregator *dashboard.Aggregator, registry *sdlc.Registry, metricsHandler http.Handler) *Server {
	s := &Server{
		engine:     engine,
		aggregator: aggregator,
		registry:   registry,
		logger:     telemetry.NewLogger("api"),
		router:     mux.NewRouter(),
	}

	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", metricsHandler).Methods("GET")
	s.router.HandleFunc("/v1/enforce", s.handleEnforce).Methods("POST")
	s.router.HandleFunc("/v1/policies", s.handleListPolicies).Methods("GET")
	s.router.HandleFunc("/v1/policies", s.handleCreatePolicy).Methods("POST")
	s.router.HandleFunc("/v1/policies/{id}/status", s.handlePolicyStatus).Methods("GET")
	s.router.HandleFunc("/v1/dashboard", s.handleDashboard).Methods("GET")

	if s.registry != nil {
		s.router.HandleFunc("/v1/sdlc/projects", s.handleCreateProject).Methods("POST")
		s.router.HandleFunc("/v1/sdlc/datasets", s.handleRegisterDataset).Methods("POST")
		s.router.HandleFunc("/v1/sdlc/experiments", s.handleRecordExperiment).Methods("POST")
		s.router.HandleFunc("/v1/sdlc/deployments", s.handleRecordDeployment).Methods("POST")
	}

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

type enforceRequest struct {
	PolicyID    string         `json:"policy_id"`
	Data        map[string]any `json:"data"`
	UserContext map[string]any `json:"user_context,omitempty"`
}

type enforceResponse struct {
	RequestID string                    `json:"request_id"`
	Results   []types.EnforcementResult `json:"results"`
	Warning   string                    `json:"warning,omitempty"`
}

func (s *Server) handleEnforce(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	var req enforceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PolicyID == "" {
		s.writeError(w, http.StatusBadRequest, "policy_id is required")
		return
	}

	results, err := s.engine.Enforce(r.Context(), req.PolicyID, req.Data, req.UserContext)
	switch {
	case errors.Is(err, policy.ErrPolicyNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, policy.ErrAuditWrite):
		// Decisions were computed; report them with a warning instead of
		// discarding them.
		s.logger.WithContext(r.Context()).Error().
			Err(err).
			Str("request_id", requestID).
			Str("policy_id", req.PolicyID).
			Msg("enforcement audited partially")
		s.writeJSON(w, http.StatusOK, enforceResponse{
			RequestID: requestID,
			Results:   results,
			Warning:   err.Error(),
		})
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.WithContext(r.Context()).Info().
		Str("request_id", requestID).
		Str("policy_id", req.PolicyID).
		Int("results", len(results)).
		Msg("enforcement complete")

	s.writeJSON(w, http.StatusOK, enforceResponse{RequestID: requestID, Results: results})
}

type createPolicyRequest struct {
	TemplateName string          `json:"template_name"`
	Policy       policy.Template `json:"policy"`
}

func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req createPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TemplateName == "" {
		s.writeError(w, http.StatusBadRequest, "template_name is required")
		return
	}

	policyID, err := s.engine.CreateFromTemplate(r.Context(), req.TemplateName, req.Policy)
	if err != nil {
		var parseErr *policy.TemplateParseError
		if errors.As(err, &parseErr) {
			s.writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"policy_id": policyID})
}

func (s *Server) handleListPolicies(w http.ResponseWriter, _ *http.Request) {
	ids := s.engine.PolicyIDs()
	sort.Strings(ids)
	s.writeJSON(w, http.StatusOK, map[string]any{"policies": ids, "count": len(ids)})
}

func (s *Server) handlePolicyStatus(w http.ResponseWriter, r *http.Request) {
	policyID := mux.Vars(r)["id"]

	status, err := s.engine.PolicyStatus(r.Context(), policyID)
	if err != nil {
		if errors.Is(err, policy.ErrPolicyNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var p sdlc.Project
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := s.registry.CreateProject(r.Context(), p)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"project_id": id})
}

func (s *Server) handleRegisterDataset(w http.ResponseWriter, r *http.Request) {
	var d sdlc.Dataset
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := s.registry.RegisterDataset(r.Context(), d)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"dataset_id": id})
}

func (s *Server) handleRecordExperiment(w http.ResponseWriter, r *http.Request) {
	var e sdlc.Experiment
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := s.registry.RecordExperiment(r.Context(), e)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"experiment_id": id})
}

func (s *Server) handleRecordDeployment(w http.ResponseWriter, r *http.Request) {
	var d sdlc.Deployment
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := s.registry.RecordDeployment(r.Context(), d)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"deployment_id": id})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := s.aggregator.Summarize(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}
