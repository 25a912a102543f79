package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	assemblyengine "concord/contexts/community-governance/assembly-engine"
	domainerrors "concord/contexts/community-governance/assembly-engine/domain/errors"
	governancehttp "concord/contexts/community-governance/assembly-engine/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	addr       string
	governance assemblyengine.Module
}

func New(governance assemblyengine.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		addr:       addr,
		governance: governance,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /swagger/doc.json", s.handleSwaggerDoc)
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /v1/assemblies", s.handleCreateAssembly)
	s.mux.HandleFunc("GET /v1/assemblies/{assembly_id}", s.handleGetAssembly)
	s.mux.HandleFunc("POST /v1/assemblies/{assembly_id}/start", s.handleStartAssembly)
	s.mux.HandleFunc("POST /v1/assemblies/{assembly_id}/close", s.handleCloseAssembly)
	s.mux.HandleFunc("POST /v1/assemblies/{assembly_id}/cancel", s.handleCancelAssembly)
	s.mux.HandleFunc("DELETE /v1/assemblies/{assembly_id}", s.handleDeleteAssembly)

	s.mux.HandleFunc("POST /v1/assemblies/{assembly_id}/ballots", s.handleOpenBallot)
	s.mux.HandleFunc("POST /v1/ballots/{ballot_id}/votes", s.handleCastVote)

	s.mux.HandleFunc("POST /v1/assemblies/{assembly_id}/delegations", s.handleAuthorizeDelegation)
	s.mux.HandleFunc("POST /v1/delegations/{delegation_id}/approve", s.handleApproveDelegation)
	s.mux.HandleFunc("POST /v1/delegations/{delegation_id}/revoke", s.handleRevokeDelegation)

	s.mux.HandleFunc("GET /v1/assemblies/{assembly_id}/quorum", s.handleQuorum)
	s.mux.HandleFunc("GET /v1/assemblies/{assembly_id}/results", s.handleResults)
}

func (s *Server) handleCreateAssembly(w http.ResponseWriter, r *http.Request) {
	var req governancehttp.CreateAssemblyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.governance.Handler.CreateAssemblyHandler(r.Context(), req)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetAssembly(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.GetAssemblyHandler(r.Context(), r.PathValue("assembly_id"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartAssembly(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.StartAssemblyHandler(r.Context(), r.PathValue("assembly_id"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCloseAssembly(w http.ResponseWriter, r *http.Request) {
	var req governancehttp.CloseAssemblyRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
			return
		}
	}
	resp, err := s.governance.Handler.CloseAssemblyHandler(r.Context(), r.PathValue("assembly_id"), req)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelAssembly(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.CancelAssemblyHandler(r.Context(), r.PathValue("assembly_id"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteAssembly(w http.ResponseWriter, r *http.Request) {
	if err := s.governance.Handler.DeleteAssemblyHandler(r.Context(), r.PathValue("assembly_id")); err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOpenBallot(w http.ResponseWriter, r *http.Request) {
	var req governancehttp.OpenBallotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.governance.Handler.OpenBallotHandler(r.Context(), r.PathValue("assembly_id"), req)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req governancehttp.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	castBy := resolveSubjectID(r)
	if castBy == "" {
		writeGovernanceError(w, http.StatusBadRequest, "missing_subject", "X-User-Id header is required")
		return
	}
	resp, err := s.governance.Handler.CastVoteHandler(r.Context(), r.PathValue("ballot_id"), castBy, req)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAuthorizeDelegation(w http.ResponseWriter, r *http.Request) {
	var req governancehttp.AuthorizeDelegationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	authorizerID := resolveSubjectID(r)
	if authorizerID == "" {
		writeGovernanceError(w, http.StatusBadRequest, "missing_subject", "X-User-Id header is required")
		return
	}
	resp, err := s.governance.Handler.AuthorizeDelegationHandler(r.Context(), r.PathValue("assembly_id"), authorizerID, req)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleApproveDelegation(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.ApproveDelegationHandler(r.Context(), r.PathValue("delegation_id"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRevokeDelegation(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.RevokeDelegationHandler(r.Context(), r.PathValue("delegation_id"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuorum(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.QuorumHandler(r.Context(), r.PathValue("assembly_id"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.ResultsHandler(r.Context(), r.PathValue("assembly_id"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeGovernanceDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domainerrors.ErrAssemblyNotFound):
		writeGovernanceError(w, http.StatusNotFound, "assembly_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrBallotNotFound):
		writeGovernanceError(w, http.StatusNotFound, "ballot_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrDelegationNotFound):
		writeGovernanceError(w, http.StatusNotFound, "delegation_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrUnitNotFound):
		writeGovernanceError(w, http.StatusNotFound, "unit_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidTransition):
		writeGovernanceError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domainerrors.ErrDuplicateDelegation):
		writeGovernanceError(w, http.StatusConflict, "duplicate_delegation", err.Error())
	case errors.Is(err, domainerrors.ErrConflict):
		writeGovernanceError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domainerrors.ErrUnauthorizedVoter):
		writeGovernanceError(w, http.StatusForbidden, "unauthorized_voter", err.Error())
	case errors.Is(err, domainerrors.ErrAssemblyNotOpen):
		writeGovernanceError(w, http.StatusUnprocessableEntity, "assembly_not_open", err.Error())
	case errors.Is(err, domainerrors.ErrUnknownOption):
		writeGovernanceError(w, http.StatusUnprocessableEntity, "unknown_option", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidAssemblyInput),
		errors.Is(err, domainerrors.ErrInvalidBallotInput),
		errors.Is(err, domainerrors.ErrInvalidDelegationInput):
		writeGovernanceError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeGovernanceError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeGovernanceError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, governancehttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveSubjectID(r *http.Request) string {
	if fromHeader := r.Header.Get("X-User-Id"); fromHeader != "" {
		return fromHeader
	}
	return r.Header.Get("X-Subject-Id")
}
