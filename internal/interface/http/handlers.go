package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alem-hub/command-centre/internal/application/command"
	"github.com/alem-hub/command-centre/internal/application/query"
	"github.com/alem-hub/command-centre/internal/domain/shared"
)

// defaultUpcomingWindow is used when ?window is absent.
const defaultUpcomingWindow = 14

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"healthy": true,
			"uptime":  s.Uptime().Round(time.Second).String(),
			"version": s.config.Version,
		})
		return
	}
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeEnvelope(w, http.StatusServiceUnavailable, JSONResponse{
			Data: status,
			Error: &APIError{
				Code:    "unhealthy",
				Message: status.Message,
			},
			Meta: newMeta(r),
		})
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Ready {
			writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", status.Message)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// COHORT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListCohorts handles GET /api/v1/cohorts[?active=true]
func (s *Server) handleListCohorts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cohorts == nil {
		s.notConfigured(w, r, "cohort queries")
		return
	}
	cohorts, err := s.deps.Cohorts.ListCohorts(r.Context(), getQueryParamBool(r, "active"))
	if err != nil {
		s.writeError(w, r, "list cohorts", err)
		return
	}
	writeList(w, r, cohorts, len(cohorts))
}

// handleCalendar handles GET /api/v1/cohorts/{id}/calendar
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cohorts == nil {
		s.notConfigured(w, r, "cohort queries")
		return
	}
	view, err := s.deps.Cohorts.Calendar(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "calendar", err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleUpcomingGates handles GET /api/v1/cohorts/{id}/upcoming-gates?window=N
func (s *Server) handleUpcomingGates(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cohorts == nil {
		s.notConfigured(w, r, "cohort queries")
		return
	}
	window, ok := getQueryParamInt(r, "window", defaultUpcomingWindow)
	if !ok {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_input", "window must be an integer")
		return
	}
	view, err := s.deps.Cohorts.UpcomingGates(r.Context(), r.PathValue("id"), window)
	if err != nil {
		s.writeError(w, r, "upcoming gates", err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleGateResults handles GET /api/v1/cohorts/{id}/gates[?gate=TYPE&result=RESULT]
func (s *Server) handleGateResults(w http.ResponseWriter, r *http.Request) {
	if s.deps.Gates == nil {
		s.notConfigured(w, r, "gate queries")
		return
	}
	view, err := s.deps.Gates.ListResults(r.Context(), query.ListGateResultsQuery{
		CohortID: r.PathValue("id"),
		GateType: strings.ToUpper(r.URL.Query().Get("gate")),
		Result:   strings.ToUpper(r.URL.Query().Get("result")),
	})
	if err != nil {
		s.writeError(w, r, "gate results", err)
		return
	}
	writeList(w, r, view, len(view.Evaluations))
}

// handlePendingGraduations handles GET /api/v1/cohorts/{id}/pending-graduations
func (s *Server) handlePendingGraduations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Graduation == nil {
		s.notConfigured(w, r, "graduation authority")
		return
	}
	pending, err := s.deps.Graduation.ListPendingGraduations(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "pending graduations", err)
		return
	}
	if pending == nil {
		pending = []*command.Eligibility{}
	}
	writeList(w, r, pending, len(pending))
}

// handleRunGates handles POST /api/v1/cohorts/{id}/gates/run
func (s *Server) handleRunGates(w http.ResponseWriter, r *http.Request) {
	if s.deps.GateRunner == nil {
		s.notConfigured(w, r, "gate runner")
		return
	}
	summary, err := s.deps.GateRunner.ExecuteNow(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "gate run", err)
		return
	}
	s.logger.Info("manual gate run",
		"cohort_id", summary.CohortID,
		"gate_type", summary.GateType,
		"evaluated", summary.Evaluated(),
		"skipped", summary.Skipped,
		"request_id", getRequestID(r.Context()),
	)
	writeJSON(w, r, http.StatusOK, summary)
}

// handleRefresh handles POST /api/v1/cohorts/{id}/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.deps.Refresher == nil {
		s.notConfigured(w, r, "calendar refresher")
		return
	}
	res, err := s.deps.Refresher.RefreshCohort(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "calendar refresh", err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRunPauses handles POST /api/v1/pauses/run
func (s *Server) handleRunPauses(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pauses == nil {
		s.notConfigured(w, r, "pause escalation")
		return
	}
	summary, err := s.deps.Pauses.Run(r.Context())
	if err != nil {
		s.writeError(w, r, "pause check", err)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

// handleListPaused handles GET /api/v1/participants/paused[?cohort=ID]
func (s *Server) handleListPaused(w http.ResponseWriter, r *http.Request) {
	if s.deps.Participants == nil {
		s.notConfigured(w, r, "participant queries")
		return
	}
	paused, err := s.deps.Participants.ListPaused(r.Context(), r.URL.Query().Get("cohort"))
	if err != nil {
		s.writeError(w, r, "list paused", err)
		return
	}
	if paused == nil {
		paused = []query.PausedDTO{}
	}
	writeList(w, r, paused, len(paused))
}

// handleGetParticipant handles GET /api/v1/participants/{id}
func (s *Server) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	if s.deps.Participants == nil {
		s.notConfigured(w, r, "participant queries")
		return
	}
	view, err := s.deps.Participants.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "get participant", err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleEligibility handles GET /api/v1/participants/{id}/eligibility
func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	if s.deps.Graduation == nil {
		s.notConfigured(w, r, "graduation authority")
		return
	}
	el, err := s.deps.Graduation.CheckEligibility(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "eligibility", err)
		return
	}
	writeJSON(w, r, http.StatusOK, el)
}

// decisionRequest is the body of the human decision endpoints. The actor may
// also come from the X-Actor header.
type decisionRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

func (s *Server) decodeDecision(w http.ResponseWriter, r *http.Request) (decisionRequest, bool) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "request body must be a JSON object")
		return req, false
	}
	if req.Actor == "" {
		req.Actor = r.Header.Get("X-Actor")
	}
	req.Actor = strings.TrimSpace(req.Actor)
	req.Reason = strings.TrimSpace(req.Reason)
	if !shared.Actor(req.Actor).IsHuman() {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_actor", "a named staff actor is required")
		return req, false
	}
	return req, true
}

// handleReactivate handles POST /api/v1/participants/{id}/reactivate
func (s *Server) handleReactivate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pauses == nil {
		s.notConfigured(w, r, "pause escalation")
		return
	}
	req, ok := s.decodeDecision(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Pauses.Reactivate(r.Context(), r.PathValue("id"), shared.Actor(req.Actor), req.Reason)
	if err != nil {
		s.writeRejectedError(w, r, "reactivate", err, res)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleGraduate handles POST /api/v1/participants/{id}/graduate
func (s *Server) handleGraduate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Graduation == nil {
		s.notConfigured(w, r, "graduation authority")
		return
	}
	req, ok := s.decodeDecision(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Graduation.Graduate(r.Context(), r.PathValue("id"), shared.Actor(req.Actor))
	s.writeDecision(w, r, "graduate", res, err)
}

// handleExit handles POST /api/v1/participants/{id}/exit
func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Graduation == nil {
		s.notConfigured(w, r, "graduation authority")
		return
	}
	req, ok := s.decodeDecision(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Graduation.Exit(r.Context(), r.PathValue("id"), req.Reason, shared.Actor(req.Actor))
	s.writeDecision(w, r, "exit", res, err)
}

func (s *Server) writeDecision(w http.ResponseWriter, r *http.Request, op string, res command.DecisionResult, err error) {
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	if !res.Success {
		s.writeRejectedError(w, r, op, res.Err(), res)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleResolve handles POST /api/v1/evaluations/{id}/resolve
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if s.deps.Resolver == nil {
		s.notConfigured(w, r, "intervention resolution")
		return
	}
	req, ok := s.decodeDecision(w, r)
	if !ok {
		return
	}
	note := req.Note
	if note == "" {
		note = req.Reason
	}
	ev, err := s.deps.Resolver.Handle(r.Context(), command.ResolveInterventionCommand{
		EvaluationID: r.PathValue("id"),
		Actor:        shared.Actor(req.Actor),
		Note:         note,
	})
	if err != nil {
		s.writeError(w, r, "resolve intervention", err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ToEvaluationDTO(ev))
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// statusFor maps a classified error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "invalid_input"
	case shared.IsInvalidTransition(err):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, shared.ErrAlreadyResolved):
		return http.StatusConflict, "already_resolved"
	case shared.IsPreconditionUnmet(err):
		return http.StatusConflict, "precondition_unmet"
	case errors.Is(err, shared.ErrConcurrentModification):
		return http.StatusConflict, "concurrent_modification"
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusForbidden, "forbidden"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.writeRejectedError(w, r, op, err, nil)
}

// writeRejectedError writes err with an optional structured result.
// Internal errors never leak their message.
func (s *Server) writeRejectedError(w http.ResponseWriter, r *http.Request, op string, err error, result any) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "error", err, "path", r.URL.Path, "request_id", getRequestID(r.Context()))
		msg = "An unexpected error occurred"
		result = nil
	}
	writeRejected(w, r, status, code, msg, result)
}

func (s *Server) notConfigured(w http.ResponseWriter, r *http.Request, what string) {
	writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", what+" not configured")
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY PARAMETERS
// ══════════════════════════════════════════════════════════════════════════════

// getQueryParamInt returns def when key is absent and false when it is not an integer.
func getQueryParamInt(r *http.Request, key string, def int) (int, bool) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return def, true
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}

func getQueryParamBool(r *http.Request, key string) bool {
	switch strings.ToLower(r.URL.Query().Get(key)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
