package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opsmates/agentcore/internal/api/middleware"
	"github.com/opsmates/agentcore/internal/api/response"
	"github.com/opsmates/agentcore/internal/domain"
	"github.com/opsmates/agentcore/internal/repository/mongo"
	"github.com/opsmates/agentcore/internal/security"
	"github.com/opsmates/agentcore/internal/service"
)

const defaultListLimit = 50

// JobHandler handles job queue endpoints. The run log archive is optional;
// without it the logs endpoint reports empty history.
type JobHandler struct {
	jobService *service.JobService
	runLogs    *mongo.RunLogStore
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobService *service.JobService, runLogs *mongo.RunLogStore) *JobHandler {
	return &JobHandler{jobService: jobService, runLogs: runLogs}
}

// Enqueue handles job creation
func (h *JobHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	var input domain.JobCreate
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := security.Validate(input); err != nil {
		response.BadRequest(w, security.ValidationDetail(err))
		return
	}

	job, err := h.jobService.Enqueue(r.Context(), principal, orgID, input)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.Created(w, job)
}

// List handles listing an organization's jobs
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	jobs, err := h.jobService.List(r.Context(), principal, orgID, limit)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, jobs)
}

// Get handles retrieving a job
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.BadRequest(w, "invalid job ID")
		return
	}

	job, err := h.jobService.Get(r.Context(), principal, orgID, jobID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, job)
}

// Cancel handles cancelling a pending job
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.BadRequest(w, "invalid job ID")
		return
	}

	job, err := h.jobService.Cancel(r.Context(), principal, orgID, jobID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, job)
}

// GetRun handles retrieving a run
func (h *JobHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())
	runID := chi.URLParam(r, "runID")

	run, err := h.jobService.GetRun(r.Context(), principal, orgID, runID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, run)
}

// ListRunLogs handles retrieving the archived execution log for a run. The
// run lookup carries the tenant check; the archive itself is unscoped.
func (h *JobHandler) ListRunLogs(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())
	runID := chi.URLParam(r, "runID")

	if _, err := h.jobService.GetRun(r.Context(), principal, orgID, runID); err != nil {
		response.DomainError(w, err)
		return
	}

	if h.runLogs == nil {
		response.OK(w, []mongo.LogEntry{})
		return
	}

	entries, err := h.runLogs.List(r.Context(), runID, 500)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if entries == nil {
		entries = []mongo.LogEntry{}
	}

	response.OK(w, entries)
}

// ListRuns handles listing an organization's runs
func (h *JobHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	orgID, _ := middleware.GetOrganizationID(r.Context())

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	runs, err := h.jobService.ListRuns(r.Context(), principal, orgID, limit)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, runs)
}
