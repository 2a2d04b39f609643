// Package httpx provides HTTP handlers and utilities for the greeter job API.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/greeter-api/internal/domain/model"
	"github.com/target/greeter-api/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// JobHandlers provides HTTP handlers for job-related operations.
type JobHandlers struct {
	Svc            *service.JobService
	MaxUploadBytes int64
	SyncTimeout    time.Duration
	Logger         *slog.Logger
}

// jobAccepted is the 202 body for asynchronous submissions.
type jobAccepted struct {
	JobID  string          `json:"job_id"`
	Status model.JobStatus `json:"status"`
}

// jobSummary is one row of the job list.
type jobSummary struct {
	ID           string            `json:"id"`
	Status       model.JobStatus   `json:"status"`
	AccountOwner string            `json:"account_owner"`
	Progress     model.JobProgress `json:"progress"`
	Error        *string           `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// syncTimeoutBody is returned when a synchronous run outlives the request.
type syncTimeoutBody struct {
	errorBody
	JobID  string                  `json:"job_id"`
	Status model.JobStatus         `json:"status"`
	Job    model.JobStatusResponse `json:"job"`
}

// CreateJob handles HTTP requests to submit a welcome job.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	req, err := parseCreateRequest(w, r, h.MaxUploadBytes)
	if err != nil {
		RenderError(w, r, err, h.Logger)
		return
	}

	job, err := h.Svc.Submit(r.Context(), req)
	if err != nil {
		RenderError(w, r, err, h.Logger)
		return
	}

	w.Header().Set("Location", "/api/jobs/"+job.ID)
	WriteJSON(w, http.StatusAccepted, jobAccepted{JobID: job.ID, Status: job.Status})
}

// RunWelcome handles HTTP requests to run a welcome job synchronously.
func (h *JobHandlers) RunWelcome(w http.ResponseWriter, r *http.Request) {
	req, err := parseCreateRequest(w, r, h.MaxUploadBytes)
	if err != nil {
		RenderError(w, r, err, h.Logger)
		return
	}

	ctx := r.Context()
	if h.SyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.SyncTimeout)
		defer cancel()
	}

	job, err := h.Svc.RunSync(ctx, req)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, job.StatusResponse())
	case job.ID != "" && errors.Is(err, context.DeadlineExceeded):
		WriteJSON(w, http.StatusGatewayTimeout, syncTimeoutBody{
			errorBody: errorBody{
				Error:   "timeout",
				Message: "job is still running; poll /api/jobs/" + job.ID,
			},
			JobID:  job.ID,
			Status: job.Status,
			Job:    job.StatusResponse(),
		})
	default:
		RenderError(w, r, err, h.Logger)
	}
}

// ListJobs handles HTTP requests to list jobs, newest first.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParseLimitOffset(r, defaultListLimit, maxListLimit)
	status := model.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New("unknown status filter"),
			Field:   "status",
		})
		return
	}

	all := h.Svc.List()
	rows := make([]jobSummary, 0, len(all))
	for _, j := range all {
		if status != "" && j.Status != status {
			continue
		}
		rows = append(rows, jobSummary{
			ID:           j.ID,
			Status:       j.Status,
			AccountOwner: j.Params.AccountOwner,
			Progress:     j.Progress,
			Error:        j.Error,
			CreatedAt:    j.CreatedAt,
			UpdatedAt:    j.UpdatedAt,
			CompletedAt:  j.CompletedAt,
		})
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":   page(rows, limit, offset),
		"total":  len(rows),
		"limit":  limit,
		"offset": offset,
	})
}

// GetStatus handles HTTP requests to retrieve the status of a specific job.
func (h *JobHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Svc.Status(r.PathValue("id"))
	if err != nil {
		RenderError(w, r, err, h.Logger)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// Cancel handles HTTP requests to cancel a running job.
func (h *JobHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	job, err := h.Svc.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		RenderError(w, r, err, h.Logger)
		return
	}
	WriteJSON(w, http.StatusAccepted, job.StatusResponse())
}

// Stats handles HTTP requests for per-status job counts.
func (h *JobHandlers) Stats(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.Svc.Stats())
}
