// Package model defines the core data types used throughout the greeter job engine.
package model

import (
	"errors"
	"strings"
	"time"
)

// JobStatus represents the current lifecycle state of a welcome job.
type JobStatus string

const (
	// JobStatusQueued indicates the job has been accepted but not started.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates the job's background task has picked it up.
	JobStatusRunning JobStatus = "running"
	// JobStatusInitializing indicates credentials and templates are being resolved.
	JobStatusInitializing JobStatus = "initializing"
	// JobStatusInitializingBrowser indicates a driver session is being established.
	JobStatusInitializingBrowser JobStatus = "initializing_browser"
	// JobStatusCheckingNotifications indicates follower discovery is running.
	JobStatusCheckingNotifications JobStatus = "checking_notifications"
	// JobStatusSendingMessages indicates the delivery loop is running.
	JobStatusSendingMessages JobStatus = "sending_messages"
	// JobStatusReconnecting indicates the delivery loop lost its session and is re-establishing it.
	JobStatusReconnecting JobStatus = "reconnecting"
	// JobStatusCompleted indicates the job finished; individual sends may still have failed.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job aborted.
	JobStatusFailed JobStatus = "failed"
)

// ErrInvalidTransition is returned when a status change is not permitted by the lifecycle.
var ErrInvalidTransition = errors.New("invalid job status transition")

// transitions lists the forward edges of the lifecycle. Failure is reachable
// from every non-terminal state and is handled separately.
var transitions = map[JobStatus][]JobStatus{
	JobStatusQueued:                {JobStatusRunning},
	JobStatusRunning:               {JobStatusInitializing},
	JobStatusInitializing:          {JobStatusInitializingBrowser},
	JobStatusInitializingBrowser:   {JobStatusCheckingNotifications},
	JobStatusCheckingNotifications: {JobStatusSendingMessages},
	JobStatusSendingMessages:       {JobStatusReconnecting, JobStatusCompleted},
	JobStatusReconnecting:          {JobStatusSendingMessages},
}

// Valid returns true if the JobStatus is a known lifecycle state.
func (s JobStatus) Valid() bool {
	if s == JobStatusCompleted || s == JobStatusFailed {
		return true
	}
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transitions may leave s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether the lifecycle permits moving from s to next.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() || !s.Valid() {
		return false
	}
	if next == JobStatusFailed {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// JobProgress tracks how many candidates a job has consumed.
type JobProgress struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
}

// OutcomeStatus labels a per-user delivery outcome.
type OutcomeStatus string

const (
	// OutcomeSent marks a candidate whose message compose action succeeded.
	OutcomeSent OutcomeStatus = "sent"
	// OutcomeFailed marks a candidate whose send failed or timed out.
	OutcomeFailed OutcomeStatus = "failed"
)

// UserOutcome records what happened to a single candidate follower.
type UserOutcome struct {
	Identity  string        `json:"username"`
	Status    OutcomeStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Detail    string        `json:"detail,omitempty"`
}

// JobResult is the summary payload attached to a completed job.
type JobResult struct {
	Total   int    `json:"total"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Message string `json:"message"`
}

// DriverOptions are passed through to the messaging driver on connect.
type DriverOptions struct {
	Headless bool   `json:"headless"`
	Proxy    string `json:"proxy,omitempty"`
}

// JobParams is the immutable snapshot of what the caller asked for.
type JobParams struct {
	AccountOwner    string             `json:"account_owner"`
	MessageTemplate string             `json:"message_template"`
	Driver          DriverOptions      `json:"driver"`
	Credentials     SessionCredentials `json:"credentials"`
}

// Job is a unit of asynchronous welcome work.
type Job struct {
	ID              string        `json:"id"`
	Status          JobStatus     `json:"status"`
	Params          JobParams     `json:"parameters"`
	Progress        JobProgress   `json:"progress"`
	ProcessedUsers  []UserOutcome `json:"processed_users"`
	FailedUsers     []UserOutcome `json:"failed_users"`
	Warnings        []string      `json:"warnings,omitempty"`
	Result          *JobResult    `json:"result,omitempty"`
	Error           *string       `json:"error,omitempty"`
	CancelRequested bool          `json:"cancel_requested,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// Clone returns a deep copy whose slices do not alias the receiver's.
func (j *Job) Clone() Job {
	out := *j
	out.ProcessedUsers = append([]UserOutcome(nil), j.ProcessedUsers...)
	out.FailedUsers = append([]UserOutcome(nil), j.FailedUsers...)
	out.Warnings = append([]string(nil), j.Warnings...)
	out.Params.Credentials.Bytes = append([]byte(nil), j.Params.Credentials.Bytes...)
	if j.Result != nil {
		r := *j.Result
		out.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	if j.CompletedAt != nil {
		c := *j.CompletedAt
		out.CompletedAt = &c
	}
	return out
}

// RetentionAnchor is the timestamp retention is measured from.
func (j *Job) RetentionAnchor() time.Time {
	if j.CompletedAt != nil {
		return *j.CompletedAt
	}
	return j.CreatedAt
}

// CreateJobRequest represents a request to start a welcome run.
type CreateJobRequest struct {
	AccountOwner    string             `json:"account_owner"`
	MessageTemplate string             `json:"message_template,omitempty"`
	Headless        *bool              `json:"headless,omitempty"`
	Proxy           string             `json:"proxy,omitempty"`
	Credentials     SessionCredentials `json:"-"`
}

// Normalize trims caller input in place.
func (r *CreateJobRequest) Normalize() {
	r.AccountOwner = strings.TrimPrefix(strings.TrimSpace(r.AccountOwner), "@")
	r.MessageTemplate = strings.TrimSpace(r.MessageTemplate)
	r.Proxy = strings.TrimSpace(r.Proxy)
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if r.AccountOwner == "" {
		return errors.New("account_owner is required")
	}
	if strings.ContainsAny(r.AccountOwner, " /\t\n") {
		return errors.New("account_owner must be a single handle")
	}
	return r.Credentials.Validate()
}

// JobStatusResponse represents the status information for a specific job.
type JobStatusResponse struct {
	ID             string        `json:"id"`
	Status         JobStatus     `json:"status"`
	Progress       JobProgress   `json:"progress"`
	ProcessedUsers []UserOutcome `json:"processed_users"`
	FailedUsers    []UserOutcome `json:"failed_users"`
	Warnings       []string      `json:"warnings,omitempty"`
	Message        string        `json:"message,omitempty"`
	Error          *string       `json:"error,omitempty"`
	Result         *JobResult    `json:"result,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// StatusResponse projects a job onto the caller-facing status shape.
func (j *Job) StatusResponse() JobStatusResponse {
	resp := JobStatusResponse{
		ID:             j.ID,
		Status:         j.Status,
		Progress:       j.Progress,
		ProcessedUsers: j.ProcessedUsers,
		FailedUsers:    j.FailedUsers,
		Warnings:       j.Warnings,
		Error:          j.Error,
		Result:         j.Result,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		CompletedAt:    j.CompletedAt,
	}
	if resp.ProcessedUsers == nil {
		resp.ProcessedUsers = []UserOutcome{}
	}
	if resp.FailedUsers == nil {
		resp.FailedUsers = []UserOutcome{}
	}
	if j.Result != nil {
		resp.Message = j.Result.Message
	}
	return resp
}

// JobStats counts jobs per status.
type JobStats map[JobStatus]int
