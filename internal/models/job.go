package models

import (
	"time"
)

// JobStatus represents the lifecycle state of a cracking job
type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusRunning   JobStatus = "RUNNING"
	StatusSuccess   JobStatus = "SUCCESS"
	StatusFailed    JobStatus = "FAILED"
	StatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal returns true if no further state transitions are allowed
func (s JobStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// JobPriority selects the dispatch lane for a job
type JobPriority string

const (
	PriorityLow    JobPriority = "LOW"
	PriorityNormal JobPriority = "NORMAL"
	PriorityHigh   JobPriority = "HIGH"
)

// NormalizePriority maps unknown priority values to NORMAL
func NormalizePriority(p JobPriority) JobPriority {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return p
	default:
		return PriorityNormal
	}
}

// Job is the full lifecycle record of one cracking request. The record
// carries a version counter bumped on every merge so that a reader can
// tell stale copies apart.
type Job struct {
	Version        int         `json:"version"`
	JobID          string      `json:"job_id"`
	Status         JobStatus   `json:"status"`
	SubmittedAt    *time.Time  `json:"submitted_at,omitempty"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	HashTypeID     int         `json:"hash_type_id"`
	TimeoutSeconds int         `json:"timeout_seconds"`
	Priority       JobPriority `json:"priority"`
	Progress       int         `json:"progress"`
	CurrentPhase   string      `json:"current_phase,omitempty"`
	PhaseNumber    int         `json:"phase_number,omitempty"`
	TimeElapsed    float64     `json:"time_elapsed"`
	TimeRemaining  int         `json:"time_remaining"`

	// Terminal-only fields. Once the status is terminal these never change.
	Result         *string `json:"result,omitempty"`
	CrackedInPhase *int    `json:"cracked_in_phase,omitempty"`
	Attempts       *int64  `json:"attempts,omitempty"`
	Reason         *string `json:"reason,omitempty"`
	LastPhase      *int    `json:"last_phase,omitempty"`
}

// JobPatch is a partial update to a Job. Nil fields are left untouched
// by Merge; this replaces the original's loose dict merging with a fixed
// set of optional fields.
type JobPatch struct {
	Status         *JobStatus
	StartedAt      *time.Time
	Progress       *int
	CurrentPhase   *string
	PhaseNumber    *int
	TimeElapsed    *float64
	TimeRemaining  *int
	Result         *string
	CrackedInPhase *int
	Attempts       *int64
	Reason         *string
	LastPhase      *int
}

// Merge applies a patch to a job record, returning the merged copy.
// Fields absent from the patch are never dropped. The version counter
// is incremented on every merge.
func Merge(old Job, patch JobPatch) Job {
	merged := old

	if patch.Status != nil {
		merged.Status = *patch.Status
	}
	if patch.StartedAt != nil {
		merged.StartedAt = patch.StartedAt
	}
	if patch.Progress != nil {
		merged.Progress = *patch.Progress
	}
	if patch.CurrentPhase != nil {
		merged.CurrentPhase = *patch.CurrentPhase
	}
	if patch.PhaseNumber != nil {
		merged.PhaseNumber = *patch.PhaseNumber
	}
	if patch.TimeElapsed != nil {
		merged.TimeElapsed = *patch.TimeElapsed
	}
	if patch.TimeRemaining != nil {
		merged.TimeRemaining = *patch.TimeRemaining
	}
	if patch.Result != nil {
		merged.Result = patch.Result
	}
	if patch.CrackedInPhase != nil {
		merged.CrackedInPhase = patch.CrackedInPhase
	}
	if patch.Attempts != nil {
		merged.Attempts = patch.Attempts
	}
	if patch.Reason != nil {
		merged.Reason = patch.Reason
	}
	if patch.LastPhase != nil {
		merged.LastPhase = patch.LastPhase
	}

	merged.Version = old.Version + 1
	return merged
}

// RecomputeTimes refreshes the derived time_elapsed/time_remaining
// fields at read time. Terminal jobs always report 0 remaining.
func (j *Job) RecomputeTimes(now time.Time) {
	if j.Status.IsTerminal() {
		j.TimeRemaining = 0
		return
	}
	if j.Status != StatusRunning || j.StartedAt == nil {
		return
	}
	elapsed := now.Sub(*j.StartedAt).Seconds()
	j.TimeElapsed = elapsed
	remaining := j.TimeoutSeconds - int(elapsed)
	if remaining < 0 {
		remaining = 0
	}
	j.TimeRemaining = remaining
}

// PhaseResult is the ephemeral output of one phase strategy. It is
// never persisted directly; the orchestrator folds it into the Job.
type PhaseResult struct {
	Cracked  bool   `json:"cracked"`
	Password string `json:"password,omitempty"`
	Attempts int64  `json:"attempts"`
	Phase    int    `json:"phase"`
	Method   string `json:"method,omitempty"`
	TimedOut bool   `json:"timeout"`
	Err      string `json:"error,omitempty"`
}

// Helpers for building patches without intermediate variables.

func StatusPtr(s JobStatus) *JobStatus { return &s }
func IntPtr(i int) *int                { return &i }
func Int64Ptr(i int64) *int64          { return &i }
func Float64Ptr(f float64) *float64    { return &f }
func StringPtr(s string) *string       { return &s }
func TimePtr(t time.Time) *time.Time   { return &t }
