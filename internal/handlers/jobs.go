package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/MoldoAndr/hashbreaker/internal/config"
	"github.com/MoldoAndr/hashbreaker/internal/dispatcher"
	"github.com/MoldoAndr/hashbreaker/internal/models"
	"github.com/MoldoAndr/hashbreaker/internal/store"
	"github.com/MoldoAndr/hashbreaker/pkg/debug"
)

// JobsHandler handles job submission, status and cancellation requests
type JobsHandler struct {
	cfg      *config.Config
	store    store.JobStore
	producer dispatcher.Producer
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(cfg *config.Config, st store.JobStore, producer dispatcher.Producer) *JobsHandler {
	return &JobsHandler{
		cfg:      cfg,
		store:    st,
		producer: producer,
	}
}

// SubmitJobRequest is the POST /v1/jobs payload
type SubmitJobRequest struct {
	Hash           string             `json:"hash"`
	HashTypeID     int                `json:"hash_type_id"`
	TimeoutSeconds int                `json:"timeout_seconds"`
	Priority       models.JobPriority `json:"priority"`
}

// SubmitJobResponse acknowledges an accepted job
type SubmitJobResponse struct {
	JobID          string             `json:"job_id"`
	Status         models.JobStatus   `json:"status"`
	Priority       models.JobPriority `json:"priority"`
	TimeoutSeconds int                `json:"timeout_seconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		debug.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// SubmitJob handles POST /v1/jobs. The job is persisted as PENDING and
// enqueued; the response is a 202 acknowledgement, not a result.
func (h *JobsHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Hash = strings.TrimSpace(req.Hash)
	if req.Hash == "" {
		writeError(w, http.StatusBadRequest, "hash is required")
		return
	}
	if !config.ValidHashType(req.HashTypeID) {
		writeError(w, http.StatusBadRequest, "unsupported hash type")
		return
	}

	jobID := uuid.New().String()
	timeout := h.cfg.ClampTimeout(req.TimeoutSeconds)
	priority := models.NormalizePriority(req.Priority)
	now := time.Now()

	job := models.Job{
		JobID:          jobID,
		Status:         models.StatusPending,
		SubmittedAt:    models.TimePtr(now),
		HashTypeID:     req.HashTypeID,
		TimeoutSeconds: timeout,
		Priority:       priority,
		TimeRemaining:  timeout,
	}
	if err := h.store.Set(ctx, jobID, &job, 0); err != nil {
		debug.Error("Failed to persist job %s: %v", jobID, err)
		writeError(w, http.StatusInternalServerError, "failed to persist job")
		return
	}

	task := dispatcher.Task{
		JobID:          jobID,
		Hash:           req.Hash,
		HashTypeID:     req.HashTypeID,
		TimeoutSeconds: timeout,
		Priority:       priority,
	}
	if err := h.producer.Enqueue(ctx, task); err != nil {
		debug.Error("Failed to enqueue job %s: %v", jobID, err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	debug.Info("Job %s submitted (type=%d, timeout=%ds, priority=%s)", jobID, req.HashTypeID, timeout, priority)
	writeJSON(w, http.StatusAccepted, SubmitJobResponse{
		JobID:          jobID,
		Status:         models.StatusPending,
		Priority:       priority,
		TimeoutSeconds: timeout,
	})
}

// GetJobStatus handles GET /v1/jobs/{id}
func (h *JobsHandler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := mux.Vars(r)["id"]

	job, err := h.store.Get(ctx, jobID)
	if err != nil {
		debug.Error("Failed to read job %s: %v", jobID, err)
		writeError(w, http.StatusInternalServerError, "failed to read job")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	job.RecomputeTimes(time.Now())
	writeJSON(w, http.StatusOK, job)
}

// CancelJob handles POST /v1/jobs/{id}/cancel. Cancellation is
// cooperative: the record is flagged CANCELLED and the pipeline honors
// the flag at its next phase boundary. Terminal jobs reject with 409.
func (h *JobsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := mux.Vars(r)["id"]

	job, err := h.store.Get(ctx, jobID)
	if err != nil {
		debug.Error("Failed to read job %s: %v", jobID, err)
		writeError(w, http.StatusInternalServerError, "failed to read job")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status.IsTerminal() {
		writeError(w, http.StatusConflict, "job already in terminal state "+string(job.Status))
		return
	}

	ok, err := h.store.Update(ctx, jobID, models.JobPatch{
		Status: models.StatusPtr(models.StatusCancelled),
		Reason: models.StringPtr("User requested cancellation"),
	})
	if err != nil {
		debug.Error("Failed to cancel job %s: %v", jobID, err)
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	debug.Info("Job %s cancellation requested", jobID)
	writeJSON(w, http.StatusOK, map[string]string{
		"job_id": jobID,
		"status": string(models.StatusCancelled),
	})
}

// Health handles GET /v1/health
func (h *JobsHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		debug.Warning("Health check: store unreachable: %v", err)
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}
