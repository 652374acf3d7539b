package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MoldoAndr/hashbreaker/internal/config"
	"github.com/MoldoAndr/hashbreaker/internal/dispatcher"
	"github.com/MoldoAndr/hashbreaker/internal/metrics"
	"github.com/MoldoAndr/hashbreaker/internal/models"
	"github.com/MoldoAndr/hashbreaker/internal/routes"
	"github.com/MoldoAndr/hashbreaker/internal/store"
)

// captureProducer records enqueued tasks instead of publishing them
type captureProducer struct {
	tasks []dispatcher.Task
}

func (p *captureProducer) Enqueue(ctx context.Context, task dispatcher.Task) error {
	p.tasks = append(p.tasks, task)
	return nil
}

type apiFixture struct {
	store    *store.MemoryStore
	producer *captureProducer
	server   *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	cfg := &config.Config{
		DefaultTimeout:    60,
		MinTimeout:        10,
		MaxTimeout:        3600,
		WorkerConcurrency: 1,
		PhaseFractions:    [config.NumPhases]float64{0.10, 0.25, 0.35, 0.30},
	}
	st := store.NewMemoryStore(time.Hour)
	producer := &captureProducer{}
	router := routes.Setup(cfg, st, producer, metrics.New())

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &apiFixture{store: st, producer: producer, server: srv}
}

func (f *apiFixture) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(f.server.URL+path, "application/json", &buf)
	assert.NoError(t, err)
	return resp
}

func (f *apiFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	assert.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestSubmitJobAccepted(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/v1/jobs", map[string]interface{}{
		"hash":            "5d41402abc4b2a76b9719d911017c592",
		"hash_type_id":    0,
		"timeout_seconds": 120,
		"priority":        "HIGH",
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body struct {
		JobID          string `json:"job_id"`
		Status         string `json:"status"`
		Priority       string `json:"priority"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	decode(t, resp, &body)

	assert.NotEmpty(t, body.JobID)
	assert.Equal(t, "PENDING", body.Status)
	assert.Equal(t, "HIGH", body.Priority)
	assert.Equal(t, 120, body.TimeoutSeconds)

	// The record is persisted before the task is enqueued.
	job, err := f.store.Get(context.Background(), body.JobID)
	assert.NoError(t, err)
	assert.NotNil(t, job)
	assert.Equal(t, models.StatusPending, job.Status)
	assert.NotNil(t, job.SubmittedAt)

	assert.Len(t, f.producer.tasks, 1)
	task := f.producer.tasks[0]
	assert.Equal(t, body.JobID, task.JobID)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", task.Hash)
	assert.Equal(t, models.PriorityHigh, task.Priority)
}

func TestSubmitJobClampsTimeoutAndPriority(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/v1/jobs", map[string]interface{}{
		"hash":            "deadbeef",
		"hash_type_id":    100,
		"timeout_seconds": 999999,
		"priority":        "URGENT",
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body struct {
		Priority       string `json:"priority"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	decode(t, resp, &body)

	assert.Equal(t, "NORMAL", body.Priority)
	assert.Equal(t, 3600, body.TimeoutSeconds)
}

func TestSubmitJobValidation(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"empty hash", map[string]interface{}{"hash": "   ", "hash_type_id": 0}},
		{"missing hash", map[string]interface{}{"hash_type_id": 0}},
		{"unknown hash type", map[string]interface{}{"hash": "deadbeef", "hash_type_id": 424242}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, "/v1/jobs", tt.body)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Empty(t, f.producer.tasks)
}

func TestSubmitJobMalformedBody(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Post(f.server.URL+"/v1/jobs", "application/json", bytes.NewReader([]byte("{not json")))
	assert.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJobStatus(t *testing.T) {
	f := newAPIFixture(t)

	started := time.Now().Add(-20 * time.Second)
	job := models.Job{
		JobID:          "job-1",
		Status:         models.StatusRunning,
		StartedAt:      &started,
		TimeoutSeconds: 100,
		Progress:       35,
	}
	assert.NoError(t, f.store.Set(context.Background(), "job-1", &job, 0))

	resp := f.get(t, "/v1/jobs/job-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body models.Job
	decode(t, resp, &body)
	assert.Equal(t, models.StatusRunning, body.Status)
	assert.Equal(t, 35, body.Progress)
	// Times are recomputed at read time.
	assert.InDelta(t, 20.0, body.TimeElapsed, 2.0)
	assert.InDelta(t, 80, body.TimeRemaining, 2)
}

func TestGetJobStatusNotFound(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/v1/jobs/ghost")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelJob(t *testing.T) {
	f := newAPIFixture(t)

	job := models.Job{JobID: "job-1", Status: models.StatusRunning}
	assert.NoError(t, f.store.Set(context.Background(), "job-1", &job, 0))

	resp := f.post(t, "/v1/jobs/job-1/cancel", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	stored, err := f.store.Get(context.Background(), "job-1")
	assert.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
	assert.Equal(t, "User requested cancellation", *stored.Reason)
}

func TestCancelJobNotFound(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/v1/jobs/ghost/cancel", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelJobTerminalConflict(t *testing.T) {
	f := newAPIFixture(t)

	for _, status := range []models.JobStatus{models.StatusSuccess, models.StatusFailed, models.StatusCancelled} {
		job := models.Job{JobID: "job-" + string(status), Status: status}
		assert.NoError(t, f.store.Set(context.Background(), job.JobID, &job, 0))

		resp := f.post(t, "/v1/jobs/"+job.JobID+"/cancel", nil)
		resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode, "status %s", status)

		// The record is left untouched.
		stored, err := f.store.Get(context.Background(), job.JobID)
		assert.NoError(t, err)
		assert.Equal(t, status, stored.Status)
	}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/v1/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/v1/metrics")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
