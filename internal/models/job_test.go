package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusSuccess.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
}

func TestNormalizePriority(t *testing.T) {
	assert.Equal(t, PriorityHigh, NormalizePriority(PriorityHigh))
	assert.Equal(t, PriorityNormal, NormalizePriority(PriorityNormal))
	assert.Equal(t, PriorityLow, NormalizePriority(PriorityLow))
	assert.Equal(t, PriorityNormal, NormalizePriority(""))
	assert.Equal(t, PriorityNormal, NormalizePriority("urgent"))
}

func TestMergeAppliesOnlyPatchedFields(t *testing.T) {
	submitted := time.Now().Add(-time.Minute)
	old := Job{
		Version:        3,
		JobID:          "job-1",
		Status:         StatusRunning,
		SubmittedAt:    &submitted,
		HashTypeID:     100,
		TimeoutSeconds: 120,
		Priority:       PriorityHigh,
		Progress:       35,
		CurrentPhase:   "Phase 2: Rule-Based Attack",
		PhaseNumber:    2,
	}

	merged := Merge(old, JobPatch{
		Progress:    IntPtr(60),
		PhaseNumber: IntPtr(3),
	})

	assert.Equal(t, 60, merged.Progress)
	assert.Equal(t, 3, merged.PhaseNumber)
	// Untouched fields survive the merge.
	assert.Equal(t, StatusRunning, merged.Status)
	assert.Equal(t, "job-1", merged.JobID)
	assert.Equal(t, 100, merged.HashTypeID)
	assert.Equal(t, 120, merged.TimeoutSeconds)
	assert.Equal(t, PriorityHigh, merged.Priority)
	assert.Equal(t, &submitted, merged.SubmittedAt)
	assert.Equal(t, "Phase 2: Rule-Based Attack", merged.CurrentPhase)
}

func TestMergeBumpsVersion(t *testing.T) {
	old := Job{Version: 7}
	merged := Merge(old, JobPatch{})
	assert.Equal(t, 8, merged.Version)

	again := Merge(merged, JobPatch{Progress: IntPtr(15)})
	assert.Equal(t, 9, again.Version)
}

func TestMergeTerminalFields(t *testing.T) {
	old := Job{JobID: "job-2", Status: StatusRunning}

	merged := Merge(old, JobPatch{
		Status:         StatusPtr(StatusSuccess),
		Result:         StringPtr("hunter2"),
		CrackedInPhase: IntPtr(2),
		Attempts:       Int64Ptr(5000123),
	})

	assert.Equal(t, StatusSuccess, merged.Status)
	assert.Equal(t, "hunter2", *merged.Result)
	assert.Equal(t, 2, *merged.CrackedInPhase)
	assert.Equal(t, int64(5000123), *merged.Attempts)
	assert.Nil(t, merged.Reason)
	assert.Nil(t, merged.LastPhase)
}

func TestRecomputeTimes(t *testing.T) {
	now := time.Now()

	t.Run("running job derives elapsed and remaining", func(t *testing.T) {
		started := now.Add(-30 * time.Second)
		job := Job{Status: StatusRunning, StartedAt: &started, TimeoutSeconds: 100}
		job.RecomputeTimes(now)
		assert.InDelta(t, 30.0, job.TimeElapsed, 0.01)
		assert.Equal(t, 70, job.TimeRemaining)
	})

	t.Run("overrun running job floors remaining at zero", func(t *testing.T) {
		started := now.Add(-200 * time.Second)
		job := Job{Status: StatusRunning, StartedAt: &started, TimeoutSeconds: 100}
		job.RecomputeTimes(now)
		assert.Equal(t, 0, job.TimeRemaining)
	})

	t.Run("terminal job always reports zero remaining", func(t *testing.T) {
		job := Job{Status: StatusSuccess, TimeoutSeconds: 100, TimeRemaining: 42, TimeElapsed: 12.5}
		job.RecomputeTimes(now)
		assert.Equal(t, 0, job.TimeRemaining)
		assert.Equal(t, 12.5, job.TimeElapsed)
	})

	t.Run("pending job is untouched", func(t *testing.T) {
		job := Job{Status: StatusPending, TimeoutSeconds: 100, TimeRemaining: 100}
		job.RecomputeTimes(now)
		assert.Equal(t, 100, job.TimeRemaining)
	})
}
