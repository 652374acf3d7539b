package cracking

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/MoldoAndr/hashbreaker/internal/config"
	"github.com/MoldoAndr/hashbreaker/internal/metrics"
	"github.com/MoldoAndr/hashbreaker/internal/models"
	"github.com/MoldoAndr/hashbreaker/internal/store"
	"github.com/MoldoAndr/hashbreaker/pkg/debug"
)

// Strategy is one phase attack, bounded by its time budget
type Strategy func(ctx context.Context, targetHash string, hashTypeID, timeoutSeconds int) models.PhaseResult

// phaseDefs fixes the UI milestone and labels for each phase. Progress
// milestones are markers shown before the phase runs, not proportional
// to elapsed time.
var phaseDefs = [config.NumPhases]struct {
	label       string
	metricLabel string
	milestone   int
}{
	{"Phase 1: Quick Dictionary Attack", "Quick Dictionary", 15},
	{"Phase 2: Rule-Based Attack", "Rule-Based", 35},
	{"Phase 3: AI Generation", "AI Generation", 60},
	{"Phase 4: Mask Attack", "Mask Attack", 80},
}

// Pipeline sequences the four attack phases over one job, allocating
// time budgets, observing cancellation between phases, and persisting
// every state transition.
//
// State machine: PENDING -> RUNNING -> {SUCCESS | FAILED | CANCELLED},
// all three terminal.
type Pipeline struct {
	cfg        *config.Config
	store      store.JobStore
	metrics    *metrics.Metrics
	strategies [config.NumPhases]Strategy
}

// NewPipeline creates a pipeline driving the given phase runner
func NewPipeline(cfg *config.Config, st store.JobStore, m *metrics.Metrics, runner *PhaseRunner) *Pipeline {
	return NewPipelineWithStrategies(cfg, st, m, [config.NumPhases]Strategy{
		runner.QuickDictionary,
		runner.RuleBased,
		runner.AIGeneration,
		runner.MaskAttack,
	})
}

// NewPipelineWithStrategies creates a pipeline with explicit phase
// strategies. Used by tests to substitute stubs.
func NewPipelineWithStrategies(cfg *config.Config, st store.JobStore, m *metrics.Metrics, strategies [config.NumPhases]Strategy) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		store:      st,
		metrics:    m,
		strategies: strategies,
	}
}

// Execute runs the full pipeline for one job. The returned error is
// reserved for infrastructure failures before the job enters RUNNING
// (store unreachable, record missing); those are retried by the
// dispatcher's redelivery policy. Everything after that point,
// including panics, resolves to a persisted terminal state.
func (p *Pipeline) Execute(ctx context.Context, jobID, targetHash string, hashTypeID, timeoutSeconds int) (final *models.Job, err error) {
	start := time.Now()
	var totalAttempts int64

	current, err := p.store.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", jobID, err)
	}
	if current == nil {
		return nil, fmt.Errorf("job %s not found in store", jobID)
	}
	if current.Status == models.StatusCancelled {
		debug.Info("Job %s: Cancelled before processing started", jobID)
		return p.finishCancelled(ctx, jobID, "Cancelled before processing", 0, 0), nil
	}

	running := models.Merge(*current, models.JobPatch{
		Status:        models.StatusPtr(models.StatusRunning),
		StartedAt:     models.TimePtr(start),
		Progress:      models.IntPtr(0),
		TimeElapsed:   models.Float64Ptr(0),
		TimeRemaining: models.IntPtr(timeoutSeconds),
	})
	running.HashTypeID = hashTypeID
	running.TimeoutSeconds = timeoutSeconds
	if running.SubmittedAt == nil {
		running.SubmittedAt = models.TimePtr(start)
	}
	if err := p.store.Set(ctx, jobID, &running, 0); err != nil {
		return nil, fmt.Errorf("failed to mark job %s running: %w", jobID, err)
	}

	p.metrics.JobsCurrent.WithLabelValues("running").Inc()
	defer p.metrics.JobsCurrent.WithLabelValues("running").Dec()

	debug.Info("Job %s: Starting pipeline (timeout=%ds)", jobID, timeoutSeconds)

	// A panicking phase must not take the worker down with it; the job
	// is recorded FAILED and the pool keeps draining other jobs.
	defer func() {
		if r := recover(); r != nil {
			debug.Error("Job %s: Pipeline panic - %v", jobID, r)
			elapsed := time.Since(start).Seconds()
			final = p.finishFailed(ctx, jobID, fmt.Sprintf("Internal error: %v", r), nil, totalAttempts, elapsed)
			err = nil
		}
	}()

	for i := 0; i < config.NumPhases; i++ {
		phase := i + 1

		if p.isCancelled(ctx, jobID) {
			elapsed := time.Since(start).Seconds()
			return p.finishCancelled(ctx, jobID, "User requested cancellation", totalAttempts, elapsed), nil
		}

		elapsed := time.Since(start).Seconds()
		if elapsed >= float64(timeoutSeconds) {
			break
		}

		// Fractions apply to the original total timeout, then clamp to
		// whatever remains. Rounding (not truncating) keeps fractions
		// like 0.35*100 from losing a second to float representation.
		// A share that rounds to zero is skipped rather than inflated;
		// the budget never exceeds the remaining time.
		budget := math.Min(p.cfg.PhaseBudget(phase, timeoutSeconds), float64(timeoutSeconds)-elapsed)
		phaseTimeout := int(math.Round(budget))
		if phaseTimeout < 1 {
			debug.Debug("Job %s: Skipping phase %d, no budget left", jobID, phase)
			continue
		}

		p.updateProgress(ctx, jobID, phase, elapsed, timeoutSeconds)

		phaseStart := time.Now()
		result := p.strategies[i](ctx, targetHash, hashTypeID, phaseTimeout)
		p.metrics.PhaseDuration.WithLabelValues(phaseDefs[i].metricLabel).Observe(time.Since(phaseStart).Seconds())

		totalAttempts += result.Attempts
		p.metrics.GuessesTotal.WithLabelValues(phaseDefs[i].metricLabel).Add(float64(result.Attempts))

		if result.Err != "" {
			debug.Warning("Job %s: Phase %d reported error: %s", jobID, phase, result.Err)
		}

		if result.Cracked {
			elapsed = time.Since(start).Seconds()
			return p.finishSuccess(ctx, jobID, result.Password, phase, totalAttempts, elapsed), nil
		}
	}

	elapsed := time.Since(start).Seconds()
	debug.Info("Job %s: Password not found after all phases", jobID)
	return p.finishFailed(ctx, jobID, "Password not found after all phases", models.IntPtr(config.NumPhases), totalAttempts, elapsed), nil
}

func (p *Pipeline) updateProgress(ctx context.Context, jobID string, phase int, elapsed float64, timeoutSeconds int) {
	def := phaseDefs[phase-1]
	remaining := timeoutSeconds - int(elapsed)
	if remaining < 0 {
		remaining = 0
	}

	ok, err := p.store.Update(ctx, jobID, models.JobPatch{
		Progress:      models.IntPtr(def.milestone),
		CurrentPhase:  models.StringPtr(def.label),
		PhaseNumber:   models.IntPtr(phase),
		TimeElapsed:   models.Float64Ptr(elapsed),
		TimeRemaining: models.IntPtr(remaining),
	})
	if err != nil {
		debug.Error("Job %s: Failed to update progress: %v", jobID, err)
	} else if !ok {
		debug.Warning("Job %s: Record missing during progress update", jobID)
	}
	debug.Debug("Job %s: Progress %d%% - %s", jobID, def.milestone, def.label)
}

func (p *Pipeline) isCancelled(ctx context.Context, jobID string) bool {
	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		debug.Error("Job %s: Failed to read cancellation flag: %v", jobID, err)
		return false
	}
	return job != nil && job.Status == models.StatusCancelled
}

// finishSuccess persists the terminal SUCCESS record
func (p *Pipeline) finishSuccess(ctx context.Context, jobID, password string, phase int, attempts int64, elapsed float64) *models.Job {
	final := p.persistTerminal(ctx, jobID, models.JobPatch{
		Status:         models.StatusPtr(models.StatusSuccess),
		Result:         models.StringPtr(password),
		CrackedInPhase: models.IntPtr(phase),
		Attempts:       models.Int64Ptr(attempts),
		TimeElapsed:    models.Float64Ptr(elapsed),
		TimeRemaining:  models.IntPtr(0),
		Progress:       models.IntPtr(100),
	})

	p.metrics.JobsTotal.WithLabelValues("success").Inc()
	p.metrics.JobDuration.WithLabelValues("success").Observe(elapsed)

	debug.Info("Job %s: SUCCESS - cracked in phase %d (%.2fs, %d attempts)", jobID, phase, elapsed, attempts)
	return final
}

// finishFailed persists the terminal FAILED record
func (p *Pipeline) finishFailed(ctx context.Context, jobID, reason string, lastPhase *int, attempts int64, elapsed float64) *models.Job {
	final := p.persistTerminal(ctx, jobID, models.JobPatch{
		Status:        models.StatusPtr(models.StatusFailed),
		Reason:        models.StringPtr(reason),
		LastPhase:     lastPhase,
		Attempts:      models.Int64Ptr(attempts),
		TimeElapsed:   models.Float64Ptr(elapsed),
		TimeRemaining: models.IntPtr(0),
		Progress:      models.IntPtr(100),
	})

	p.metrics.JobsTotal.WithLabelValues("failed").Inc()
	p.metrics.JobDuration.WithLabelValues("failed").Observe(elapsed)

	debug.Info("Job %s: FAILED - %s after %.2fs", jobID, reason, elapsed)
	return final
}

// finishCancelled persists the terminal CANCELLED record
func (p *Pipeline) finishCancelled(ctx context.Context, jobID, reason string, attempts int64, elapsed float64) *models.Job {
	final := p.persistTerminal(ctx, jobID, models.JobPatch{
		Status:        models.StatusPtr(models.StatusCancelled),
		Reason:        models.StringPtr(reason),
		Attempts:      models.Int64Ptr(attempts),
		TimeElapsed:   models.Float64Ptr(elapsed),
		TimeRemaining: models.IntPtr(0),
		Progress:      models.IntPtr(100),
	})

	p.metrics.JobsTotal.WithLabelValues("cancelled").Inc()
	p.metrics.JobDuration.WithLabelValues("cancelled").Observe(elapsed)

	debug.Info("Job %s: CANCELLED - %s after %.2fs", jobID, reason, elapsed)
	return final
}

// persistTerminal merges the terminal patch over the current record and
// writes it back with a refreshed TTL. The write runs on a context
// detached from cancellation: a lane kill timeout or shutdown firing
// mid-job must not leave the record RUNNING until TTL expiry. A store
// failure here is logged rather than raised; the merged record is still
// returned so callers see the outcome.
func (p *Pipeline) persistTerminal(ctx context.Context, jobID string, patch models.JobPatch) *models.Job {
	ctx = context.WithoutCancel(ctx)

	current, err := p.store.Get(ctx, jobID)
	if err != nil {
		debug.Error("Job %s: Failed to read record for terminal update: %v", jobID, err)
	}
	if current == nil {
		current = &models.Job{JobID: jobID}
	}

	merged := models.Merge(*current, patch)
	if err := p.store.Set(ctx, jobID, &merged, 0); err != nil {
		debug.Error("Job %s: Failed to persist terminal state: %v", jobID, err)
	}
	return &merged
}
