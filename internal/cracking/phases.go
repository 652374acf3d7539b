package cracking

import (
	"context"
	"path/filepath"

	"github.com/MoldoAndr/hashbreaker/internal/config"
	"github.com/MoldoAndr/hashbreaker/internal/generator"
	"github.com/MoldoAndr/hashbreaker/internal/hashcat"
	"github.com/MoldoAndr/hashbreaker/internal/models"
	"github.com/MoldoAndr/hashbreaker/pkg/debug"
)

// Engine abstracts the hashcat executor so phases can be tested with a
// stub tool
type Engine interface {
	Run(ctx context.Context, req hashcat.Request) (*hashcat.Result, error)
}

// phase1AttemptEstimate approximates the phase-1 wordlist size when the
// tool drives the attack; the CPU fallback measures exact counts.
const phase1AttemptEstimate = 100000

// commonMasks are the fixed character-class patterns tried by phase 4,
// in order.
var commonMasks = []string{
	"?l?l?l?l?l?l?l?l", // 8 lowercase
	"?u?l?l?l?l?l?l",   // 1 uppercase + 6 lowercase
	"?l?l?l?l?l?l?d",   // 6 lowercase + 1 digit
	"?l?l?l?l?l?l?l?d", // 7 lowercase + 1 digit
	"?a?a?a?a?a?a?a",   // 7 printable ASCII
}

// PhaseRunner executes the four attack phases against the engine. All
// state comes from the config and injected collaborators; phases
// themselves are stateless.
type PhaseRunner struct {
	cfg    *config.Config
	engine Engine
	gen    generator.Generator
}

// NewPhaseRunner creates a phase runner
func NewPhaseRunner(cfg *config.Config, engine Engine, gen generator.Generator) *PhaseRunner {
	return &PhaseRunner{cfg: cfg, engine: engine, gen: gen}
}

// QuickDictionary runs phase 1: a straight attack over a small curated
// wordlist, with an in-process CPU fallback when no compute device is
// available.
func (p *PhaseRunner) QuickDictionary(ctx context.Context, targetHash string, hashTypeID, timeoutSeconds int) models.PhaseResult {
	wordlist := filepath.Join(p.cfg.WordlistsDir, "top100k.txt")

	debug.Info("Phase 1: Quick Dictionary Attack (timeout=%ds)", timeoutSeconds)

	result, err := p.engine.Run(ctx, hashcat.Request{
		TargetHash:     targetHash,
		HashTypeID:     hashTypeID,
		AttackMode:     hashcat.AttackModeStraight,
		AttackArgs:     []string{wordlist},
		TimeoutSeconds: timeoutSeconds,
	})
	if err != nil {
		debug.Error("Phase 1 error: %v", err)
		return models.PhaseResult{Phase: 1, Err: err.Error()}
	}

	if result.Cracked {
		debug.Info("Phase 1: Password cracked")
		return models.PhaseResult{
			Cracked:  true,
			Password: result.Password,
			Attempts: phase1AttemptEstimate,
			Phase:    1,
			Method:   "quick_dictionary",
		}
	}

	if result.Kind == hashcat.ErrorNoDevice {
		debug.Warning("Phase 1: Hashcat requires a compute device, using CPU fallback")
		return p.cpuDictionary(targetHash, hashTypeID, wordlist, timeoutSeconds)
	}

	if result.TimedOut {
		debug.Warning("Phase 1: Timeout after %ds", timeoutSeconds)
		return models.PhaseResult{Attempts: phase1AttemptEstimate, Phase: 1, TimedOut: true}
	}

	debug.Info("Phase 1: No matches found (exit code %d)", result.ExitCode)
	return models.PhaseResult{Attempts: phase1AttemptEstimate, Phase: 1}
}

// RuleBased runs phase 2: a straight attack with a mutation rules file
// over a larger wordlist. The attempt count is a configured estimate,
// not a measurement.
func (p *PhaseRunner) RuleBased(ctx context.Context, targetHash string, hashTypeID, timeoutSeconds int) models.PhaseResult {
	wordlist := filepath.Join(p.cfg.WordlistsDir, "rockyou.txt")
	rulesFile := filepath.Join(p.cfg.RulesDir, "best64.rule")

	debug.Info("Phase 2: Rule-Based Attack (timeout=%ds)", timeoutSeconds)

	result, err := p.engine.Run(ctx, hashcat.Request{
		TargetHash:     targetHash,
		HashTypeID:     hashTypeID,
		AttackMode:     hashcat.AttackModeStraight,
		AttackArgs:     []string{"-r", rulesFile, wordlist},
		TimeoutSeconds: timeoutSeconds,
	})
	if err != nil {
		debug.Error("Phase 2 error: %v", err)
		return models.PhaseResult{Phase: 2, Err: err.Error()}
	}

	if result.Cracked {
		debug.Info("Phase 2: Password cracked")
		return models.PhaseResult{
			Cracked:  true,
			Password: result.Password,
			Attempts: p.cfg.Phase2AttemptEstimate,
			Phase:    2,
			Method:   "rule_based",
		}
	}

	if result.TimedOut {
		debug.Warning("Phase 2: Timeout after %ds", timeoutSeconds)
		return models.PhaseResult{Attempts: p.cfg.Phase2AttemptEstimate, Phase: 2, TimedOut: true}
	}

	debug.Info("Phase 2: No matches found")
	return models.PhaseResult{Attempts: p.cfg.Phase2AttemptEstimate, Phase: 2}
}

// AIGeneration runs phase 3: candidates pulled from the generation
// service and streamed to the tool over stdin. Attempts are the
// engine's measured write count.
func (p *PhaseRunner) AIGeneration(ctx context.Context, targetHash string, hashTypeID, timeoutSeconds int) models.PhaseResult {
	debug.Info("Phase 3: AI Generation (timeout=%ds, count=%d)", timeoutSeconds, p.cfg.Phase3Total)

	stream := generator.NewStream(ctx, p.gen, p.cfg.Phase3Total, p.cfg.Phase3BatchSize)

	result, err := p.engine.Run(ctx, hashcat.Request{
		TargetHash:     targetHash,
		HashTypeID:     hashTypeID,
		AttackMode:     hashcat.AttackModeStraight,
		TimeoutSeconds: timeoutSeconds,
		Candidates:     stream,
	})
	if err != nil {
		debug.Error("Phase 3 error: %v", err)
		return models.PhaseResult{Phase: 3, Err: err.Error()}
	}

	attempts := int64(p.cfg.Phase3Total)
	if result.AttemptsMeasured {
		attempts = result.Attempts
	}

	if result.Cracked {
		debug.Info("Phase 3: Password cracked with AI-generated candidate")
		return models.PhaseResult{
			Cracked:  true,
			Password: result.Password,
			Attempts: attempts,
			Phase:    3,
			Method:   "pagpassgpt",
		}
	}

	if result.TimedOut {
		debug.Warning("Phase 3: Timeout after %ds", timeoutSeconds)
		return models.PhaseResult{Attempts: attempts, Phase: 3, TimedOut: true}
	}

	debug.Info("Phase 3: No matches found")
	return models.PhaseResult{Attempts: attempts, Phase: 3}
}

// MaskAttack runs phase 4: a fixed ordered mask list with incrementing
// length. Before each mask the remaining budget is split evenly across
// the masks not yet attempted; shares that round to zero are skipped.
func (p *PhaseRunner) MaskAttack(ctx context.Context, targetHash string, hashTypeID, timeoutSeconds int) models.PhaseResult {
	debug.Info("Phase 4: Mask Attack (timeout=%ds)", timeoutSeconds)

	if timeoutSeconds <= 0 {
		return models.PhaseResult{Phase: 4, TimedOut: true}
	}

	start := timeNow()
	for i, mask := range commonMasks {
		remaining := float64(timeoutSeconds) - timeNow().Sub(start).Seconds()
		masksLeft := len(commonMasks) - i
		share := int(remaining / float64(masksLeft))
		if share <= 0 {
			debug.Debug("Phase 4: Skipping mask %d/%d, no budget left", i+1, len(commonMasks))
			continue
		}

		debug.Debug("Phase 4: Trying mask %d/%d: %s (%ds)", i+1, len(commonMasks), mask, share)

		result, err := p.engine.Run(ctx, hashcat.Request{
			TargetHash: targetHash,
			HashTypeID: hashTypeID,
			AttackMode: hashcat.AttackModeMask,
			AttackArgs: []string{
				mask,
				"--increment",
				"--increment-min", "1",
				"--increment-max", "8",
			},
			TimeoutSeconds: share,
		})
		if err != nil {
			debug.Error("Phase 4 error with mask %q: %v", mask, err)
			continue
		}

		if result.Cracked {
			debug.Info("Phase 4: Password cracked with mask %q", mask)
			return models.PhaseResult{
				Cracked:  true,
				Password: result.Password,
				Phase:    4,
				Method:   "mask_attack",
			}
		}
	}

	debug.Info("Phase 4: No matches found with any mask")
	return models.PhaseResult{Attempts: p.cfg.Phase4AttemptEstimate, Phase: 4}
}
