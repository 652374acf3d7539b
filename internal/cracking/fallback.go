package cracking

import (
	"bufio"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MoldoAndr/hashbreaker/internal/config"
	"github.com/MoldoAndr/hashbreaker/internal/models"
	"github.com/MoldoAndr/hashbreaker/pkg/debug"
)

// timeNow is a seam for tests
var timeNow = time.Now

// cpuDictionary scans the phase-1 wordlist in-process when no compute
// device is available, hashing each candidate with the digest selected
// by the hash type. Attempt counts here are exact.
func (p *PhaseRunner) cpuDictionary(targetHash string, hashTypeID int, wordlist string, timeoutSeconds int) models.PhaseResult {
	debug.Info("Phase 1: Using CPU-based fallback (timeout=%ds)", timeoutSeconds)

	digest := digestFor(hashTypeID)
	if digest == nil {
		debug.Warning("Phase 1: CPU fallback unsupported for hash type %d", hashTypeID)
		return models.PhaseResult{
			Phase: 1,
			Err:   fmt.Sprintf("unsupported hash type for CPU fallback: %d", hashTypeID),
		}
	}

	f, err := os.Open(wordlist)
	if err != nil {
		debug.Error("Phase 1 CPU fallback error: %v", err)
		return models.PhaseResult{Phase: 1, Err: err.Error()}
	}
	defer f.Close()

	normalized := strings.ToLower(strings.TrimSpace(targetHash))
	deadline := timeNow().Add(time.Duration(timeoutSeconds) * time.Second)
	var attempts int64

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if timeNow().After(deadline) {
			debug.Warning("Phase 1: CPU fallback timeout after %d attempts", attempts)
			return models.PhaseResult{Attempts: attempts, Phase: 1, TimedOut: true}
		}

		password := strings.TrimSpace(scanner.Text())
		if password == "" {
			continue
		}
		attempts++

		if digest([]byte(password)) == normalized {
			debug.Info("Phase 1: Password cracked (CPU fallback) after %d attempts", attempts)
			return models.PhaseResult{
				Cracked:  true,
				Password: password,
				Attempts: attempts,
				Phase:    1,
				Method:   "cpu_dictionary",
			}
		}
	}
	if err := scanner.Err(); err != nil {
		debug.Error("Phase 1 CPU fallback read error: %v", err)
		return models.PhaseResult{Attempts: attempts, Phase: 1, Err: err.Error()}
	}

	debug.Info("Phase 1: CPU fallback checked %d passwords, no match", attempts)
	return models.PhaseResult{Attempts: attempts, Phase: 1}
}

// digestFor returns a lowercase hex digest function for the hash types
// the CPU fallback supports, or nil for anything else.
func digestFor(hashTypeID int) func([]byte) string {
	switch hashTypeID {
	case config.HashTypeMD5:
		return func(b []byte) string {
			sum := md5.Sum(b)
			return hex.EncodeToString(sum[:])
		}
	case config.HashTypeSHA1:
		return func(b []byte) string {
			sum := sha1.Sum(b)
			return hex.EncodeToString(sum[:])
		}
	case config.HashTypeSHA256:
		return func(b []byte) string {
			sum := sha256.Sum256(b)
			return hex.EncodeToString(sum[:])
		}
	case config.HashTypeSHA512:
		return func(b []byte) string {
			sum := sha512.Sum512(b)
			return hex.EncodeToString(sum[:])
		}
	default:
		return nil
	}
}
