package hashcat

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MoldoAndr/hashbreaker/pkg/debug"
)

// Attack modes as understood by hashcat.
const (
	AttackModeStraight = 0
	AttackModeMask     = 3
)

const (
	// stdinFlushInterval is how many streamed candidates are written
	// between explicit flushes of the subprocess stdin buffer.
	stdinFlushInterval = 1000
	// cancelPollInterval is how many streamed candidates are written
	// between checks of the caller's context.
	cancelPollInterval = 1000
)

// ErrorKind classifies a hashcat failure into the closed set of
// conditions callers act on. Callers switch on the kind, never on raw
// stderr text.
type ErrorKind int

const (
	// ErrorNone means hashcat ran without a recognized failure condition.
	ErrorNone ErrorKind = iota
	// ErrorNoDevice means hashcat found no usable compute device.
	ErrorNoDevice
)

// String returns a stable label for the error kind
func (k ErrorKind) String() string {
	switch k {
	case ErrorNoDevice:
		return "no_device"
	default:
		return ""
	}
}

// noDeviceTokens are the stderr substrings that indicate hashcat could
// not find a usable compute device.
var noDeviceTokens = []string{
	"no opencl",
	"no cuda",
	"no hip",
	"no devices found",
	"no devices available",
}

// CandidateStream yields plaintext candidates for streaming-stdin
// attacks. Next returns false when the stream is exhausted.
type CandidateStream interface {
	Next() (string, bool)
}

// Request describes one hashcat invocation
type Request struct {
	TargetHash     string
	HashTypeID     int
	AttackMode     int
	AttackArgs     []string
	TimeoutSeconds int
	// Candidates switches the invocation to streaming-stdin mode when
	// non-nil; AttackArgs must not name a wordlist in that case.
	Candidates CandidateStream
}

// Result is the outcome of one hashcat invocation
type Result struct {
	Cracked  bool
	Password string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
	Kind     ErrorKind
	// Attempts is the measured stdin write count in streaming mode.
	// AttemptsMeasured is false in batch mode, where the tool does not
	// report per-candidate counts.
	Attempts         int64
	AttemptsMeasured bool
}

// Executor invokes the hashcat binary. It never retries; retry policy
// lives in the dispatcher.
type Executor struct {
	binPath        string
	force          bool
	potfileDisable bool
}

// NewExecutor creates a hashcat executor
func NewExecutor(binPath string, force, potfileDisable bool) *Executor {
	return &Executor{
		binPath:        binPath,
		force:          force,
		potfileDisable: potfileDisable,
	}
}

// Run executes one attack and parses its outcome. The returned error is
// reserved for environment failures (temp dir, process spawn); a hash
// that was not cracked is not an error.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	normalizedHash := strings.TrimSpace(req.TargetHash)
	timeout := req.TimeoutSeconds
	if timeout < 1 {
		timeout = 1
	}
	start := time.Now()

	tmpDir, err := os.MkdirTemp("", "hashcat_")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	hashFile := filepath.Join(tmpDir, "hashes.txt")
	if err := os.WriteFile(hashFile, []byte(normalizedHash+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("failed to write hash file: %w", err)
	}
	outfile := filepath.Join(tmpDir, "hashcat.out")

	args := e.buildArgs(req, hashFile, outfile, timeout)
	debug.Debug("Running hashcat: %s %s", e.binPath, strings.Join(args, " "))

	var result *Result
	if req.Candidates == nil {
		result, err = e.runBatch(ctx, args, timeout)
	} else {
		result, err = e.runStreaming(ctx, args, req.Candidates, timeout, start)
	}
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	result.Password = readOutfile(outfile)
	result.Cracked = result.Password != ""
	result.Kind = classifyStderr(result.Stderr)

	return result, nil
}

func (e *Executor) buildArgs(req Request, hashFile, outfile string, timeout int) []string {
	args := []string{
		"-m", strconv.Itoa(req.HashTypeID),
		"-a", strconv.Itoa(req.AttackMode),
		hashFile,
	}
	args = append(args, req.AttackArgs...)
	args = append(args,
		"--runtime", strconv.Itoa(timeout),
		"--quiet",
		"--outfile", outfile,
		"--outfile-format", "2",
	)
	if e.force {
		args = append(args, "--force")
	}
	if e.potfileDisable {
		args = append(args, "--potfile-disable")
	}
	if req.Candidates != nil {
		args = append(args, "--stdin")
	}
	return args
}

// runBatch runs hashcat to completion, bounded by the timeout
func (e *Executor) runBatch(ctx context.Context, args []string, timeout int) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	timedOut := runCtx.Err() == context.DeadlineExceeded

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if runErr != nil && !timedOut {
		if _, ok := runErr.(*exec.ExitError); !ok {
			return nil, fmt.Errorf("failed to start hashcat: %w", runErr)
		}
	}

	return &Result{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: timedOut,
	}, nil
}

type streamOutcome struct {
	attempts int64
	timedOut bool
}

// runStreaming feeds candidates to hashcat over stdin from a dedicated
// writer goroutine. Writing stops when the stream is exhausted, the
// deadline passes, the context is cancelled, or the process exits;
// stdin is then closed and the process awaited for the remaining
// budget, force-killed on expiry.
func (e *Executor) runStreaming(ctx context.Context, args []string, stream CandidateStream, timeout int, start time.Time) (*Result, error) {
	cmd := exec.Command(e.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to start hashcat: %w", err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	deadline := start.Add(time.Duration(timeout) * time.Second)

	// A subprocess that stops reading stdin leaves the writer blocked
	// inside a pipe write, where the deadline check cannot run. The
	// watchdog kills the process at the deadline (or on caller
	// cancellation) so the blocked write fails with EPIPE and control
	// returns.
	watchdogStop := make(chan struct{})
	go func() {
		select {
		case <-time.After(time.Until(deadline)):
		case <-ctx.Done():
		case <-watchdogStop:
			return
		}
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}()
	defer close(watchdogStop)

	outcomeCh := make(chan streamOutcome, 1)

	go func() {
		writer := bufio.NewWriter(stdin)
		var outcome streamOutcome

	feed:
		for {
			if time.Now().After(deadline) {
				outcome.timedOut = true
				break
			}
			select {
			case <-waitCh:
				// Process already exited; stop feeding. Re-arm the
				// channel so the main goroutine observes the exit too.
				waitCh <- nil
				break feed
			default:
			}

			candidate, ok := stream.Next()
			if !ok {
				break
			}
			if candidate == "" {
				continue
			}
			if _, err := writer.WriteString(candidate + "\n"); err != nil {
				// Broken pipe: hashcat went away mid-stream
				break
			}
			outcome.attempts++
			if outcome.attempts%stdinFlushInterval == 0 {
				writer.Flush()
			}
			if outcome.attempts%cancelPollInterval == 0 {
				select {
				case <-ctx.Done():
					break feed
				default:
				}
			}
		}

		writer.Flush()
		stdin.Close()
		outcomeCh <- outcome
	}()

	outcome := <-outcomeCh

	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}

	timedOut := outcome.timedOut
	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-time.After(remaining):
		timedOut = true
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		waitErr = <-waitCh
	}

	// A watchdog kill surfaces here as a broken-pipe break rather than
	// a deadline observation; recover the timeout flag from the clock.
	if !timedOut && !time.Now().Before(deadline) {
		timedOut = true
	}

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		debug.Debug("Hashcat streaming exit: %v", waitErr)
	}

	return &Result{
		ExitCode:         exitCode,
		Stdout:           stdout.String(),
		Stderr:           stderr.String(),
		TimedOut:         timedOut,
		Attempts:         outcome.attempts,
		AttemptsMeasured: true,
	}, nil
}

// readOutfile extracts the cracked plaintext from a hashcat outfile.
// The tool writes "hash:plaintext"; everything after the first colon is
// the password. Missing or unparsable files yield an empty string.
func readOutfile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.Contains(line, ":") {
			continue
		}
		return strings.TrimSpace(line[strings.Index(line, ":")+1:])
	}
	if err := scanner.Err(); err != nil {
		debug.Warning("Failed reading hashcat outfile: %v", err)
	}
	return ""
}

func classifyStderr(stderr string) ErrorKind {
	if stderr == "" {
		return ErrorNone
	}
	lowered := strings.ToLower(stderr)
	for _, token := range noDeviceTokens {
		if strings.Contains(lowered, token) {
			return ErrorNoDevice
		}
	}
	return ErrorNone
}
