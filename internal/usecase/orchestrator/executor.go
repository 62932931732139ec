package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/errs"
)

var ErrDisallowedCommand = errors.New("disallowed command")

const (
	defaultCommandTimeout = 30
	maxCapturedOutput     = 256 * 1024
)

// Always inherited; everything else needs an explicit pass_env entry.
var baseEnvKeys = []string{"PATH", "HOME", "LANG", "TMPDIR"}

type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Executor runs external programs behind a fixed allow-list profile with a
// minimized environment, per-program timeouts and size-capped output.
// The profile can be swapped at runtime (see Watch).
type Executor struct {
	mu          sync.RWMutex
	profile     ExecProfile
	profileFile string
}

func NewExecutor(profileFile string) (*Executor, error) {
	profile, err := LoadExecProfile(profileFile)
	if err != nil {
		return nil, err
	}
	return &Executor{
		profile:     profile,
		profileFile: profileFile,
	}, nil
}

// NewExecutorWithProfile is used by tests and embedded callers that already
// hold a profile.
func NewExecutorWithProfile(profile ExecProfile) *Executor {
	return &Executor{profile: profile}
}

func (e *Executor) currentProfile() ExecProfile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.profile
}

// Reload re-reads the profile file. The old profile stays active when the
// new one fails to parse.
func (e *Executor) Reload(ctx context.Context) error {
	if e.profileFile == "" {
		return errors.New("executor has no profile file")
	}

	profile, err := LoadExecProfile(e.profileFile)
	if err != nil {
		return errs.Wrap(err, "reload executor profile")
	}

	e.mu.Lock()
	e.profile = profile
	e.mu.Unlock()

	logging.Info(ctx, "executor profile reloaded", slog.String("file", e.profileFile))
	return nil
}

// Run executes program with args in dir. A program missing from the
// allow-list, or a first argument outside the program's subcommand list,
// fails with ErrDisallowedCommand before any process is spawned. A timeout
// kills the process and marks the result TimedOut rather than erroring;
// spawn failures are errors.
func (e *Executor) Run(ctx context.Context, program string, args []string, dir string) (ExecResult, error) {
	if ctx == nil {
		return ExecResult{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return ExecResult{}, err
	}

	policy, ok := e.currentProfile().Programs[program]
	if !ok {
		return ExecResult{}, errs.Wrapf(ErrDisallowedCommand, "program %q", program)
	}
	if len(policy.Subcommands) > 0 {
		if len(args) == 0 || !contains(policy.Subcommands, args[0]) {
			sub := ""
			if len(args) > 0 {
				sub = args[0]
			}
			return ExecResult{}, errs.Wrapf(ErrDisallowedCommand, "program %q subcommand %q", program, sub)
		}
	}

	timeout := policy.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, program, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = minimalEnv(e.currentProfile().PassEnv, policy.PassEnv)

	stdout := newCappedBuffer(maxCapturedOutput)
	stderr := newCappedBuffer(maxCapturedOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	started := time.Now()
	runErr := cmd.Run()
	duration := time.Since(started)

	result := ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		logging.Warn(ctx, "command timed out",
			slog.String("program", program),
			slog.Duration("after", duration),
		)
		return result, nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return ExecResult{}, errs.Wrapf(runErr, "run %s", program)
	}

	return result, nil
}

func minimalEnv(globalPass []string, programPass []string) []string {
	keys := make([]string, 0, len(baseEnvKeys)+len(globalPass)+len(programPass))
	keys = append(keys, baseEnvKeys...)
	keys = append(keys, globalPass...)
	keys = append(keys, programPass...)

	env := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if value, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+value)
		}
	}
	return env
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

// cappedBuffer keeps the first limit bytes and silently drops the rest so a
// runaway process cannot exhaust memory through captured output.
type cappedBuffer struct {
	limit     int
	buf       bytes.Buffer
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
