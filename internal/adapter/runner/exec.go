package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"sync"
	"time"

	"agentmux/internal/domain"
)

// waitDelay is how long Wait allows I/O to drain after the child is killed
// before forcibly closing the pipes. Guarantees Wait returns and the child
// is reaped even if a grandchild holds the pipes open.
const waitDelay = 5 * time.Second

// ExecConfig carries the per-invocation subprocess policy. It is owned by
// one provider instance and never mutated mid-request.
type ExecConfig struct {
	BinaryPath       string
	Timeout          time.Duration
	MaxOutputBytes   int
	AllowedEnvKeys   []string
	WorkingDirectory string
	// ExtraEnv is appended after the allowlist is applied, for values the
	// runner itself injects (never inherited from the parent).
	ExtraEnv []string
}

// ProcessOutcome is the structured result of one subprocess invocation.
// It is created per invocation and discarded after the provider consumes it.
type ProcessOutcome struct {
	ExitCode  int
	Stdout    []byte
	Stderr    []byte
	Truncated bool
	Duration  time.Duration
}

// cappedBuffer collects writes up to a byte cap. Writes past the cap are
// discarded but still reported as consumed so the child never blocks on a
// full pipe; the truncation is recorded instead of silently lost.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.limit - len(b.buf)
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf
}

func (b *cappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// Execute runs one subprocess under the sandbox policy with a hard timeout
// and capped output capture.
//
// Exactly one OS process is spawned and always reaped on every exit path.
// The child's environment contains only the allowlisted keys plus ExtraEnv,
// regardless of the parent's environment. If the child does not exit within
// cfg.Timeout it is killed and the call fails with KindTimeout. Cancelling
// ctx also terminates the child.
func Execute(ctx context.Context, cfg ExecConfig, args []string, stdin string) (*ProcessOutcome, error) {
	const op = "runner.Execute"

	if cfg.Timeout <= 0 {
		return nil, domain.ConfigError(op, "timeout must be positive")
	}
	dir, err := resolveWorkingDirectory(cfg.WorkingDirectory)
	if err != nil {
		return nil, domain.WrapRunnerError(domain.KindConfig, op, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	maxBytes := cfg.MaxOutputBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxOutputBytes
	}
	stdout := newCappedBuffer(maxBytes)
	stderr := newCappedBuffer(maxBytes)

	cmd := exec.CommandContext(runCtx, cfg.BinaryPath, args...)
	cmd.Dir = dir
	cmd.Env = append(buildEnv(cfg.AllowedEnvKeys), cfg.ExtraEnv...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, classifySpawnError(op, cfg.BinaryPath, err)
	}

	waitErr := cmd.Wait()
	duration := time.Since(start)

	switch {
	case runCtx.Err() != nil && ctx.Err() != nil:
		// Caller cancelled; the child is already killed and reaped.
		return nil, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return nil, domain.TimeoutError(op,
			"command timed out after "+cfg.Timeout.String())
	}

	outcome := &ProcessOutcome{
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Duration:  duration,
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
			return outcome, nil
		}
		return nil, domain.WrapRunnerError(domain.KindInternal, op, waitErr)
	}
	return outcome, nil
}

// classifySpawnError maps a Start failure to an error kind. A missing or
// non-executable binary is KindBinaryNotFound; any other OS-level spawn
// failure is KindInternal.
func classifySpawnError(op, binary string, err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return domain.BinaryNotFound(op, binary)
	}
	if errors.Is(err, fs.ErrPermission) {
		return domain.BinaryNotFound(op, binary+" (not executable)")
	}
	return domain.WrapRunnerError(domain.KindInternal, op, err)
}

// failureError builds the ExternalService error for a non-zero exit,
// attributing the failure to the named tool. Stderr is preferred over
// stdout as the detail, redacted and truncated for safety.
func failureError(service string, outcome *ProcessOutcome) error {
	detail := strings.TrimSpace(string(outcome.Stderr))
	if detail == "" {
		detail = strings.TrimSpace(string(outcome.Stdout))
	}
	detail = Redact(preview(detail, 500))
	return domain.ExternalService(service,
		fmt.Sprintf("exited with code %d: %s", outcome.ExitCode, detail))
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
