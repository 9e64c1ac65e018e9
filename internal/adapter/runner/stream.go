package runner

import (
	"bufio"
	"context"
	"log/slog"
	"os/exec"

	"agentmux/internal/domain"
)

// Maximum stderr to buffer during streaming (1 MiB). Stderr must be drained
// so the child never deadlocks on a full pipe.
const maxStreamingStderrBytes = 1024 * 1024

// Scanner line limit for streaming output (4 MiB); stream-json events from
// the wrapped CLIs can carry whole assistant turns on one line.
const maxStreamLineBytes = 4 * 1024 * 1024

// lineDecoder turns one stdout line into a delta. emit=false skips the
// line; a delta with Done set terminates the stream.
type lineDecoder func(line []byte) (delta domain.StreamDelta, emit bool)

// streamCommand spawns the child and decodes its stdout line-by-line into a
// delta channel. Each delta is sent as soon as its line is fully read.
//
// The child's lifetime is bound to ctx: cancelling it kills the child, and
// the child is reaped on every path before the channel closes. Exactly one
// terminal (Done) delta is delivered, last, possibly carrying Err.
func streamCommand(ctx context.Context, service string, cfg ExecConfig, args []string, decode lineDecoder, logger *slog.Logger) (<-chan domain.StreamDelta, error) {
	op := service + ".CompleteStream"

	dir, err := resolveWorkingDirectory(cfg.WorkingDirectory)
	if err != nil {
		return nil, domain.WrapRunnerError(domain.KindConfig, op, err)
	}

	cmd := newStreamCmd(ctx, cfg, args, dir)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, domain.WrapRunnerError(domain.KindInternal, op, err)
	}
	stderr := newCappedBuffer(maxStreamingStderrBytes)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, classifySpawnError(op, cfg.BinaryPath, err)
	}

	ch := make(chan domain.StreamDelta)
	go func() {
		defer close(ch)

		sentTerminal := false
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxStreamLineBytes)

		for scanner.Scan() {
			delta, emit := decode(scanner.Bytes())
			if !emit {
				continue
			}
			select {
			case ch <- delta:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
			if delta.Done {
				sentTerminal = true
				break
			}
		}
		scanErr := scanner.Err()

		// Reap the child on every path. CommandContext has already killed
		// it if ctx was cancelled.
		waitErr := cmd.Wait()

		if sentTerminal {
			return
		}

		terminal := domain.StreamDelta{Done: true, FinishReason: "stop"}
		switch {
		case ctx.Err() != nil:
			terminal.Err = ctx.Err()
		case scanErr != nil:
			terminal.Err = domain.WrapRunnerError(domain.KindInternal, op, scanErr)
		case waitErr != nil:
			detail := Redact(preview(string(stderr.Bytes()), 500))
			terminal.Err = domain.ExternalService(service, detail)
			logger.Warn("streaming child exited non-zero",
				"runner", service, "error", waitErr)
		}
		select {
		case ch <- terminal:
		case <-ctx.Done():
		}
	}()

	return ch, nil
}

func newStreamCmd(ctx context.Context, cfg ExecConfig, args []string, dir string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, cfg.BinaryPath, args...)
	cmd.Dir = dir
	cmd.Env = append(buildEnv(cfg.AllowedEnvKeys), cfg.ExtraEnv...)
	cmd.WaitDelay = waitDelay
	return cmd
}

// singleDeltaStream adapts a full response into the streaming contract for
// runners whose CLI cannot stream: one content delta, then the terminal.
func singleDeltaStream(resp *domain.ChatResponse) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, 2)
	ch <- domain.StreamDelta{Content: resp.Content}
	ch <- domain.StreamDelta{Done: true, FinishReason: resp.FinishReason}
	close(ch)
	return ch
}
