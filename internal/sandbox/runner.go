// Package sandbox executes one tool invocation inside an isolated working
// directory with a hard timeout.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// Execution modes.
const (
	ModeNative   = "native"   // tool runs as a direct subprocess
	ModeIsolated = "isolated" // tool runs inside a container boundary
)

// ErrExecutionTimeout is returned when a tool exceeds its execution deadline.
var ErrExecutionTimeout = errors.New("execution timed out")

// CommandSpec describes one external tool invocation.
type CommandSpec struct {
	Binary string
	Args   []string
	Env    []string
}

// Output captures what the tool produced before it exited.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Config holds sandbox runner settings.
type Config struct {
	Mode      string        // native or isolated
	Image     string        // container image for isolated mode
	KillGrace time.Duration // grace between cancellation and SIGKILL
}

// Runner executes commands under the configured containment mode. The mode is
// a per-process configuration choice, not negotiated per tool.
type Runner struct {
	config Config
	logger *slog.Logger
}

// NewRunner creates a new Runner instance.
func NewRunner(config Config, logger *slog.Logger) *Runner {
	if config.KillGrace <= 0 {
		config.KillGrace = 5 * time.Second
	}
	return &Runner{
		config: config,
		logger: logger,
	}
}

// Mode returns the configured containment mode.
func (r *Runner) Mode() string {
	return r.config.Mode
}

// Run executes spec with workdir as the working directory. The context carries
// the job's deadline; on expiry the process is cancelled and, after the kill
// grace, force-terminated. The collected output is returned even on failure so
// partial results keep their forensic value.
func (r *Runner) Run(ctx context.Context, workdir string, spec CommandSpec) (*Output, error) {
	if spec.Binary == "" {
		return nil, errors.New("empty command")
	}

	var cmd *exec.Cmd
	if r.config.Mode == ModeIsolated {
		cmd = r.buildIsolatedCmd(ctx, workdir, spec)
	} else {
		absPath, err := exec.LookPath(spec.Binary)
		if err != nil {
			return nil, fmt.Errorf("binary not found: %w", err)
		}
		cmd = exec.CommandContext(ctx, absPath, spec.Args...)
		cmd.Dir = workdir
		cmd.Env = spec.Env
	}
	cmd.WaitDelay = r.config.KillGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("Running sandboxed command",
		slog.String("binary", spec.Binary),
		slog.String("mode", r.config.Mode),
		slog.String("workdir", workdir),
	)

	startedAt := time.Now()
	runErr := cmd.Run()

	output := &Output{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(startedAt),
	}

	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return output, fmt.Errorf("%w after %s", ErrExecutionTimeout, output.Duration.Round(time.Millisecond))
		}
		if ctx.Err() == context.Canceled {
			return output, fmt.Errorf("execution cancelled: %w", ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			output.ExitCode = exitErr.ExitCode()
			return output, fmt.Errorf("tool exited with code %d: %s", output.ExitCode, firstLine(output.Stderr))
		}
		return output, fmt.Errorf("failed to run tool: %w", runErr)
	}

	return output, nil
}

// buildIsolatedCmd wraps the invocation in a throwaway container with the
// workdir bind-mounted as the only writable path.
func (r *Runner) buildIsolatedCmd(ctx context.Context, workdir string, spec CommandSpec) *exec.Cmd {
	args := []string{
		"run", "--rm",
		"--network", "bridge",
		"-v", workdir + ":/work",
		"-w", "/work",
	}
	for _, env := range spec.Env {
		args = append(args, "-e", env)
	}
	args = append(args, r.config.Image, spec.Binary)
	args = append(args, spec.Args...)

	return exec.CommandContext(ctx, "docker", args...)
}

func firstLine(b []byte) string {
	if idx := bytes.IndexByte(b, '\n'); idx >= 0 {
		b = b[:idx]
	}
	const maxLen = 200
	if len(b) > maxLen {
		b = b[:maxLen]
	}
	return string(b)
}
