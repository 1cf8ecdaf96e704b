package sandbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunner(t *testing.T) *Runner {
	t.Helper()
	return NewRunner(Config{
		Mode:      ModeNative,
		KillGrace: time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunner_Run(t *testing.T) {
	t.Run("captures stdout of a successful command", func(t *testing.T) {
		r := testRunner(t)

		output, err := r.Run(context.Background(), t.TempDir(), CommandSpec{
			Binary: "echo",
			Args:   []string{"www.example.com"},
		})
		require.NoError(t, err)
		assert.Equal(t, "www.example.com\n", string(output.Stdout))
		assert.Equal(t, 0, output.ExitCode)
		assert.Greater(t, output.Duration, time.Duration(0))
	})

	t.Run("runs inside the given workdir", func(t *testing.T) {
		r := testRunner(t)
		workdir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(workdir, "probe.txt"), []byte("x"), 0o644))

		output, err := r.Run(context.Background(), workdir, CommandSpec{
			Binary: "ls",
		})
		require.NoError(t, err)
		assert.Contains(t, string(output.Stdout), "probe.txt")
	})

	t.Run("empty command is rejected", func(t *testing.T) {
		r := testRunner(t)

		_, err := r.Run(context.Background(), t.TempDir(), CommandSpec{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty command")
	})

	t.Run("missing binary is rejected", func(t *testing.T) {
		r := testRunner(t)

		_, err := r.Run(context.Background(), t.TempDir(), CommandSpec{
			Binary: "definitely-not-installed-anywhere",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "binary not found")
	})

	t.Run("non-zero exit carries the code and stderr", func(t *testing.T) {
		r := testRunner(t)

		output, err := r.Run(context.Background(), t.TempDir(), CommandSpec{
			Binary: "sh",
			Args:   []string{"-c", "echo partial; echo broken >&2; exit 3"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exited with code 3")
		assert.Equal(t, 3, output.ExitCode)

		// Partial output keeps its forensic value
		assert.Equal(t, "partial\n", string(output.Stdout))
		assert.Contains(t, string(output.Stderr), "broken")
	})

	t.Run("deadline kills the process and reports timeout", func(t *testing.T) {
		r := testRunner(t)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := r.Run(ctx, t.TempDir(), CommandSpec{
			Binary: "sleep",
			Args:   []string{"30"},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExecutionTimeout)
		assert.Less(t, time.Since(start), 10*time.Second, "process must not run to completion")
	})
}

func TestRunner_BuildIsolatedCmd(t *testing.T) {
	r := NewRunner(Config{
		Mode:      ModeIsolated,
		Image:     "recon-tools:latest",
		KillGrace: time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	cmd := r.buildIsolatedCmd(context.Background(), "/tmp/job-1", CommandSpec{
		Binary: "amass",
		Args:   []string{"enum", "-d", "example.com"},
		Env:    []string{"HOME=/work"},
	})

	require.NotEmpty(t, cmd.Args)
	assert.Contains(t, cmd.Args[0], "docker")
	assert.Contains(t, cmd.Args, "--rm")
	assert.Contains(t, cmd.Args, "/tmp/job-1:/work")
	assert.Contains(t, cmd.Args, "recon-tools:latest")

	// Tool and its args come after the image so docker cannot misparse them
	imageIdx := indexOf(cmd.Args, "recon-tools:latest")
	require.Greater(t, imageIdx, 0)
	assert.Equal(t, []string{"amass", "enum", "-d", "example.com"}, cmd.Args[imageIdx+1:])
}

func indexOf(list []string, want string) int {
	for i, s := range list {
		if s == want {
			return i
		}
	}
	return -1
}

func TestWorkdirs(t *testing.T) {
	base := filepath.Join(t.TempDir(), "jobs")
	w, err := NewWorkdirs(base)
	require.NoError(t, err)
	assert.DirExists(t, base)

	first, err := w.Create("job-1")
	require.NoError(t, err)
	assert.DirExists(t, first)

	second, err := w.Create("job-1")
	require.NoError(t, err)

	// Each attempt gets its own directory, never a reused one
	assert.NotEqual(t, first, second)
}
