package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndquoc/recon-be/internal/ratelimit"
	"github.com/ndquoc/recon-be/internal/sandbox"
	"github.com/ndquoc/recon-be/internal/tool"
)

type panickyTool struct{}

func (p *panickyTool) Descriptor() tool.Descriptor { return tool.Descriptor{ID: "panicky"} }

func (p *panickyTool) Execute(context.Context, *tool.ExecContext, map[string]any) ([]byte, error) {
	panic("nil map write")
}

func (p *panickyTool) Parse(*tool.ExecContext, []byte) (tool.ParseResult, error) {
	return tool.ParseResult{}, nil
}

func TestWorker_ExecuteTool_PanicGuard(t *testing.T) {
	w := testWorker()

	_, err := w.executeTool(context.Background(), &panickyTool{}, &tool.ExecContext{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool panicked: nil map write")
}

func TestWorker_AwaitAdmission(t *testing.T) {
	t.Run("admitted immediately when under limit", func(t *testing.T) {
		w := testWorker()
		w.limiter = ratelimit.NewLimiter(ratelimit.Rule{LimitPerWindow: 5, Window: time.Minute}, nil)

		assert.NoError(t, w.awaitAdmission(context.Background(), "amass"))
	})

	t.Run("waits out the window then admits", func(t *testing.T) {
		w := testWorker()
		w.limiter = ratelimit.NewLimiter(ratelimit.Rule{LimitPerWindow: 1, Window: 30 * time.Millisecond}, nil)
		require.NoError(t, w.limiter.Check("amass"))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		start := time.Now()
		require.NoError(t, w.awaitAdmission(ctx, "amass"))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("gives up when the job deadline expires first", func(t *testing.T) {
		w := testWorker()
		w.limiter = ratelimit.NewLimiter(ratelimit.Rule{LimitPerWindow: 1, Window: time.Hour}, nil)
		require.NoError(t, w.limiter.Check("amass"))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		err := w.awaitAdmission(ctx, "amass")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "sandbox timeout",
			err:  sandbox.ErrExecutionTimeout,
			want: "execution timed out after 5s",
		},
		{
			name: "context deadline",
			err:  context.DeadlineExceeded,
			want: "execution timed out after 5s",
		},
		{
			name: "tool error",
			err:  errors.New("exit status 127"),
			want: "execution error: exit status 127",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failureReason(tt.err, 5*time.Second))
		})
	}
}
