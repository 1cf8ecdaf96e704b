package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/ndquoc/recon-be/internal/events"
	"github.com/ndquoc/recon-be/internal/queue"
	"github.com/ndquoc/recon-be/internal/result"
	"github.com/ndquoc/recon-be/internal/tool"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEnqueuer struct {
	job *queue.Job
	err error

	gotToolID string
	gotParams map[string]any
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, toolID string, params map[string]any) (*queue.Job, error) {
	f.gotToolID = toolID
	f.gotParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

type fakeJobReader struct {
	jobs    map[string]*queue.Job
	list    []queue.Job
	listErr error
}

func (f *fakeJobReader) GetJob(_ context.Context, jobID string) (*queue.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, queue.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobReader) ListJobs(_ context.Context, _ queue.JobFilter) ([]queue.Job, error) {
	return f.list, f.listErr
}

type fakeResultReader struct {
	entities []result.Entity
	err      error
}

func (f *fakeResultReader) Query(_ context.Context, _ result.Filter) ([]result.Entity, error) {
	return f.entities, f.err
}

func (f *fakeResultReader) Export(_ context.Context, _ result.Filter, enc result.Encoder) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	for _, entity := range f.entities {
		if err := enc.Encode(entity); err != nil {
			return 0, err
		}
	}
	if err := enc.Flush(); err != nil {
		return 0, err
	}
	return len(f.entities), nil
}

// testDeps builds handler dependencies around the given fakes, filling the
// rest with safe defaults.
func testDeps(t *testing.T, mutate func(*Dependencies)) *Dependencies {
	t.Helper()
	deps := &Dependencies{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: tool.DefaultRegistry(),
		Enqueuer: &fakeEnqueuer{},
		Jobs:     &fakeJobReader{jobs: map[string]*queue.Job{}},
		Results:  &fakeResultReader{},
		Broker:   events.NewBroker(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	if mutate != nil {
		mutate(deps)
	}
	return deps
}

// testRouter wires the handlers onto a bare engine the way the router package
// does, without dragging middleware into handler tests.
func testRouter(deps *Dependencies) *gin.Engine {
	r := gin.New()

	jobs := NewJobHandler(deps)
	tools := NewToolHandler(deps)
	results := NewResultHandler(deps)
	stream := NewStreamHandler(deps)

	r.GET("/tools", tools.ListTools)
	r.POST("/jobs", jobs.CreateJob)
	r.GET("/jobs", jobs.ListJobs)
	r.GET("/jobs/:job_id", jobs.GetJob)
	r.GET("/jobs/:job_id/stream", stream.StreamJob)
	r.GET("/results", results.ListResults)
	r.GET("/results/export", results.ExportResults)

	return r
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func requireJSON(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	require.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}
