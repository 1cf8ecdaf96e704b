package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ndquoc/recon-be/internal/result"
	"github.com/ndquoc/recon-be/internal/sandbox"
)

// ErrToolNotFound is returned when a tool id does not match any registered tool.
var ErrToolNotFound = errors.New("tool not found")

// ExecContext is the ephemeral environment for one job execution attempt. It
// is owned exclusively by the worker slot running the job.
type ExecContext struct {
	JobID   string
	Workdir string
	Timeout time.Duration
	Runner  *sandbox.Runner
	Logger  *slog.Logger
}

// ParseResult is the normalized output of one tool run.
type ParseResult struct {
	Entities []result.Entity
	Stats    map[string]any
}

// Tool is the uniform plugin contract. Execute may run external processes,
// reach the network, and read/write inside the workdir; it must observe
// context cancellation. Descriptor().Validate and Parse are deterministic and
// side-effect-free so retries stay safe.
type Tool interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, ec *ExecContext, params map[string]any) ([]byte, error)
	Parse(ec *ExecContext, raw []byte) (ParseResult, error)
}

// Registry is the static tool catalog. Tools are registered once at startup
// and listed in registration order.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// DefaultRegistry returns the registry with all built-in tools.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(NewAmass())
	r.MustRegister(NewSherlock())
	r.MustRegister(NewExiftool())
	return r
}

// Register adds a tool to the catalog. Duplicate ids are rejected.
func (r *Registry) Register(t Tool) error {
	id := t.Descriptor().ID
	if id == "" {
		return errors.New("tool id is required")
	}
	if _, exists := r.tools[id]; exists {
		return fmt.Errorf("tool %q already registered", id)
	}
	r.tools[id] = t
	r.order = append(r.order, id)
	return nil
}

// MustRegister panics on registration failure. Intended for startup wiring.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns the tool for id or ErrToolNotFound.
func (r *Registry) Get(id string) (Tool, error) {
	t, ok := r.tools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, id)
	}
	return t, nil
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	descriptors := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		descriptors = append(descriptors, r.tools[id].Descriptor())
	}
	return descriptors
}
