package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Workdirs allocates job-exclusive working directories. A directory is never
// shared between jobs and never reused across retries; retries of the same
// job get a fresh directory.
type Workdirs struct {
	base string
}

// NewWorkdirs ensures the base directory exists and returns the allocator.
func NewWorkdirs(base string) (*Workdirs, error) {
	if base == "" {
		base = filepath.Join(os.TempDir(), "recon-jobs")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workdir base: %w", err)
	}
	return &Workdirs{base: base}, nil
}

// Create allocates a fresh directory for one execution attempt of jobID.
func (w *Workdirs) Create(jobID string) (string, error) {
	attempt := fmt.Sprintf("%s-%d", jobID, time.Now().UnixNano())
	dir := filepath.Join(w.base, attempt)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workdir: %w", err)
	}
	return dir, nil
}
