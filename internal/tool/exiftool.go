package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ndquoc/recon-be/internal/result"
	"github.com/ndquoc/recon-be/internal/sandbox"
)

// Exiftool extracts metadata from a file reachable over HTTP. The file is
// downloaded into the workdir first so exiftool itself never leaves the
// sandbox. One entity of type "metadata" is produced per scanned file.
type Exiftool struct {
	descriptor Descriptor
}

// NewExiftool creates the exiftool tool.
func NewExiftool() *Exiftool {
	return &Exiftool{
		descriptor: Descriptor{
			ID:          "exiftool",
			Name:        "ExifTool",
			Description: "Extracts embedded metadata from a remote document or image",
			Source:      "web",
			Params: []ParamSpec{
				{Key: "url", Label: "File URL", Type: ParamString, Required: true},
				{Key: "detail", Label: "Detail level", Type: ParamEnum, Default: "common", Values: []string{"common", "all"}},
			},
		},
	}
}

// Descriptor implements Tool.
func (e *Exiftool) Descriptor() Descriptor {
	return e.descriptor
}

// Execute implements Tool.
func (e *Exiftool) Execute(ctx context.Context, ec *ExecContext, params map[string]any) ([]byte, error) {
	url := e.descriptor.stringParam(params, "url")

	// Fetch the target into the workdir, then scan the local copy
	if _, err := ec.Runner.Run(ctx, ec.Workdir, sandbox.CommandSpec{
		Binary: "curl",
		Args:   []string{"-sSfL", "--max-time", "60", "-o", "target.bin", url},
	}); err != nil {
		return nil, fmt.Errorf("failed to fetch target: %w", err)
	}

	args := []string{"-json", "-quiet"}
	if e.descriptor.stringParam(params, "detail") == "common" {
		args = append(args, "-common")
	}
	args = append(args, "target.bin")

	output, err := ec.Runner.Run(ctx, ec.Workdir, sandbox.CommandSpec{
		Binary: "exiftool",
		Args:   args,
	})
	if err != nil {
		return nil, err
	}

	return output.Stdout, nil
}

// Parse implements Tool. Exiftool emits a JSON array with one object per file.
func (e *Exiftool) Parse(ec *ExecContext, raw []byte) (ParseResult, error) {
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return ParseResult{}, fmt.Errorf("failed to parse exiftool output: %w", err)
	}

	entities := make([]result.Entity, 0, len(records))
	for _, record := range records {
		delete(record, "SourceFile")
		delete(record, "Directory")

		data, err := json.Marshal(record)
		if err != nil {
			return ParseResult{}, fmt.Errorf("failed to marshal metadata record: %w", err)
		}

		entities = append(entities, result.Entity{
			JobID:     ec.JobID,
			Type:      "metadata",
			Data:      data,
			CreatedAt: time.Now().UTC(),
		})
	}

	return ParseResult{
		Entities: entities,
		Stats:    map[string]any{"files": len(entities)},
	}, nil
}
