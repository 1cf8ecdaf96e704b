package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/ndquoc/recon-be/internal/result"
	"github.com/ndquoc/recon-be/internal/sandbox"
)

// Sherlock wraps the sherlock username hunter. One entity of type "account"
// is produced per platform hit.
type Sherlock struct {
	descriptor Descriptor
}

// NewSherlock creates the sherlock tool.
func NewSherlock() *Sherlock {
	return &Sherlock{
		descriptor: Descriptor{
			ID:          "sherlock",
			Name:        "Sherlock",
			Description: "Finds social accounts registered under a username",
			Source:      "social",
			Params: []ParamSpec{
				{Key: "username", Label: "Username", Type: ParamString, Required: true},
				{Key: "nsfw", Label: "Include NSFW sites", Type: ParamBoolean, Default: false},
			},
		},
	}
}

// Descriptor implements Tool.
func (s *Sherlock) Descriptor() Descriptor {
	return s.descriptor
}

// Execute implements Tool.
func (s *Sherlock) Execute(ctx context.Context, ec *ExecContext, params map[string]any) ([]byte, error) {
	username := s.descriptor.stringParam(params, "username")

	args := []string{"--print-found", "--no-color", "--timeout", "20"}
	if s.descriptor.boolParam(params, "nsfw") {
		args = append(args, "--nsfw")
	}
	args = append(args, username)

	output, err := ec.Runner.Run(ctx, ec.Workdir, sandbox.CommandSpec{
		Binary: "sherlock",
		Args:   args,
	})
	if err != nil {
		return nil, err
	}

	return output.Stdout, nil
}

// Parse implements Tool. Hit lines look like "[+] GitHub: https://github.com/x".
func (s *Sherlock) Parse(ec *ExecContext, raw []byte) (ParseResult, error) {
	var entities []result.Entity

	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "[+] ") {
			continue
		}

		platform, url, found := strings.Cut(strings.TrimPrefix(line, "[+] "), ": ")
		if !found || url == "" {
			continue
		}

		entity, err := result.New(ec.JobID, "account", map[string]any{
			"platform": strings.TrimSpace(platform),
			"url":      strings.TrimSpace(url),
		})
		if err != nil {
			return ParseResult{}, fmt.Errorf("failed to build account entity: %w", err)
		}
		entities = append(entities, entity)
	}

	return ParseResult{
		Entities: entities,
		Stats:    map[string]any{"accounts": len(entities)},
	}, nil
}
