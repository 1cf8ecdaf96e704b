package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/ndquoc/recon-be/internal/result"
	"github.com/ndquoc/recon-be/internal/sandbox"
)

// Amass wraps the OWASP Amass subdomain enumerator. One entity of type
// "subdomain" is produced per discovered name.
type Amass struct {
	descriptor Descriptor
}

// NewAmass creates the amass tool.
func NewAmass() *Amass {
	return &Amass{
		descriptor: Descriptor{
			ID:          "amass",
			Name:        "Amass",
			Description: "Enumerates subdomains of a target domain",
			Source:      "amass",
			Params: []ParamSpec{
				{Key: "domain", Label: "Target domain", Type: ParamString, Required: true},
				{Key: "passive", Label: "Passive mode only", Type: ParamBoolean, Default: true},
			},
		},
	}
}

// Descriptor implements Tool.
func (a *Amass) Descriptor() Descriptor {
	return a.descriptor
}

// Execute implements Tool.
func (a *Amass) Execute(ctx context.Context, ec *ExecContext, params map[string]any) ([]byte, error) {
	domain := a.descriptor.stringParam(params, "domain")

	args := []string{"enum", "-nocolor", "-d", domain}
	if a.descriptor.boolParam(params, "passive") {
		args = append(args, "-passive")
	}

	output, err := ec.Runner.Run(ctx, ec.Workdir, sandbox.CommandSpec{
		Binary: "amass",
		Args:   args,
	})
	if err != nil {
		return nil, err
	}

	return output.Stdout, nil
}

// Parse implements Tool. Each non-empty output line is one subdomain.
func (a *Amass) Parse(ec *ExecContext, raw []byte) (ParseResult, error) {
	var entities []result.Entity

	for _, line := range strings.Split(string(raw), "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.ContainsAny(name, " \t") {
			continue
		}

		entity, err := result.New(ec.JobID, "subdomain", map[string]any{
			"value": strings.ToLower(name),
		})
		if err != nil {
			return ParseResult{}, fmt.Errorf("failed to build subdomain entity: %w", err)
		}
		entities = append(entities, entity)
	}

	return ParseResult{
		Entities: entities,
		Stats:    map[string]any{"subdomains": len(entities)},
	}, nil
}
