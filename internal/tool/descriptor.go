// Package tool defines the plugin contract for intelligence-gathering tools
// and the static registry that catalogs them.
package tool

import (
	"fmt"
	"strings"
)

// Parameter types accepted in a ParamSpec.
const (
	ParamString  = "string"
	ParamBoolean = "boolean"
	ParamEnum    = "enum"
	ParamNumber  = "number"
)

// ParamSpec is one typed parameter definition. It drives both input-form
// rendering on the client and server-side validation before enqueue.
type ParamSpec struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Default  any      `json:"default,omitempty"`
	Values   []string `json:"values,omitempty"`
}

// Descriptor identifies a tool and its parameter surface. Descriptors are
// immutable and loaded at process start.
type Descriptor struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Source      string      `json:"source"`
	Params      []ParamSpec `json:"params"`
}

// Validate checks params against the descriptor's ParamSpec. It is pure and
// side-effect-free. A nil return means the params are acceptable; otherwise
// every violation is reported.
func (d Descriptor) Validate(params map[string]any) []string {
	var errs []string

	for _, spec := range d.Params {
		value, present := params[spec.Key]

		if !present || value == nil {
			if spec.Required {
				errs = append(errs, fmt.Sprintf("missing required parameter %q", spec.Key))
			}
			continue
		}

		switch spec.Type {
		case ParamString:
			if _, ok := value.(string); !ok {
				errs = append(errs, fmt.Sprintf("parameter %q must be a string", spec.Key))
			}
		case ParamBoolean:
			if _, ok := value.(bool); !ok {
				errs = append(errs, fmt.Sprintf("parameter %q must be a boolean", spec.Key))
			}
		case ParamNumber:
			switch value.(type) {
			case float64, int, int64:
			default:
				errs = append(errs, fmt.Sprintf("parameter %q must be a number", spec.Key))
			}
		case ParamEnum:
			str, ok := value.(string)
			if !ok {
				errs = append(errs, fmt.Sprintf("parameter %q must be one of [%s]", spec.Key, strings.Join(spec.Values, ", ")))
				continue
			}
			found := false
			for _, allowed := range spec.Values {
				if str == allowed {
					found = true
					break
				}
			}
			if !found {
				errs = append(errs, fmt.Sprintf("parameter %q must be one of [%s], got %q", spec.Key, strings.Join(spec.Values, ", "), str))
			}
		}
	}

	return errs
}

// stringParam returns the string value for key, falling back to the spec
// default when the caller omitted it.
func (d Descriptor) stringParam(params map[string]any, key string) string {
	if value, ok := params[key].(string); ok {
		return value
	}
	for _, spec := range d.Params {
		if spec.Key == key {
			if def, ok := spec.Default.(string); ok {
				return def
			}
		}
	}
	return ""
}

// boolParam returns the boolean value for key, falling back to the spec
// default when the caller omitted it.
func (d Descriptor) boolParam(params map[string]any, key string) bool {
	if value, ok := params[key].(bool); ok {
		return value
	}
	for _, spec := range d.Params {
		if spec.Key == key {
			if def, ok := spec.Default.(bool); ok {
				return def
			}
		}
	}
	return false
}
