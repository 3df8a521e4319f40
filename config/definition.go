// Package config describes pipelines in YAML and builds them from a
// registry of operation factories.
//
//	name: checkout
//	force_rollback: true
//	operations:
//	  - type: guard
//	    params: {key: order, message: no order}
//	  - type: scope
//	    name: payment
//	    operations: [reserve, charge]
//	  - write-token
//
// A bare string in an operation list is shorthand for {type: <string>}.
package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zoobzio/chainz"
)

// ScopeType is the operation type that nests a sub-pipeline.
const ScopeType = "scope"

// Definition is a pipeline description.
type Definition struct {
	BreakOnFail    *bool          `yaml:"break_on_fail,omitempty" koanf:"break_on_fail"`
	Name           string         `yaml:"name" koanf:"name" validate:"required"`
	Operations     []OperationRef `yaml:"operations" koanf:"operations" validate:"required,min=1,dive"`
	ForceRollback  bool           `yaml:"force_rollback,omitempty" koanf:"force_rollback"`
	AllowPropagate bool           `yaml:"allow_propagate,omitempty" koanf:"allow_propagate"`
}

// OperationRef names an operation type and its parameters. Operations is
// only meaningful for ScopeType.
type OperationRef struct {
	Params     map[string]any `yaml:"params,omitempty" koanf:"params"`
	Type       string         `yaml:"type" koanf:"type" validate:"required"`
	Name       string         `yaml:"name,omitempty" koanf:"name"`
	Operations []OperationRef `yaml:"operations,omitempty" koanf:"operations" validate:"required_if=Type scope,dive"`
	Required   bool           `yaml:"required,omitempty" koanf:"required"`
}

// UnmarshalYAML accepts either a mapping or a bare type name.
func (r *OperationRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*r = OperationRef{Type: node.Value}
		return nil
	}
	type plain OperationRef
	return node.Decode((*plain)(r))
}

// Parse decodes and validates a YAML definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse pipeline definition: %w", err)
	}
	if err := Validate(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// OperationName returns Name, or Type when no name is set.
func (r OperationRef) OperationName() chainz.Name {
	if r.Name != "" {
		return r.Name
	}
	return r.Type
}

// StepOptions translates the reference flags into step options.
func (r OperationRef) StepOptions() []chainz.StepOption {
	if r.Required {
		return []chainz.StepOption{chainz.AsRequired()}
	}
	return nil
}

// String returns a string parameter, or def when it is absent.
func (r OperationRef) String(key, def string) (string, error) {
	v, ok := r.Params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	case int, int64, float64, bool:
		return fmt.Sprint(s), nil
	}
	return "", r.paramError(key, "a string", v)
}

// Bool returns a boolean parameter. Strings such as "true" are accepted so
// values may come from the environment.
func (r OperationRef) Bool(key string, def bool) (bool, error) {
	v, ok := r.Params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, r.paramError(key, "a boolean", v)
		}
		return parsed, nil
	}
	return false, r.paramError(key, "a boolean", v)
}

// Duration returns a duration parameter written like "250ms".
func (r OperationRef) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := r.Params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, r.paramError(key, "a duration", v)
		}
		return parsed, nil
	}
	return 0, r.paramError(key, "a duration", v)
}

// Int returns an integer parameter.
func (r OperationRef) Int(key string, def int) (int, error) {
	v, ok := r.Params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	case string:
		parsed, err := strconv.Atoi(n)
		if err == nil {
			return parsed, nil
		}
	}
	return 0, r.paramError(key, "an integer", v)
}

func (r OperationRef) paramError(key, want string, got any) error {
	return fmt.Errorf("%w: operation %q: param %q must be %s, got %T", ErrInvalid, r.OperationName(), key, want, got)
}
