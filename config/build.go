package config

import (
	"fmt"

	"github.com/zoobzio/chainz"
)

// BuildOption configures Build.
type BuildOption func(*builder)

// WithLogger sets the logger of the pipeline and every scope in it.
func WithLogger(logger chainz.Logger) BuildOption {
	return func(b *builder) {
		b.logger = logger
	}
}

type builder struct {
	reg    *Registry
	logger chainz.Logger
}

// Build validates def and assembles a pipeline from it.
func Build(reg *Registry, def *Definition, opts ...BuildOption) (*chainz.Pipeline, error) {
	if err := Validate(def); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = NewRegistry()
	}
	b := &builder{reg: reg}
	for _, opt := range opts {
		opt(b)
	}

	ops, err := b.operations(def.Operations, "operations")
	if err != nil {
		return nil, err
	}

	p := chainz.NewPipeline(def.Name, ops...).
		ForceRollbackOnFailure(def.ForceRollback).
		AllowPropagateError(def.AllowPropagate).
		WithLogger(b.logger)
	if def.BreakOnFail != nil {
		p.BreakOnFail(*def.BreakOnFail)
	}
	return p, nil
}

func (b *builder) operations(refs []OperationRef, path string) ([]chainz.Operation, error) {
	ops := make([]chainz.Operation, 0, len(refs))
	for i, ref := range refs {
		at := fmt.Sprintf("%s[%d]", path, i)
		op, err := b.operation(ref, at)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (b *builder) operation(ref OperationRef, at string) (chainz.Operation, error) {
	if ref.Type == ScopeType {
		return b.scope(ref, at)
	}
	factory, ok := b.reg.Get(ref.Type)
	if !ok {
		return nil, fmt.Errorf("%s: %w %q", at, ErrUnknownType, ref.Type)
	}
	op, err := factory(ref)
	if err != nil {
		return nil, fmt.Errorf("%s: build %q: %w", at, ref.Type, err)
	}
	if op == nil {
		return nil, fmt.Errorf("%s: factory for %q returned no operation", at, ref.Type)
	}
	return op, nil
}

func (b *builder) scope(ref OperationRef, at string) (chainz.Operation, error) {
	children, err := b.operations(ref.Operations, at+".operations")
	if err != nil {
		return nil, err
	}
	breakOnFail, err := ref.Bool("break_on_fail", true)
	if err != nil {
		return nil, err
	}
	force, err := ref.Bool("force_rollback", false)
	if err != nil {
		return nil, err
	}
	propagate, err := ref.Bool("allow_propagate", false)
	if err != nil {
		return nil, err
	}
	return chainz.NewScope(ref.OperationName(), children...).
		BreakOnFail(breakOnFail).
		ForceRollbackOnFailure(force).
		AllowPropagateError(propagate).
		WithLogger(b.logger), nil
}
