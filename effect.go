package chainz

import "context"

// effect is a synchronous-only operation. It does not implement
// ContextOperation, so RunContext falls back to Execute for it.
type effect struct {
	fn       func(*Message) error
	rollback func(*Message) error
	name     Name
	required bool
}

// Effect creates a synchronous operation from fn. Use it for work that has no
// use for a cancellation signal: logging, validation, content shaping.
//
// Rollback options given here receive context.Background().
//
//	audit := chainz.Effect("audit", func(m *chainz.Message) error {
//	    order, _ := chainz.Get[Order](m)
//	    m.Info("order " + order.ID + " processed")
//	    return nil
//	}, chainz.AsRequired())
func Effect(name Name, fn func(*Message) error, opts ...StepOption) Operation {
	var cfg stepConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	e := &effect{name: name, fn: fn, required: cfg.required}
	if cfg.rollback != nil {
		rb := cfg.rollback
		e.rollback = func(m *Message) error {
			return rb(context.Background(), m)
		}
	}
	return e
}

func (e *effect) Name() Name     { return e.name }
func (e *effect) Required() bool { return e.required }

func (e *effect) Execute(m *Message) error {
	if e.fn == nil {
		return nil
	}
	return e.fn(m)
}

func (e *effect) Rollback(m *Message) error {
	if e.rollback == nil {
		return nil
	}
	return e.rollback(m)
}

// Guard faults the message with text when check returns false.
//
//	hasOrder := chainz.Guard("has-order", chainz.Has[Order], "no order supplied")
func Guard(name Name, check func(*Message) bool, text string, opts ...StepOption) Operation {
	return Effect(name, func(m *Message) error {
		if !check(m) {
			m.failFrom(name, text)
		}
		return nil
	}, opts...)
}

// LockIf locks the message when cond holds, so only required operations run
// from then on.
func LockIf(name Name, cond func(*Message) bool, opts ...StepOption) Operation {
	return Effect(name, func(m *Message) error {
		if cond(m) {
			m.Lock()
		}
		return nil
	}, opts...)
}

// Set stores v in the content bag. Its rollback puts back the value of type
// T that Set replaced, or removes v when there was none.
func Set[T any](name Name, v T, opts ...StepOption) Operation {
	key := &replacedKey{name: name}
	e := Effect(name, func(m *Message) error {
		prev, existed := Get[T](m)
		m.SetRunState(key, replaced[T]{value: prev, existed: existed})
		Put(m, v)
		return nil
	}, opts...).(*effect)
	if e.rollback == nil {
		e.rollback = func(m *Message) error {
			state, ok := m.RunState(key)
			if !ok {
				return nil
			}
			m.ClearRunState(key)
			if r := state.(replaced[T]); r.existed {
				Put(m, r.value)
			} else {
				Remove[T](m)
			}
			return nil
		}
	}
	return e
}

// replacedKey identifies one Set in the message run state.
type replacedKey struct {
	name Name
}

type replaced[T any] struct {
	value   T
	existed bool
}
