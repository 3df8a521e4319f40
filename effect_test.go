package chainz

import (
	"context"
	"errors"
	"testing"
)

func TestStep(t *testing.T) {
	t.Run("Sync Methods Use Background Context", func(t *testing.T) {
		var seen context.Context
		step := NewStep("ctx", func(ctx context.Context, _ *Message) error {
			seen = ctx
			return nil
		})
		if err := step.Execute(NewMessage()); err != nil {
			t.Fatal(err)
		}
		if seen == nil || seen.Err() != nil {
			t.Error("expected live background context")
		}
	})

	t.Run("Options", func(t *testing.T) {
		rolled := false
		step := Do("charge", nil, AsRequired(), WithRollback(func(context.Context, *Message) error {
			rolled = true
			return nil
		}))
		if !step.Required() || step.Name() != "charge" {
			t.Errorf("unexpected step %q %v", step.Name(), step.Required())
		}
		if err := step.Execute(NewMessage()); err != nil {
			t.Errorf("nil exec must be a no-op, got %v", err)
		}
		_ = step.Rollback(NewMessage())
		if !rolled {
			t.Error("expected rollback to run")
		}
	})

	t.Run("No Rollback Is No-op", func(t *testing.T) {
		if err := NewStep("plain", nil).Rollback(NewMessage()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestEffect(t *testing.T) {
	t.Run("Is Not Context Aware", func(t *testing.T) {
		var op Operation = Effect("sync", func(*Message) error { return nil })
		if _, ok := op.(ContextOperation); ok {
			t.Error("Effect must not implement ContextOperation")
		}
	})

	t.Run("Returns Error", func(t *testing.T) {
		boom := errors.New("boom")
		if err := Effect("bad", func(*Message) error { return boom }).Execute(NewMessage()); !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
	})

	t.Run("Rollback Option", func(t *testing.T) {
		rolled := false
		op := Effect("undo", nil, WithRollback(func(ctx context.Context, _ *Message) error {
			rolled = ctx != nil
			return nil
		}))
		_ = op.Execute(NewMessage())
		_ = op.Rollback(NewMessage())
		if !rolled {
			t.Error("expected rollback with background context")
		}
	})
}

func TestGuard(t *testing.T) {
	guard := Guard("has-order", Has[order], "no order supplied")

	m := NewMessage()
	_ = guard.Execute(m)
	if !m.Faulty() || m.FirstError() != "no order supplied" {
		t.Errorf("expected guard fault, got %q", m.FirstError())
	}
	if m.Errors()[0].Source != "has-order" {
		t.Errorf("expected guard as source, got %q", m.Errors()[0].Source)
	}

	ok := NewMessage()
	Put(ok, order{ID: "o"})
	_ = guard.Execute(ok)
	if ok.Faulty() {
		t.Error("guard must pass when check holds")
	}
}

func TestLockIf(t *testing.T) {
	lock := LockIf("cached", Has[order])

	m := NewMessage()
	_ = lock.Execute(m)
	if m.Locked() {
		t.Error("expected unlocked")
	}
	Put(m, order{})
	_ = lock.Execute(m)
	if !m.Locked() {
		t.Error("expected locked")
	}
}

func TestSet(t *testing.T) {
	op := Set("defaults", customer{Name: "anon"}, AsRequired())
	if !op.Required() {
		t.Error("expected required")
	}

	m := NewMessage()
	_ = op.Execute(m)
	if c, _ := Get[customer](m); c.Name != "anon" {
		t.Errorf("unexpected customer %+v", c)
	}
	_ = op.Rollback(m)
	if Has[customer](m) {
		t.Error("rollback must remove the value")
	}

	t.Run("Rollback Restores Replaced Value", func(t *testing.T) {
		m := NewMessage()
		Put(m, customer{Name: "alice"})
		_, _ = NewPipeline("defaults",
			Set("override", customer{Name: "anon"}),
			Effect("decline", func(m *Message) error {
				m.Fail("declined")
				return nil
			}),
		).Run(m)
		if c, _ := Get[customer](m); c.Name != "alice" {
			t.Errorf("expected alice restored, got %+v", c)
		}
		if m.Len() != 1 {
			t.Errorf("expected only the restored value in content, got %d", m.Len())
		}
	})
}

func TestBase(t *testing.T) {
	type custom struct {
		Base
	}
	var op Operation = struct {
		custom
		execFn
	}{custom{NewBase("custom", true)}, execFn(func(*Message) error { return nil })}

	if op.Name() != "custom" || !op.Required() {
		t.Errorf("unexpected base %q %v", op.Name(), op.Required())
	}
	if err := op.Rollback(NewMessage()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

type execFn func(*Message) error

func (f execFn) Execute(m *Message) error { return f(m) }
