package chainz

import (
	"context"
	"reflect"
	"sync"
	"testing"
)

// recorder collects the global order of executions and rollbacks.
type recorder struct {
	entries []string
	mu      sync.Mutex
}

func (r *recorder) add(entry string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *recorder) assert(t *testing.T, expected ...string) {
	t.Helper()
	actual := r.list()
	if len(actual) == 0 && len(expected) == 0 {
		return
	}
	if !reflect.DeepEqual(actual, expected) {
		t.Errorf("expected order %v, got %v", expected, actual)
	}
}

// tracked is a recording operation with optional behavior.
type tracked struct {
	rec         *recorder
	exec        func(context.Context, *Message) error
	rollbackErr error
	name        Name
	required    bool
}

func newTracked(rec *recorder, name Name) *tracked {
	return &tracked{rec: rec, name: name}
}

func (p *tracked) fault(text string) *tracked {
	p.exec = func(_ context.Context, m *Message) error {
		m.Fail(text)
		return nil
	}
	return p
}

func (p *tracked) fails(err error) *tracked {
	p.exec = func(context.Context, *Message) error { return err }
	return p
}

func (p *tracked) does(fn func(context.Context, *Message) error) *tracked {
	p.exec = fn
	return p
}

func (p *tracked) asRequired() *tracked {
	p.required = true
	return p
}

func (p *tracked) failRollback(err error) *tracked {
	p.rollbackErr = err
	return p
}

func (p *tracked) Name() Name     { return p.name }
func (p *tracked) Required() bool { return p.required }

func (p *tracked) Execute(m *Message) error {
	return p.ExecuteContext(context.Background(), m)
}

func (p *tracked) ExecuteContext(ctx context.Context, m *Message) error {
	p.rec.add("exec:" + p.name)
	if p.exec != nil {
		return p.exec(ctx, m)
	}
	return nil
}

func (p *tracked) Rollback(m *Message) error {
	return p.RollbackContext(context.Background(), m)
}

func (p *tracked) RollbackContext(context.Context, *Message) error {
	p.rec.add("rollback:" + p.name)
	return p.rollbackErr
}

func namesEqual(a, b []Name) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
