package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/zoobzio/chainz"
)

// ReadOption configures a ReadOperation.
type ReadOption func(*readConfig)

type readConfig struct {
	name      chainz.Name
	mustExist bool
}

// MustExist makes a missing value a fault instead of an info notice.
func MustExist() ReadOption {
	return func(c *readConfig) {
		c.mustExist = true
	}
}

// ReadName overrides the default operation name, "read-<kind>".
func ReadName(name chainz.Name) ReadOption {
	return func(c *readConfig) {
		c.name = name
	}
}

// ReadOperation loads the value stored for the message token and puts it
// into the message as a T. It is required, so it also runs on locked
// messages.
type ReadOperation[T any] struct {
	store     Store
	codec     Codec
	kind      string
	name      chainz.Name
	mustExist bool
}

// NewReadOperation creates a ReadOperation for kind.
func NewReadOperation[T any](kind string, store Store, codec Codec, opts ...ReadOption) *ReadOperation[T] {
	cfg := readConfig{name: "read-" + kind}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ReadOperation[T]{
		store:     store,
		codec:     codec,
		kind:      kind,
		name:      cfg.name,
		mustExist: cfg.mustExist,
	}
}

func (r *ReadOperation[T]) Name() chainz.Name { return r.name }
func (*ReadOperation[T]) Required() bool      { return true }

// Kind returns the stored value kind.
func (r *ReadOperation[T]) Kind() string { return r.kind }

func (r *ReadOperation[T]) Execute(m *chainz.Message) error {
	return r.ExecuteContext(context.Background(), m)
}

func (r *ReadOperation[T]) ExecuteContext(ctx context.Context, m *chainz.Message) error {
	data, err := r.store.Load(ctx, m.Token(), r.kind)
	if errors.Is(err, ErrNotFound) {
		if r.mustExist {
			m.Failf("no %s stored for token %s", r.kind, m.Token())
			return nil
		}
		m.Info(fmt.Sprintf("no %s stored for token %s", r.kind, m.Token()))
		return nil
	}
	if err != nil {
		return err
	}

	var v T
	if err := r.codec.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode %s as %s: %w", r.kind, r.codec.Name(), err)
	}
	chainz.Put(m, v)
	return nil
}

// Rollback is a no-op; reading has no external effect.
func (*ReadOperation[T]) Rollback(*chainz.Message) error { return nil }

func (*ReadOperation[T]) RollbackContext(context.Context, *chainz.Message) error { return nil }

// WriteOperation encodes the T held by the message and saves it under the
// message token. Rollback restores whatever was stored before the write.
type WriteOperation[T any] struct {
	store Store
	codec Codec
	kind  string
	name  chainz.Name
}

// NewWriteOperation creates a WriteOperation for kind.
func NewWriteOperation[T any](kind string, store Store, codec Codec) *WriteOperation[T] {
	return &WriteOperation[T]{
		store: store,
		codec: codec,
		kind:  kind,
		name:  "write-" + kind,
	}
}

// WithName returns a copy of the operation with a different name.
func (w *WriteOperation[T]) WithName(name chainz.Name) *WriteOperation[T] {
	c := *w
	c.name = name
	return &c
}

func (w *WriteOperation[T]) Name() chainz.Name { return w.name }
func (*WriteOperation[T]) Required() bool      { return true }

// Kind returns the stored value kind.
func (w *WriteOperation[T]) Kind() string { return w.kind }

func (w *WriteOperation[T]) Execute(m *chainz.Message) error {
	return w.ExecuteContext(context.Background(), m)
}

func (w *WriteOperation[T]) ExecuteContext(ctx context.Context, m *chainz.Message) error {
	v, ok := chainz.Get[T](m)
	if !ok {
		m.Warn(fmt.Sprintf("%s: nothing to write", w.name))
		return nil
	}
	data, err := w.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s as %s: %w", w.kind, w.codec.Name(), err)
	}

	prev, err := w.store.Load(ctx, m.Token(), w.kind)
	switch {
	case errors.Is(err, ErrNotFound):
		w.remember(m, prior{})
	case err != nil:
		return err
	default:
		w.remember(m, prior{data: prev, existed: true})
	}

	return w.store.Save(ctx, m.Token(), w.kind, data)
}

func (w *WriteOperation[T]) Rollback(m *chainz.Message) error {
	return w.RollbackContext(context.Background(), m)
}

func (w *WriteOperation[T]) RollbackContext(ctx context.Context, m *chainz.Message) error {
	v, _ := m.RunState(priorKey{})
	snapshots, _ := v.(priorValues)
	p, ok := snapshots[w.kind]
	if !ok {
		return nil
	}
	delete(snapshots, w.kind)
	if p.existed {
		return w.store.Save(ctx, m.Token(), w.kind, p.data)
	}
	if err := w.store.Delete(ctx, m.Token(), w.kind); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (w *WriteOperation[T]) remember(m *chainz.Message, p prior) {
	v, _ := m.RunState(priorKey{})
	snapshots, ok := v.(priorValues)
	if !ok {
		snapshots = make(priorValues)
		m.SetRunState(priorKey{}, snapshots)
	}
	if _, seen := snapshots[w.kind]; !seen {
		snapshots[w.kind] = p
	}
}

type prior struct {
	data    []byte
	existed bool
}

// priorValues holds, per kind, what the store held before the first write of
// a run.
type priorValues map[string]prior

type priorKey struct{}
