package main

import (
	"context"
	"fmt"
	"maps"
	"sort"

	"github.com/zoobzio/clockz"

	"github.com/zoobzio/chainz"
	"github.com/zoobzio/chainz/config"
	"github.com/zoobzio/chainz/persist"
)

// Record is the free-form content built-in operations share. Operations
// never mutate a Record in place.
type Record map[string]any

// environment carries what built-in factories depend on.
type environment struct {
	store persist.Store
	codec persist.Codec
	clock clockz.Clock
}

var descriptions = map[string]string{
	"log":         "add a notice (params: message, level)",
	"fail":        "fault the message (params: message)",
	"lock":        "lock the message so only required operations run",
	"set":         "set a record field, removed on rollback (params: key, value)",
	"guard":       "fault unless a record field is set (params: key, message)",
	"sleep":       "wait, honoring cancellation (params: duration)",
	"read-token":  "load the record saved for the token (params: kind, codec, must_exist)",
	"write-token": "save the record for the token, restored on rollback (params: kind, codec)",
	"scope":       "nested pipeline with its own rollback (params: break_on_fail, force_rollback, allow_propagate)",
}

func builtins(env environment) *config.Registry {
	if env.clock == nil {
		env.clock = clockz.RealClock
	}
	if env.store == nil {
		env.store = persist.NewMemoryStore()
	}
	if env.codec == nil {
		env.codec = persist.JSON
	}

	return config.NewRegistry().
		MustRegister("log", logOperation).
		MustRegister("fail", failOperation).
		MustRegister("lock", lockOperation).
		MustRegister("set", setOperation).
		MustRegister("guard", guardOperation).
		MustRegister("sleep", env.sleepOperation).
		MustRegister("read-token", env.readOperation).
		MustRegister("write-token", env.writeOperation)
}

func logOperation(ref config.OperationRef) (chainz.Operation, error) {
	text, err := ref.String("message", "")
	if err != nil {
		return nil, err
	}
	name, err := ref.String("level", "info")
	if err != nil {
		return nil, err
	}
	level, err := parseLevel(name)
	if err != nil {
		return nil, err
	}
	source := ref.OperationName()
	return chainz.Effect(source, func(m *chainz.Message) error {
		m.Note(level, source, text)
		return nil
	}, ref.StepOptions()...), nil
}

func parseLevel(name string) (chainz.Level, error) {
	switch name {
	case "info":
		return chainz.LevelInfo, nil
	case "warning", "warn":
		return chainz.LevelWarning, nil
	case "error":
		return chainz.LevelError, nil
	}
	return 0, fmt.Errorf("unknown notice level %q", name)
}

func failOperation(ref config.OperationRef) (chainz.Operation, error) {
	text, err := ref.String("message", ref.OperationName()+" failed")
	if err != nil {
		return nil, err
	}
	return chainz.Effect(ref.OperationName(), func(m *chainz.Message) error {
		m.Fail(text)
		return nil
	}, ref.StepOptions()...), nil
}

func lockOperation(ref config.OperationRef) (chainz.Operation, error) {
	return chainz.Effect(ref.OperationName(), func(m *chainz.Message) error {
		m.Lock()
		return nil
	}, ref.StepOptions()...), nil
}

// priorField remembers a field value replaced by a set operation.
type priorField struct {
	value   any
	existed bool
}

type priorFields map[string]priorField

type priorFieldsKey struct{}

func setOperation(ref config.OperationRef) (chainz.Operation, error) {
	key, err := ref.String("key", "")
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("set: param %q is required", "key")
	}
	value := ref.Params["value"]

	opts := append(ref.StepOptions(), chainz.WithRollback(func(_ context.Context, m *chainz.Message) error {
		v, _ := m.RunState(priorFieldsKey{})
		priors, _ := v.(priorFields)
		p, ok := priors[key]
		if !ok {
			return nil
		}
		delete(priors, key)
		rec := cloneRecord(m)
		if p.existed {
			rec[key] = p.value
		} else {
			delete(rec, key)
		}
		chainz.Put(m, rec)
		return nil
	}))

	return chainz.Effect(ref.OperationName(), func(m *chainz.Message) error {
		rec := cloneRecord(m)
		v, _ := m.RunState(priorFieldsKey{})
		priors, ok := v.(priorFields)
		if !ok {
			priors = make(priorFields)
			m.SetRunState(priorFieldsKey{}, priors)
		}
		if _, seen := priors[key]; !seen {
			old, existed := rec[key]
			priors[key] = priorField{value: old, existed: existed}
		}
		rec[key] = value
		chainz.Put(m, rec)
		return nil
	}, opts...), nil
}

func cloneRecord(m *chainz.Message) Record {
	rec, _ := chainz.Get[Record](m)
	if rec == nil {
		return Record{}
	}
	return maps.Clone(rec)
}

func guardOperation(ref config.OperationRef) (chainz.Operation, error) {
	key, err := ref.String("key", "")
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("guard: param %q is required", "key")
	}
	text, err := ref.String("message", "missing "+key)
	if err != nil {
		return nil, err
	}
	return chainz.Guard(ref.OperationName(), func(m *chainz.Message) bool {
		rec, _ := chainz.Get[Record](m)
		_, ok := rec[key]
		return ok
	}, text, ref.StepOptions()...), nil
}

func (env environment) sleepOperation(ref config.OperationRef) (chainz.Operation, error) {
	d, err := ref.Duration("duration", 0)
	if err != nil {
		return nil, err
	}
	if d <= 0 {
		return nil, fmt.Errorf("sleep: param %q must be a positive duration", "duration")
	}
	return chainz.Do(ref.OperationName(), func(ctx context.Context, _ *chainz.Message) error {
		select {
		case <-env.clock.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, ref.StepOptions()...), nil
}

func (env environment) tokenParams(ref config.OperationRef) (string, persist.Codec, error) {
	kind, err := ref.String("kind", "record")
	if err != nil {
		return "", nil, err
	}
	codec := env.codec
	name, err := ref.String("codec", "")
	if err != nil {
		return "", nil, err
	}
	if name != "" {
		if codec, err = persist.CodecByName(name); err != nil {
			return "", nil, err
		}
	}
	return kind, codec, nil
}

func (env environment) readOperation(ref config.OperationRef) (chainz.Operation, error) {
	kind, codec, err := env.tokenParams(ref)
	if err != nil {
		return nil, err
	}
	mustExist, err := ref.Bool("must_exist", false)
	if err != nil {
		return nil, err
	}
	var opts []persist.ReadOption
	if mustExist {
		opts = append(opts, persist.MustExist())
	}
	if ref.Name != "" {
		opts = append(opts, persist.ReadName(ref.Name))
	}
	return persist.NewReadOperation[Record](kind, env.store, codec, opts...), nil
}

func (env environment) writeOperation(ref config.OperationRef) (chainz.Operation, error) {
	kind, codec, err := env.tokenParams(ref)
	if err != nil {
		return nil, err
	}
	op := persist.NewWriteOperation[Record](kind, env.store, codec)
	if ref.Name != "" {
		op = op.WithName(ref.Name)
	}
	return op, nil
}

func sortedKeys(rec Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
