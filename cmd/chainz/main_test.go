package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/chainz"
	"github.com/zoobzio/chainz/config"
	"github.com/zoobzio/chainz/persist"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeDefinition(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const saveYAML = `
name: save-profile
operations:
  - type: set
    params: {key: name, value: alice}
  - type: log
    params: {message: profile staged}
  - write-token
`

const restoreYAML = `
name: restore-profile
operations:
  - type: read-token
    params: {must_exist: true}
  - type: guard
    params: {key: name}
`

const failingYAML = `
name: checkout
operations:
  - type: set
    params: {key: order, value: 42}
  - write-token
  - type: fail
    name: charge
    params: {message: card declined}
`

func TestList(t *testing.T) {
	out, _, err := execute(t, "list")
	require.NoError(t, err)
	for _, name := range []string{"log", "fail", "lock", "set", "guard", "sleep", "scope", "read-token", "write-token"} {
		assert.Contains(t, out, name)
	}
}

func TestValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		out, _, err := execute(t, "validate", "-f", writeDefinition(t, saveYAML), "--env-prefix=")
		require.NoError(t, err)
		assert.Equal(t, "ok: save-profile (3 operations)\n", out)
	})

	t.Run("Schema", func(t *testing.T) {
		out, _, err := execute(t, "validate", "-f", writeDefinition(t, saveYAML), "--env-prefix=", "--schema")
		require.NoError(t, err)
		assert.Contains(t, out, `"kind": "pipeline"`)
		assert.Contains(t, out, `"name": "write-record"`)
	})

	t.Run("Unknown Type", func(t *testing.T) {
		_, _, err := execute(t, "validate", "-f", writeDefinition(t, "name: x\noperations: [teleport]\n"), "--env-prefix=")
		require.ErrorIs(t, err, config.ErrUnknownType)
	})

	t.Run("Requires File", func(t *testing.T) {
		_, _, err := execute(t, "validate")
		require.Error(t, err)
	})
}

func TestRun(t *testing.T) {
	t.Run("Token State Survives Between Runs", func(t *testing.T) {
		store := "file:" + filepath.Join(t.TempDir(), "state")

		out, _, err := execute(t, "run", "-f", writeDefinition(t, saveYAML), "--token", "tok-1", "--store", store, "--env-prefix=")
		require.NoError(t, err)
		assert.Contains(t, out, "pipeline save-profile token tok-1: completed")
		assert.Contains(t, out, "info [log]: profile staged")

		out, _, err = execute(t, "run", "-f", writeDefinition(t, restoreYAML), "--token", "tok-1", "--store", store, "--env-prefix=")
		require.NoError(t, err)
		assert.Contains(t, out, "name = alice")

		_, _, err = execute(t, "run", "-f", writeDefinition(t, restoreYAML), "--token", "tok-2", "--store", store, "--env-prefix=")
		require.ErrorIs(t, err, errFaulted)
	})

	t.Run("Fault Rolls Back Write", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "state")

		out, _, err := execute(t, "run", "-f", writeDefinition(t, failingYAML), "--token", "tok-9", "--store", "file:"+dir, "--env-prefix=", "--metrics")
		require.ErrorIs(t, err, errFaulted)
		assert.Contains(t, err.Error(), "card declined")
		assert.Contains(t, out, "rolled back: charge, write-record, set")
		assert.Contains(t, out, "chainz.failures.total = 1")
		assert.NotContains(t, out, "record:")

		_, statErr := os.Stat(filepath.Join(dir, "tok-9.record.json"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("SQLite Store", func(t *testing.T) {
		store := "sqlite:" + filepath.Join(t.TempDir(), "chainz.db")
		_, _, err := execute(t, "run", "-f", writeDefinition(t, saveYAML), "--token", "tok-1", "--store", store, "--codec", "msgpack", "--env-prefix=")
		require.NoError(t, err)
		out, _, err := execute(t, "run", "-f", writeDefinition(t, restoreYAML), "--token", "tok-1", "--store", store, "--codec", "msgpack", "--env-prefix=")
		require.NoError(t, err)
		assert.Contains(t, out, "name = alice")
	})

	t.Run("Trace", func(t *testing.T) {
		_, errOut, err := execute(t, "run", "-f", writeDefinition(t, saveYAML), "--env-prefix=", "--trace")
		require.NoError(t, err)
		assert.Contains(t, errOut, "chainz.run save-profile")
	})

	t.Run("Environment Override", func(t *testing.T) {
		t.Setenv("CHAINZCLI_NAME", "renamed")
		out, _, err := execute(t, "run", "-f", writeDefinition(t, saveYAML), "--env-prefix", "CHAINZCLI_")
		require.NoError(t, err)
		assert.Contains(t, out, "pipeline renamed")
	})

	t.Run("Bad Flags", func(t *testing.T) {
		path := writeDefinition(t, saveYAML)
		_, _, err := execute(t, "run", "-f", path, "--store", "redis:x")
		assert.Error(t, err)
		_, _, err = execute(t, "run", "-f", path, "--codec", "xml")
		assert.Error(t, err)
		_, _, err = execute(t, "run", "-f", path, "--log-level", "loud")
		assert.Error(t, err)
	})
}

func TestBuiltins(t *testing.T) {
	build := func(t *testing.T, env environment, ref config.OperationRef) chainz.Operation {
		t.Helper()
		factory, ok := builtins(env).Get(ref.Type)
		require.True(t, ok)
		op, err := factory(ref)
		require.NoError(t, err)
		return op
	}

	t.Run("Set Rollback Restores Previous Value", func(t *testing.T) {
		op := build(t, environment{}, config.OperationRef{Type: "set", Params: map[string]any{"key": "k", "value": "new"}})
		m := chainz.NewMessage()
		chainz.Put(m, Record{"k": "old"})

		require.NoError(t, op.Execute(m))
		rec, _ := chainz.Get[Record](m)
		assert.Equal(t, "new", rec["k"])
		assert.Equal(t, 1, m.Len())

		require.NoError(t, op.Rollback(m))
		rec, _ = chainz.Get[Record](m)
		assert.Equal(t, "old", rec["k"])
	})

	t.Run("Guard", func(t *testing.T) {
		op := build(t, environment{}, config.OperationRef{Type: "guard", Params: map[string]any{"key": "k"}})
		m := chainz.NewMessage()
		require.NoError(t, op.Execute(m))
		assert.Equal(t, "missing k", m.FirstError())
	})

	t.Run("Log Levels", func(t *testing.T) {
		op := build(t, environment{}, config.OperationRef{Type: "log", Params: map[string]any{"message": "careful", "level": "warning"}})
		m := chainz.NewMessage()
		require.NoError(t, op.Execute(m))
		require.Len(t, m.Notices(), 1)
		assert.Equal(t, chainz.LevelWarning, m.Notices()[0].Level)

		factory, _ := builtins(environment{}).Get("log")
		_, err := factory(config.OperationRef{Type: "log", Params: map[string]any{"level": "loud"}})
		assert.Error(t, err)
	})

	t.Run("Lock", func(t *testing.T) {
		op := build(t, environment{}, config.OperationRef{Type: "lock"})
		m := chainz.NewMessage()
		require.NoError(t, op.Execute(m))
		assert.True(t, m.Locked())
	})

	t.Run("Sleep Uses Clock", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		op := build(t, environment{clock: clock}, config.OperationRef{Type: "sleep", Params: map[string]any{"duration": "1h"}})
		ctxOp, ok := op.(chainz.ContextOperation)
		require.True(t, ok)

		done := make(chan error, 1)
		go func() {
			done <- ctxOp.ExecuteContext(context.Background(), chainz.NewMessage())
		}()

		// Allow goroutine to start
		time.Sleep(10 * time.Millisecond)

		clock.Advance(time.Hour)
		clock.BlockUntilReady()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("sleep did not finish")
		}
	})

	t.Run("Sleep Honors Cancellation", func(t *testing.T) {
		op := build(t, environment{clock: clockz.NewFakeClock()}, config.OperationRef{Type: "sleep", Params: map[string]any{"duration": "1h"}})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := op.(chainz.ContextOperation).ExecuteContext(ctx, chainz.NewMessage())
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Sleep Requires Duration", func(t *testing.T) {
		factory, _ := builtins(environment{}).Get("sleep")
		_, err := factory(config.OperationRef{Type: "sleep"})
		assert.Error(t, err)
	})

	t.Run("Token Operations Use Codec Param", func(t *testing.T) {
		store := persist.NewMemoryStore()
		env := environment{store: store}
		write := build(t, env, config.OperationRef{Type: "write-token", Name: "save", Params: map[string]any{"kind": "cart", "codec": "yaml"}})
		assert.Equal(t, "save", write.Name())

		m := chainz.NewMessage(chainz.WithToken("t"))
		chainz.Put(m, Record{"items": 2})
		require.NoError(t, write.Execute(m))

		data, err := store.Load(context.Background(), "t", "cart")
		require.NoError(t, err)
		assert.Equal(t, "items: 2\n", string(data))

		read := build(t, env, config.OperationRef{Type: "read-token", Params: map[string]any{"kind": "cart", "codec": "yaml"}})
		m2 := chainz.NewMessage(chainz.WithToken("t"))
		require.NoError(t, read.Execute(m2))
		rec, _ := chainz.Get[Record](m2)
		assert.Equal(t, 2, rec["items"])
	})
}
