package persist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/chainz"
)

type cart struct {
	Items []string `json:"items" yaml:"items" msgpack:"items"`
}

func TestReadOperation(t *testing.T) {
	ctx := context.Background()

	t.Run("Loads Value For Token", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, "tok", "cart", []byte(`{"items":["a","b"]}`)))

		op := NewReadOperation[cart]("cart", store, JSON)
		assert.Equal(t, "read-cart", op.Name())
		assert.True(t, op.Required())
		assert.Equal(t, "cart", op.Kind())

		m := chainz.NewMessage(chainz.WithToken("tok"))
		require.NoError(t, op.Execute(m))
		got, ok := chainz.Get[cart](m)
		require.True(t, ok)
		assert.Equal(t, []string{"a", "b"}, got.Items)
	})

	t.Run("Missing Value Is Info", func(t *testing.T) {
		op := NewReadOperation[cart]("cart", NewMemoryStore(), JSON)
		m := chainz.NewMessage(chainz.WithToken("tok"))
		require.NoError(t, op.Execute(m))
		assert.False(t, m.Faulty())
		require.Len(t, m.Notices(), 1)
		assert.Equal(t, chainz.LevelInfo, m.Notices()[0].Level)
		assert.False(t, chainz.Has[cart](m))
	})

	t.Run("Must Exist Faults", func(t *testing.T) {
		op := NewReadOperation[cart]("cart", NewMemoryStore(), JSON, MustExist(), ReadName("load-cart"))
		assert.Equal(t, "load-cart", op.Name())
		m := chainz.NewMessage(chainz.WithToken("tok"))
		require.NoError(t, op.Execute(m))
		assert.True(t, m.Faulty())
		assert.Equal(t, "no cart stored for token tok", m.FirstError())
	})

	t.Run("Decode Failure Is Error", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, "tok", "cart", []byte("{not json")))
		err := NewReadOperation[cart]("cart", store, JSON).Execute(chainz.NewMessage(chainz.WithToken("tok")))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode cart as json")
	})

	t.Run("Runs On Locked Message", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, "tok", "cart", []byte(`{"items":["x"]}`)))
		m := chainz.NewMessage(chainz.WithToken("tok"))

		_, err := chainz.NewPipeline("restore",
			chainz.Effect("lock", func(m *chainz.Message) error {
				m.Lock()
				return nil
			}),
			NewReadOperation[cart]("cart", store, JSON),
		).Run(m)
		require.NoError(t, err)
		assert.True(t, chainz.Has[cart](m))
	})
}

func TestWriteOperation(t *testing.T) {
	ctx := context.Background()

	t.Run("Saves Content", func(t *testing.T) {
		store := NewMemoryStore()
		op := NewWriteOperation[cart]("cart", store, MsgPack)
		assert.Equal(t, "write-cart", op.Name())
		assert.True(t, op.Required())

		m := chainz.NewMessage(chainz.WithToken("tok"))
		chainz.Put(m, cart{Items: []string{"x"}})
		require.NoError(t, op.Execute(m))
		assert.Equal(t, 1, m.Len(), "rollback snapshot must not enter the content bag")
		assert.Len(t, m.Contents(), 1)

		m2 := chainz.NewMessage(chainz.WithToken("tok"))
		require.NoError(t, NewReadOperation[cart]("cart", store, MsgPack).Execute(m2))
		got, _ := chainz.Get[cart](m2)
		assert.Equal(t, []string{"x"}, got.Items)
	})

	t.Run("Missing Content Is Warning", func(t *testing.T) {
		store := NewMemoryStore()
		m := chainz.NewMessage(chainz.WithToken("tok"))
		require.NoError(t, NewWriteOperation[cart]("cart", store, JSON).Execute(m))
		require.Len(t, m.Notices(), 1)
		assert.Equal(t, chainz.LevelWarning, m.Notices()[0].Level)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("Rollback Removes New Value", func(t *testing.T) {
		store := NewMemoryStore()
		m := chainz.NewMessage(chainz.WithToken("tok"))
		chainz.Put(m, cart{Items: []string{"x"}})

		_, err := chainz.NewPipeline("checkout",
			NewWriteOperation[cart]("cart", store, JSON),
			chainz.Effect("charge", func(m *chainz.Message) error {
				m.Fail("declined")
				return nil
			}),
		).Run(m)
		require.NoError(t, err)
		assert.True(t, m.Faulty())

		_, err = store.Load(ctx, "tok", "cart")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Rollback Restores Previous Value", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, "tok", "cart", []byte(`{"items":["old"]}`)))

		op := NewWriteOperation[cart]("cart", store, JSON).WithName("save-cart")
		assert.Equal(t, "save-cart", op.Name())

		m := chainz.NewMessage(chainz.WithToken("tok"))
		chainz.Put(m, cart{Items: []string{"new"}})
		require.NoError(t, op.Execute(m))
		require.NoError(t, op.Rollback(m))

		data, err := store.Load(ctx, "tok", "cart")
		require.NoError(t, err)
		assert.JSONEq(t, `{"items":["old"]}`, string(data))
	})

	t.Run("Rollback Without Execute Is No-op", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, "tok", "cart", []byte("keep")))
		m := chainz.NewMessage(chainz.WithToken("tok"))
		require.NoError(t, NewWriteOperation[cart]("cart", store, JSON).Rollback(m))
		assert.Equal(t, 1, store.Len())
	})

	t.Run("Store Errors Surface", func(t *testing.T) {
		boom := errors.New("disk full")
		op := NewWriteOperation[cart]("cart", failingStore{err: boom}, JSON)
		m := chainz.NewMessage(chainz.WithToken("tok"))
		chainz.Put(m, cart{})
		assert.ErrorIs(t, op.Execute(m), boom)
	})
}

type failingStore struct {
	err error
}

func (f failingStore) Load(context.Context, string, string) ([]byte, error) { return nil, f.err }
func (f failingStore) Save(context.Context, string, string, []byte) error   { return f.err }
func (f failingStore) Delete(context.Context, string, string) error         { return f.err }
