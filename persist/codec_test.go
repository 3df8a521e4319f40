package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invoice struct {
	ID     string  `json:"id" yaml:"id" msgpack:"id"`
	Amount float64 `json:"amount" yaml:"amount" msgpack:"amount"`
	Lines  []string `json:"lines" yaml:"lines" msgpack:"lines"`
}

func TestCodecs(t *testing.T) {
	in := invoice{ID: "inv-7", Amount: 42.5, Lines: []string{"widget", "gadget"}}

	for _, c := range []Codec{JSON, YAML, MsgPack} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(in)
			require.NoError(t, err)

			var out invoice
			require.NoError(t, c.Unmarshal(data, &out))
			assert.Equal(t, in, out)
		})
	}

	t.Run("JSON Is Readable", func(t *testing.T) {
		data, err := JSON.Marshal(in)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"id":"inv-7"`)
	})
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("YAML")
	require.NoError(t, err)
	assert.Equal(t, "yaml", c.Name())

	c, err = CodecByName("yml")
	require.NoError(t, err)
	assert.Equal(t, "yaml", c.Name())

	_, err = CodecByName("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known: json, msgpack, yaml, yml")
}
