package persist

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Codec converts values to and from stored bytes.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type codec struct {
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
	name      string
}

func (c codec) Name() string                       { return c.name }
func (c codec) Marshal(v any) ([]byte, error)      { return c.marshal(v) }
func (c codec) Unmarshal(data []byte, v any) error { return c.unmarshal(data, v) }

// Built-in codecs.
var (
	JSON    Codec = codec{name: "json", marshal: json.Marshal, unmarshal: json.Unmarshal}
	YAML    Codec = codec{name: "yaml", marshal: yaml.Marshal, unmarshal: yaml.Unmarshal}
	MsgPack Codec = codec{name: "msgpack", marshal: msgpack.Marshal, unmarshal: msgpack.Unmarshal}
)

var codecs = map[string]Codec{
	"json":    JSON,
	"yaml":    YAML,
	"yml":     YAML,
	"msgpack": MsgPack,
}

// CodecByName returns a built-in codec. Names are case-insensitive.
func CodecByName(name string) (Codec, error) {
	if c, ok := codecs[strings.ToLower(name)]; ok {
		return c, nil
	}
	names := make([]string, 0, len(codecs))
	for n := range codecs {
		names = append(names, n)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("unknown codec %q (known: %s)", name, strings.Join(names, ", "))
}
