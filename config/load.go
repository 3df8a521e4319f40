package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load reads a definition file and applies environment overrides. With
// envPrefix "CHAINZ_", CHAINZ_FORCE_ROLLBACK=true sets force_rollback and a
// double underscore descends a level. An empty prefix disables overrides.
func Load(path, envPrefix string) (*Definition, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	if envPrefix != "" {
		if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
			return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
		}), nil); err != nil {
			return nil, fmt.Errorf("load environment: %w", err)
		}
	}

	var def Definition
	err := k.UnmarshalWithConf("", &def, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				shorthandHook,
				mapstructure.StringToTimeDurationHookFunc(),
			),
			Result:           &def,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if err := Validate(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

var operationRefType = reflect.TypeOf(OperationRef{})

// shorthandHook expands a bare string into an operation reference.
var shorthandHook mapstructure.DecodeHookFuncType = func(from, to reflect.Type, data any) (any, error) {
	if to != operationRefType || from.Kind() != reflect.String {
		return data, nil
	}
	return map[string]any{"type": data}, nil
}
