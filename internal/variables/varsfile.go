package variables

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/go-viper/mapstructure/v2"
)

// DecodeVarsFile converts an arbitrary decoded vars-file document (as
// produced by a YAML/JSON/TOML unmarshal into map[string]any — typed
// values like ints, bools and floats are expected) into the flat
// string-keyed map mergedRawStrings expects, via mapstructure's weak type
// coercion so "port: 8080" in the source document decodes to "8080"
// rather than forcing every vars-file author to quote every value.
func DecodeVarsFile(raw map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		// mapstructure's weak decoding turns bools into "1"/"0"; keep
		// them as "true"/"false" instead.
		DecodeHook: func(_, to reflect.Type, data any) (any, error) {
			if b, ok := data.(bool); ok && to.Kind() == reflect.String {
				return strconv.FormatBool(b), nil
			}
			return data, nil
		},
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return nil, fmt.Errorf("building vars-file decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decoding vars-file: %w", err)
	}
	return out, nil
}
