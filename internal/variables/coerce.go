package variables

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/runbookhq/runbookengine/internal/rbtypes"
)

// Coerce converts a rendered string into the declared type, per the rules
// in spec.md §4.3. An empty declared type (VarString, the zero value) is
// the identity conversion. Used for variable sources (§4.2); Function node
// parameters go through InferAndCoerce instead.
func Coerce(s string, kind rbtypes.VarType) (any, error) {
	switch kind {
	case "", rbtypes.VarString:
		return s, nil
	case rbtypes.VarBool:
		return coerceBool(s)
	case rbtypes.VarInt:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an int: %q", s)
		}
		return int(n), nil
	case rbtypes.VarFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("not a float: %q", s)
		}
		return f, nil
	case rbtypes.VarList:
		var list []any
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			return nil, fmt.Errorf("not a JSON list: %q", s)
		}
		return list, nil
	case rbtypes.VarDict:
		var dict map[string]any
		if err := json.Unmarshal([]byte(s), &dict); err != nil {
			return nil, fmt.Errorf("not a JSON object: %q", s)
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unknown variable type %q", kind)
	}
}

func coerceBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("not a bool: %q", s)
	}
}

// InferAndCoerce implements the best-effort inference used when a
// Function node plugin does NOT declare a parameter's type (spec.md §4.3
// "typed coercion is performed... per parameter... whose plugin declares
// the parameter type"; undeclared parameters fall back to this):
// boolean literals (true/false/yes/no and also "1"/"0"), then integers,
// then anything strconv.ParseFloat accepts, then JSON-looking strings,
// else the string itself.
func InferAndCoerce(s string) any {
	trimmed := strings.TrimSpace(s)
	if b, err := coerceBool(trimmed); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return int(n)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return s
}
