package model

// Options are the processor option values of a profile or an operation.
type Options map[string]any

// Clone returns a deep copy. Nested maps and slices produced by YAML or JSON
// decoding are copied recursively; other values are copied by assignment.
func (o Options) Clone() Options {
	if o == nil {
		return Options{}
	}
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = cloneValue(v)
	}
	return out
}

// String returns the string value of key, or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return def
}

// Bool returns the bool value of key, or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

// Int returns the integer value of key, or def.
func (o Options) Int(key string, def int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case Options:
		return x.Clone()
	case map[string]any:
		return map[string]any(Options(x).Clone())
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	case []int:
		return append([]int(nil), x...)
	case []byte:
		return append([]byte(nil), x...)
	default:
		return v
	}
}
