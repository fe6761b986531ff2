package observe

import (
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
)

// Attributes maps span attribute keys to scalar values.
type Attributes map[string]any

// AttributeFunc derives span attributes from the arguments of a traced call.
//
// Contract:
//   - Invoked once per call, before the wrapped function runs.
//   - Must be side-effect free and cheap.
//   - A nil or empty result means "no attributes".
//   - A non-nil error aborts the call before the wrapped function runs.
type AttributeFunc[A any] func(args A) (Attributes, error)

// Attrs adapts an infallible extraction function.
func Attrs[A any](fn func(args A) Attributes) AttributeFunc[A] {
	return func(args A) (Attributes, error) {
		return fn(args), nil
	}
}

// StaticAttributes returns an AttributeFunc that ignores the call arguments.
func StaticAttributes[A any](attrs Attributes) AttributeFunc[A] {
	return func(A) (Attributes, error) {
		return attrs, nil
	}
}

// KeyValues converts the map to OpenTelemetry attributes in key order.
func (a Attributes) KeyValues() ([]attribute.KeyValue, error) {
	if len(a) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		kv, err := keyValue(k, a[k])
		if err != nil {
			return nil, err
		}
		kvs = append(kvs, kv)
	}
	return kvs, nil
}

func keyValue(key string, value any) (attribute.KeyValue, error) {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v), nil
	case bool:
		return attribute.Bool(key, v), nil
	case int:
		return attribute.Int(key, v), nil
	case int32:
		return attribute.Int64(key, int64(v)), nil
	case int64:
		return attribute.Int64(key, v), nil
	case uint32:
		return attribute.Int64(key, int64(v)), nil
	case float32:
		return attribute.Float64(key, float64(v)), nil
	case float64:
		return attribute.Float64(key, v), nil
	case []string:
		return attribute.StringSlice(key, v), nil
	case []bool:
		return attribute.BoolSlice(key, v), nil
	case []int:
		return attribute.IntSlice(key, v), nil
	case []int64:
		return attribute.Int64Slice(key, v), nil
	case []float64:
		return attribute.Float64Slice(key, v), nil
	case fmt.Stringer:
		return attribute.String(key, v.String()), nil
	default:
		return attribute.KeyValue{}, fmt.Errorf("%w: %q has type %T", ErrUnsupportedAttribute, key, value)
	}
}
