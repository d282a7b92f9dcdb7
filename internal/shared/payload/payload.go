// Package payload normalizes arbitrary application values into a
// schema-less representation (primitives, sequences, string-keyed
// mappings) that serializes to JSON without surprises. Span inputs,
// outputs, and metadata pass through here before they are recorded.
package payload

import (
	"fmt"
	"reflect"
	"time"
	"unicode/utf8"
)

// MaxReprLength bounds the stringified form of opaque values so a single
// span can't blow up a trace record.
const MaxReprLength = 200

// MaxDepth bounds normalization recursion. Values nested deeper than
// this — including cyclic maps, slices, and pointer loops — collapse to
// the {_type, _repr} stub instead of overflowing the stack.
const MaxDepth = 32

// Normalize converts v into a JSON-safe value. Primitives pass through,
// sequences and mappings are normalized element-wise, and anything else
// collapses to a {_type, _repr} stub.
func Normalize(v any) any {
	return normalize(v, 0)
}

func normalize(v any, depth int) any {
	if depth >= MaxDepth {
		return stub(v)
	}

	switch val := v.(type) {
	case nil:
		return nil
	case bool, string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return val
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case time.Duration:
		return val.String()
	case error:
		return val.Error()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item, depth+1)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item, depth+1)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalize(rv.Index(i).Interface(), depth+1)
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = normalize(iter.Value().Interface(), depth+1)
			}
			return out
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface(), depth+1)
	}

	return stub(v)
}

// Map normalizes every value of m. A nil map becomes an empty one so
// recorded payloads always marshal as JSON objects.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v, 1)
	}
	return out
}

func stub(v any) map[string]any {
	repr := fmt.Sprintf("%+v", v)
	if len(repr) > MaxReprLength {
		cut := MaxReprLength
		for cut > 0 && !utf8.RuneStart(repr[cut]) {
			cut--
		}
		repr = repr[:cut]
	}
	return map[string]any{
		"_type": fmt.Sprintf("%T", v),
		"_repr": repr,
	}
}
