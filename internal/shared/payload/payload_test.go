package payload

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePrimitives(t *testing.T) {
	assert.Nil(t, Normalize(nil))
	assert.Equal(t, true, Normalize(true))
	assert.Equal(t, "hello", Normalize("hello"))
	assert.Equal(t, 42, Normalize(42))
	assert.Equal(t, 3.14, Normalize(3.14))
}

func TestNormalizeTime(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-01T12:30:00Z", Normalize(ts))
	assert.Equal(t, "1.5s", Normalize(1500*time.Millisecond))
}

func TestNormalizeError(t *testing.T) {
	assert.Equal(t, "boom", Normalize(errors.New("boom")))
}

func TestNormalizeNested(t *testing.T) {
	in := map[string]any{
		"items": []any{1, "two", map[string]any{"three": 3}},
		"when":  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	out, ok := Normalize(in).(map[string]any)
	require.True(t, ok)

	items, ok := out["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 3)
	assert.Equal(t, "2025-01-01T00:00:00Z", out["when"])
}

func TestNormalizeTypedSliceAndMap(t *testing.T) {
	out, ok := Normalize([]int{1, 2, 3}).([]any)
	require.True(t, ok)
	assert.Len(t, out, 3)

	m, ok := Normalize(map[string]int{"a": 1}).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, m["a"])
}

func TestNormalizeOpaqueValue(t *testing.T) {
	type widget struct {
		Name string
	}

	out, ok := Normalize(widget{Name: "w"}).(map[string]any)
	require.True(t, ok)
	assert.Contains(t, out["_type"], "widget")
	assert.Contains(t, out["_repr"], "w")
}

func TestNormalizeTruncatesLongRepr(t *testing.T) {
	type blob struct {
		Data string
	}

	out, ok := Normalize(blob{Data: strings.Repeat("x", 1000)}).(map[string]any)
	require.True(t, ok)
	assert.LessOrEqual(t, len(out["_repr"].(string)), MaxReprLength)
}

func TestNormalizeTruncatesOnRuneBoundary(t *testing.T) {
	type blob struct {
		Data string
	}

	out, ok := Normalize(blob{Data: strings.Repeat("é", 500)}).(map[string]any)
	require.True(t, ok)
	repr := out["_repr"].(string)
	assert.LessOrEqual(t, len(repr), MaxReprLength)
	assert.True(t, utf8.ValidString(repr))
}

func TestNormalizeCyclicMap(t *testing.T) {
	m := map[string]any{}
	m["self"] = m

	var out any
	require.NotPanics(t, func() { out = Normalize(m) })
	require.NotNil(t, out)
}

func TestNormalizeCyclicSlice(t *testing.T) {
	s := make([]any, 1)
	s[0] = s

	require.NotPanics(t, func() { Normalize(s) })
}

func TestNormalizeDeepNestingCollapsesToStub(t *testing.T) {
	v := map[string]any{"leaf": 1}
	for i := 0; i < MaxDepth+10; i++ {
		v = map[string]any{"next": v}
	}

	out := Normalize(v)
	for i := 0; i < MaxDepth; i++ {
		m, ok := out.(map[string]any)
		require.True(t, ok)
		out = m["next"]
	}
	stubbed, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, stubbed, "_type")
}

func TestMapNilBecomesEmpty(t *testing.T) {
	out := Map(nil)
	require.NotNil(t, out)
	assert.Empty(t, out)
}

func TestNormalizePointer(t *testing.T) {
	n := 7
	assert.Equal(t, 7, Normalize(&n))

	var nilPtr *int
	assert.Nil(t, Normalize(nilPtr))
}
