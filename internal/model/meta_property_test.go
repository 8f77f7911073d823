package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func metaGen() *rapid.Generator[Meta] {
	return rapid.Custom(func(t *rapid.T) Meta {
		keys := rapid.SliceOfN(rapid.StringMatching(`[a-z_]{1,8}`), 0, 6).Draw(t, "keys")
		m := Meta{}
		for _, k := range keys {
			m[k] = rapid.IntRange(-100, 100).Draw(t, "value")
		}
		return m
	})
}

// TestMergeProperty checks that later layers win and every key survives.
func TestMergeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := metaGen().Draw(t, "base")
		layer := metaGen().Draw(t, "layer")

		merged := Merge(base, layer)

		for k, v := range layer {
			if merged[k] != v {
				t.Fatalf("layer key %q: expected %v, got %v", k, v, merged[k])
			}
		}
		for k, v := range base {
			if _, overridden := layer[k]; overridden {
				continue
			}
			if merged[k] != v {
				t.Fatalf("base key %q: expected %v, got %v", k, v, merged[k])
			}
		}
		if len(merged) > len(base)+len(layer) {
			t.Fatalf("merged has %d keys, more than inputs", len(merged))
		}
	})
}

// TestMergeDoesNotMutateInputs guards against aliasing the base map.
func TestMergeDoesNotMutateInputs(t *testing.T) {
	base := Meta{"a": 1}
	merged := Merge(base, Meta{"a": 2, "b": 3})

	assert.Equal(t, Meta{"a": 1}, base)
	assert.Equal(t, Meta{"a": 2, "b": 3}, merged)
	assert.NotNil(t, Merge(nil))
}

// TestWithUserIDsProperty checks that user_ids stays a duplicate-free union.
func TestWithUserIDsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		first := rapid.SliceOfN(rapid.Int64Range(1, 20), 0, 10).Draw(t, "first")
		second := rapid.SliceOfN(rapid.Int64Range(1, 20), 0, 10).Draw(t, "second")

		m := Meta{}.WithUserIDs(first...).WithUserIDs(second...)
		got := m.UserIDs()

		seen := map[int64]bool{}
		for _, id := range got {
			if seen[id] {
				t.Fatalf("duplicate id %d in %v", id, got)
			}
			seen[id] = true
		}
		for _, id := range append(first, second...) {
			if !seen[id] {
				t.Fatalf("id %d missing from %v", id, got)
			}
		}

		// Applying the same ids again is a no-op.
		again := m.WithUserIDs(second...).UserIDs()
		if len(again) != len(got) {
			t.Fatalf("re-merge changed ids: %v -> %v", got, again)
		}
	})
}

func TestUserIDsAfterJSONRoundTrip(t *testing.T) {
	raw, err := json.Marshal(Meta{}.WithUserIDs(7, 9, 7))
	require.NoError(t, err)

	var decoded Meta
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, []int64{7, 9}, decoded.UserIDs())
	assert.Equal(t, []int64{7, 9, 11}, decoded.WithUserIDs(9, 11).UserIDs())
}

func TestInt64AfterJSONRoundTrip(t *testing.T) {
	raw, err := json.Marshal(Meta{MetaUnitPrice: int64(3000), "note": "x", "ratio": 1.5})
	require.NoError(t, err)

	var decoded Meta
	require.NoError(t, json.Unmarshal(raw, &decoded))

	v, ok := decoded.Int64(MetaUnitPrice)
	assert.True(t, ok)
	assert.Equal(t, int64(3000), v)

	_, ok = decoded.Int64("note")
	assert.False(t, ok)
	_, ok = decoded.Int64("ratio")
	assert.False(t, ok)
	_, ok = decoded.Int64("missing")
	assert.False(t, ok)
}
