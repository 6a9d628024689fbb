// ABOUTME: Tests for the provider metadata serialization boundary.
// ABOUTME: Covers langsmith round trips, malformed payloads, and aliasing.

package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeMetadata(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		assert.Nil(t, SerializeMetadata(nil))
	})

	t.Run("langsmith object becomes a JSON string", func(t *testing.T) {
		out := SerializeMetadata(map[string]any{
			"langsmith": map[string]any{"run_id": "r-1"},
			"other":     42,
		})
		assert.JSONEq(t, `{"run_id":"r-1"}`, out["langsmith"].(string))
		assert.Equal(t, 42, out["other"])
	})

	t.Run("langsmith list becomes a JSON string", func(t *testing.T) {
		out := SerializeMetadata(map[string]any{"langsmith": []any{"a", "b"}})
		assert.JSONEq(t, `["a","b"]`, out["langsmith"].(string))
	})

	t.Run("langsmith string untouched", func(t *testing.T) {
		out := SerializeMetadata(map[string]any{"langsmith": "already"})
		assert.Equal(t, "already", out["langsmith"])
	})

	t.Run("input map is not mutated", func(t *testing.T) {
		in := map[string]any{"langsmith": map[string]any{"run_id": "r-1"}}
		_ = SerializeMetadata(in)
		_, stillMap := in["langsmith"].(map[string]any)
		assert.True(t, stillMap)
	})
}

func TestDeserializeMetadata(t *testing.T) {
	t.Run("nil yields empty map", func(t *testing.T) {
		out := DeserializeMetadata(nil)
		require.NotNil(t, out)
		assert.Empty(t, out)
	})

	t.Run("json string parsed back", func(t *testing.T) {
		out := DeserializeMetadata(map[string]any{"langsmith": `{"run_id":"r-1"}`})
		ls := out["langsmith"].(map[string]any)
		assert.Equal(t, "r-1", ls["run_id"])
	})

	t.Run("malformed string kept verbatim", func(t *testing.T) {
		out := DeserializeMetadata(map[string]any{"langsmith": "{broken"})
		assert.Equal(t, "{broken", out["langsmith"])
	})

	t.Run("non-string langsmith untouched", func(t *testing.T) {
		original := map[string]any{"run_id": "r-1"}
		out := DeserializeMetadata(map[string]any{"langsmith": original})
		assert.Equal(t, original, out["langsmith"])
	})
}

func TestMetadataRoundTrip(t *testing.T) {
	in := map[string]any{
		"langsmith": map[string]any{"run_id": "r-1", "tags": []any{"a"}},
		"session":   "s-9",
	}
	out := DeserializeMetadata(SerializeMetadata(in))

	ls := out["langsmith"].(map[string]any)
	assert.Equal(t, "r-1", ls["run_id"])
	assert.Equal(t, []any{"a"}, ls["tags"])
	assert.Equal(t, "s-9", out["session"])
}
