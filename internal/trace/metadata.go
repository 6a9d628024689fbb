// ABOUTME: Metadata serialization boundary for provider transport.
// ABOUTME: The provider stores metadata values as strings, so langsmith context is JSON-encoded across it.

package trace

import "encoding/json"

// SerializeMetadata returns a copy of metadata with the langsmith key
// flattened to a JSON string. Only that key is touched; everything else
// passes through.
func SerializeMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	switch ls := out["langsmith"].(type) {
	case map[string]any, []any:
		if raw, err := json.Marshal(ls); err == nil {
			out["langsmith"] = string(raw)
		}
	}
	return out
}

// DeserializeMetadata reverses SerializeMetadata on provider-echoed metadata.
// A langsmith string that fails to parse is kept verbatim; nil input yields
// an empty map so callers can merge without nil checks.
func DeserializeMetadata(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	if ls, ok := out["langsmith"].(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(ls), &decoded); err == nil {
			out["langsmith"] = decoded
		}
	}
	return out
}
