// ABOUTME: The think tool handler: forwards model reasoning to the upstream server.
// ABOUTME: Always dispatchable; hidden from tools/list while disabled.

package think

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/2389/seer-gateway/internal/tools"
)

// thinkInputSchema doubles as the schema injected into provider payloads, so
// the model and direct MCP callers see the same contract.
const thinkInputSchema = `{
  "type": "object",
  "properties": {
    "thought": {
      "type": "string",
      "description": "Thought text to be persisted by think-tool."
    },
    "parent_trace_id": {
      "type": "string",
      "description": "Optional LangSmith trace identifier."
    }
  },
  "required": ["thought"],
  "additionalProperties": false
}`

// ProviderToolEntry is the function-tool declaration injected into provider
// payloads so the model can call think even when the caller did not list it.
func ProviderToolEntry() map[string]any {
	var parameters map[string]any
	if err := json.Unmarshal([]byte(thinkInputSchema), &parameters); err != nil {
		parameters = map[string]any{"type": "object"}
	}
	return map[string]any{
		"type":        "function",
		"name":        "think",
		"description": "Capture intermediate reasoning using the external think-tool.",
		"parameters":  parameters,
	}
}

// Tool builds the registry spec and handler for the think tool. The handler
// is registered even when disabled so direct calls get a tool-level error
// instead of Tool not found; the Spec stays out of tools/list until enabled.
func Tool(enabled bool, client Capturer) (tools.Spec, tools.Handler) {
	spec := tools.Spec{
		Name:        "think",
		Description: "Capture intermediate reasoning using the external think-tool.",
		InputSchema: json.RawMessage(thinkInputSchema),
		Hidden:      !enabled,
	}

	handler := func(ctx context.Context, args map[string]any) (tools.Result, error) {
		if !enabled {
			return tools.ErrorResult("think-tool is disabled in configuration.", nil), nil
		}
		if client == nil {
			return tools.ErrorResult("think-tool is unavailable: client is not initialized.", nil), nil
		}

		thought, ok := args["thought"].(string)
		if !ok || strings.TrimSpace(thought) == "" {
			return tools.ErrorResult("Invalid params: 'thought' must be a non-empty string", nil), nil
		}

		parentTraceID := ""
		if raw, present := args["parent_trace_id"]; present && raw != nil {
			parentTraceID, ok = raw.(string)
			if !ok {
				return tools.ErrorResult("Invalid params: 'parent_trace_id' must be a string", nil), nil
			}
		}

		// Trace context rides along under metadata so the upstream server can
		// attach its runs to ours.
		metadata, _ := args["metadata"].(map[string]any)

		call, err := client.CaptureThought(ctx, thought, parentTraceID, metadata)
		if err != nil {
			return tools.ErrorResult("think-tool call failed: "+err.Error(), nil), nil
		}
		if !call.OK {
			message := call.Err
			if message == "" {
				message = "think-tool returned error"
			}
			var meta map[string]any
			if call.StatusCode != 0 {
				meta = map[string]any{"status_code": call.StatusCode}
			}
			return tools.ErrorResult(message, meta), nil
		}

		return remoteResultToTool(call.Result), nil
	}

	return spec, handler
}

// remoteResultToTool maps the upstream tool result onto ours. Content blocks
// are taken verbatim when the server sent a list; anything else is
// serialized, and an empty result collapses to "ok".
func remoteResultToTool(remote map[string]any) tools.Result {
	metadata := map[string]any{"via": "think-tool"}
	if len(remote) > 0 {
		metadata["remoteResult"] = remote
	}

	if rawContent, ok := remote["content"].([]any); ok {
		content := []tools.ContentBlock{}
		for _, item := range rawContent {
			if block, ok := item.(map[string]any); ok {
				content = append(content, tools.ContentBlock(block))
			}
		}
		return tools.OKResult(content, nil, metadata)
	}

	text := "ok"
	if len(remote) > 0 {
		if serialized, err := json.Marshal(remote); err == nil {
			text = string(serialized)
		}
	}
	return tools.TextResult(text, metadata)
}
