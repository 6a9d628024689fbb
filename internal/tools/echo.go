// ABOUTME: The echo tool: returns its text argument as a single text block.
// ABOUTME: Exists mainly as the connectivity smoke test for MCP clients.

package tools

import (
	"context"
	"encoding/json"
)

// EchoTool returns the echo tool spec and handler.
func EchoTool() (Spec, Handler) {
	spec := Spec{
		Name:        "echo",
		Description: "Echo text back.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"text": {"type": "string", "description": "Text to echo"}
			},
			"required": ["text"],
			"additionalProperties": false
		}`),
		OutputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"content": {"type": "array", "description": "Single text block"},
				"isError": {"type": "boolean"}
			},
			"required": [],
			"additionalProperties": false
		}`),
	}

	handler := func(ctx context.Context, args map[string]any) (Result, error) {
		text, ok := args["text"].(string)
		if !ok {
			return ErrorResult("Invalid params: 'text' must be a string", nil), nil
		}
		return TextResult(text, nil), nil
	}

	return spec, handler
}
