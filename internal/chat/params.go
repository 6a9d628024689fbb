// ABOUTME: Chat tool argument extraction and provider request construction.
// ABOUTME: Validation failures surface as tool errors, never JSON-RPC faults.

package chat

import (
	"github.com/2389/seer-gateway/internal/provider"
	"github.com/2389/seer-gateway/internal/think"
)

// ArgError marks invalid chat arguments. The orchestrator folds it into the
// tool result body so the client reads text instead of an RPC fault.
type ArgError struct {
	Message string
}

func (e *ArgError) Error() string { return e.Message }

func newArgError(message string) *ArgError {
	return &ArgError{Message: message}
}

// Params holds the chat tool arguments after validation. Optional sampling
// fields stay nil so the provider payload omits them entirely.
type Params struct {
	Model             string
	Messages          []any
	Temperature       float64
	TopP              *float64
	MaxTokens         *int
	Metadata          map[string]any
	ParallelToolCalls *bool
	Tools             []any
	ToolChoice        any
}

// ExtractParams validates the chat arguments. Model and messages are
// required; temperature defaults to 0.7 and is always submitted.
func ExtractParams(args map[string]any) (Params, error) {
	model, ok := args["model"].(string)
	if !ok {
		return Params{}, newArgError("Invalid params: 'model' must be a string")
	}
	messages, ok := args["messages"].([]any)
	if !ok {
		return Params{}, newArgError("Invalid params: 'messages' must be an array")
	}

	params := Params{Model: model, Messages: messages, Temperature: 0.7}

	if raw, present := args["temperature"]; present && raw != nil {
		value, ok := raw.(float64)
		if !ok {
			return Params{}, newArgError("Invalid params: 'temperature' must be a number")
		}
		params.Temperature = value
	}
	if raw, present := args["top_p"]; present && raw != nil {
		value, ok := raw.(float64)
		if !ok {
			return Params{}, newArgError("Invalid params: 'top_p' must be a number")
		}
		params.TopP = &value
	}
	if raw, present := args["max_tokens"]; present && raw != nil {
		value, ok := raw.(float64)
		if !ok {
			return Params{}, newArgError("Invalid params: 'max_tokens' must be an integer")
		}
		tokens := int(value)
		params.MaxTokens = &tokens
	}
	if raw, present := args["metadata"]; present && raw != nil {
		value, ok := raw.(map[string]any)
		if !ok {
			return Params{}, newArgError("Invalid params: 'metadata' must be an object")
		}
		params.Metadata = value
	}
	if raw, present := args["parallelToolCalls"]; present && raw != nil {
		value, ok := raw.(bool)
		if !ok {
			return Params{}, newArgError("Invalid params: 'parallelToolCalls' must be a boolean")
		}
		params.ParallelToolCalls = &value
	}
	if raw, present := args["tools"]; present && raw != nil {
		value, ok := raw.([]any)
		if !ok {
			return Params{}, newArgError("Invalid params: 'tools' must be an array")
		}
		params.Tools = value
	}
	if choice := args["tool_choice"]; choice != nil {
		params.ToolChoice = choice
	} else if choice := args["toolChoice"]; choice != nil {
		params.ToolChoice = choice
	}

	return params, nil
}

// NormalizeInputMessages cleans the conversation history for the provider.
// Array contents are filtered down to object blocks; string content and
// anything else is kept as the caller sent it.
func NormalizeInputMessages(messages []any) ([]map[string]any, error) {
	cleaned := make([]map[string]any, 0, len(messages))
	for _, raw := range messages {
		message, ok := raw.(map[string]any)
		if !ok {
			return nil, newArgError("Invalid params: every message must be an object")
		}
		role, ok := message["role"].(string)
		if !ok {
			return nil, newArgError("Invalid params: message role must be a string")
		}
		content := message["content"]
		if blocks, isList := content.([]any); isList {
			kept := make([]any, 0, len(blocks))
			for _, block := range blocks {
				if _, isObject := block.(map[string]any); isObject {
					kept = append(kept, block)
				}
			}
			content = kept
		}
		cleaned = append(cleaned, map[string]any{"role": role, "content": content})
	}
	return cleaned, nil
}

// BuildRequest assembles the first-turn provider request. With ensureThink
// set, the think function tool is appended unless the caller already listed
// one, so the model can reach the external reasoning log either way.
func BuildRequest(params Params, input []map[string]any, ensureThink bool) *provider.Request {
	req := &provider.Request{
		Model:             params.Model,
		Input:             input,
		Temperature:       &params.Temperature,
		TopP:              params.TopP,
		MaxOutputTokens:   params.MaxTokens,
		ParallelToolCalls: params.ParallelToolCalls,
		ToolChoice:        params.ToolChoice,
	}
	if len(params.Metadata) > 0 {
		req.Metadata = params.Metadata
	}

	entries := filterToolEntries(params.Tools)
	if len(entries) > 0 {
		req.Tools = entries
	}
	if ensureThink && !hasThinkTool(entries) {
		req.Tools = append(entries, think.ProviderToolEntry())
	}

	return req
}

// FollowUpRequest builds the continuation payload for one loop turn. Only
// the model, the prior response id, the tool outputs, and the request
// metadata ride along; sampling parameters are set once on the first turn.
func FollowUpRequest(model, previousResponseID string, input []map[string]any, metadata map[string]any) *provider.Request {
	return &provider.Request{
		Model:              model,
		Input:              input,
		Metadata:           metadata,
		PreviousResponseID: previousResponseID,
	}
}

func filterToolEntries(raw []any) []map[string]any {
	var entries []map[string]any
	for _, item := range raw {
		if entry, ok := item.(map[string]any); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// hasThinkTool accepts both the flat Responses-style entry and the nested
// chat-completions-style {"function": {"name": ...}} entry.
func hasThinkTool(entries []map[string]any) bool {
	for _, entry := range entries {
		if name, _ := entry["name"].(string); name == "think" {
			return true
		}
		if function, ok := entry["function"].(map[string]any); ok {
			if name, _ := function["name"].(string); name == "think" {
				return true
			}
		}
	}
	return false
}
