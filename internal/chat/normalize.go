// ABOUTME: Folds heterogeneous provider payloads into content blocks, tool calls, meta.
// ABOUTME: Responses output first, chat-completions fallback second, raw JSON last.

package chat

import (
	"encoding/json"
	"fmt"

	"github.com/2389/seer-gateway/internal/tools"
)

// Normalize is total: any payload yields at least one content block. The
// Responses shape is tried first, then chat-completions, and as a last
// resort the raw payload is surfaced as text so the client never receives a
// blank response.
func Normalize(data map[string]any) ([]tools.ContentBlock, []tools.ToolCall, map[string]any) {
	content, calls, meta := extract(data)
	if len(content) == 0 && len(calls) == 0 {
		content = append(content, rawPayloadBlock(data))
	}
	return content, calls, meta
}

// extract runs the two structured strategies without the raw fallback, so
// callers can tell "nothing usable" apart from a real answer.
func extract(data map[string]any) ([]tools.ContentBlock, []tools.ToolCall, map[string]any) {
	content, calls, meta := normalizeResponses(data)
	if len(content) == 0 && len(calls) == 0 {
		fallbackContent, fallbackCalls, fallbackMeta := normalizeChatCompletion(data)
		if len(fallbackContent) > 0 || len(fallbackCalls) > 0 {
			content, calls = fallbackContent, fallbackCalls
			for key, value := range fallbackMeta {
				meta[key] = value
			}
		}
	}
	return content, calls, meta
}

// normalizeResponses walks Responses API output items. Message items
// contribute their blocks, call items become ToolCalls, and item types we do
// not model pass through as opaque blocks.
func normalizeResponses(data map[string]any) ([]tools.ContentBlock, []tools.ToolCall, map[string]any) {
	content := []tools.ContentBlock{}
	calls := []tools.ToolCall{}

	for _, raw := range outputItems(data) {
		if text, ok := raw.(string); ok {
			var parsed any
			if err := json.Unmarshal([]byte(text), &parsed); err != nil {
				continue
			}
			raw = parsed
		}
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		switch itemType, _ := item["type"].(string); itemType {
		case "message":
			blocks, blockCalls := messageBlocks(item)
			content = append(content, blocks...)
			calls = append(calls, blockCalls...)
		case "tool_call", "function_call":
			calls = append(calls, convertToolCallBlock(item))
		case "output_text", "text":
			if text, _ := item["text"].(string); text != "" {
				content = append(content, tools.TextBlock(text))
			}
		default:
			content = append(content, tools.ContentBlock(item))
		}
	}

	return content, calls, responseMeta(data, firstString(data["status"], data["finish_reason"]))
}

// messageBlocks splits a message item's content into text blocks, embedded
// tool calls, and opaque pass-through blocks.
func messageBlocks(item map[string]any) ([]tools.ContentBlock, []tools.ToolCall) {
	var blocks []tools.ContentBlock
	var calls []tools.ToolCall

	rawBlocks, _ := item["content"].([]any)
	for _, rawBlock := range rawBlocks {
		block, ok := rawBlock.(map[string]any)
		if !ok {
			continue
		}
		switch blockType, _ := block["type"].(string); blockType {
		case "output_text", "text", "input_text":
			if text := firstString(block["text"], block["value"]); text != "" {
				blocks = append(blocks, tools.TextBlock(text))
			}
		case "tool_call", "function_call":
			calls = append(calls, convertToolCallBlock(block))
		default:
			blocks = append(blocks, tools.ContentBlock(block))
		}
	}
	return blocks, calls
}

// normalizeChatCompletion handles the classic completions shape some
// backends still return. Only the first choice is considered.
func normalizeChatCompletion(data map[string]any) ([]tools.ContentBlock, []tools.ToolCall, map[string]any) {
	content := []tools.ContentBlock{}
	calls := []tools.ToolCall{}

	choices, _ := data["choices"].([]any)
	if len(choices) == 0 {
		return content, calls, map[string]any{}
	}
	choice, _ := choices[0].(map[string]any)
	message, _ := choice["message"].(map[string]any)

	switch value := message["content"].(type) {
	case []any:
		for _, rawItem := range value {
			item, ok := rawItem.(map[string]any)
			if !ok || item["type"] != "text" {
				continue
			}
			if text, _ := item["text"].(string); text != "" {
				content = append(content, tools.TextBlock(text))
			}
		}
	case string:
		if value != "" {
			content = append(content, tools.TextBlock(value))
		}
	}

	rawCalls, _ := message["tool_calls"].([]any)
	for _, rawCall := range rawCalls {
		call, ok := rawCall.(map[string]any)
		if !ok {
			continue
		}
		function, _ := call["function"].(map[string]any)
		calls = append(calls, tools.ToolCall{
			ID:        firstString(call["id"]),
			ToolName:  firstString(function["name"], call["type"]),
			Arguments: parseCallArguments(function["arguments"]),
		})
	}

	return content, calls, responseMeta(data, firstString(choice["finish_reason"]))
}

// convertToolCallBlock maps the provider's id and name variants onto one
// ToolCall shape. String arguments are parsed as JSON; unparseable ones are
// wrapped under "raw" so nothing is dropped.
func convertToolCallBlock(block map[string]any) tools.ToolCall {
	return tools.ToolCall{
		ID:        firstString(block["call_id"], block["id"], block["tool_call_id"]),
		ToolName:  firstString(block["name"], block["tool_name"]),
		Arguments: parseCallArguments(block["arguments"]),
	}
}

func parseCallArguments(raw any) map[string]any {
	switch value := raw.(type) {
	case map[string]any:
		return value
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			return map[string]any{"raw": value}
		}
		if parsed == nil {
			return map[string]any{}
		}
		return parsed
	default:
		return map[string]any{}
	}
}

// outputItems prefers "output" and falls back to "outputs"; an empty
// primary list defers to the fallback the same way a missing one does.
func outputItems(data map[string]any) []any {
	if items, ok := data["output"].([]any); ok && len(items) > 0 {
		return items
	}
	items, _ := data["outputs"].([]any)
	return items
}

// responseMeta assembles the meta keys of the tool response contract:
// usage, finishReason, responseId, model.
func responseMeta(data map[string]any, finishReason string) map[string]any {
	meta := map[string]any{}
	if usage, ok := data["usage"].(map[string]any); ok && len(usage) > 0 {
		meta["usage"] = usage
	}
	if finishReason != "" {
		meta["finishReason"] = finishReason
	}
	if id, _ := data["id"].(string); id != "" {
		meta["responseId"] = id
	}
	if model, _ := data["model"].(string); model != "" {
		meta["model"] = model
	}
	return meta
}

// rawPayloadBlock keeps the "content is never empty" contract.
func rawPayloadBlock(data map[string]any) tools.ContentBlock {
	serialized, err := json.Marshal(data)
	if err != nil {
		return tools.TextBlock(fmt.Sprintf("%v", data))
	}
	return tools.TextBlock(string(serialized))
}

func firstString(values ...any) string {
	for _, value := range values {
		if s, ok := value.(string); ok && s != "" {
			return s
		}
	}
	return ""
}
