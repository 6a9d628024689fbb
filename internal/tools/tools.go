// ABOUTME: Core tool types shared across the gateway: results, content blocks, tool calls.
// ABOUTME: Every tool handler returns a Result; errors inside a tool never become JSON-RPC errors.

package tools

import "context"

// ContentBlock is a single content item in a tool result. Text blocks are the
// common case, but providers can emit other shapes and those pass through
// untouched, so the block stays schemaless.
type ContentBlock map[string]any

// Type returns the block's type discriminator, or "" when absent.
func (b ContentBlock) Type() string {
	t, _ := b["type"].(string)
	return t
}

// Text returns the block's text payload, or "" for non-text shapes.
func (b ContentBlock) Text() string {
	s, _ := b["text"].(string)
	return s
}

// ToolCall is a provider-issued function call surfaced to the MCP client.
type ToolCall struct {
	ID        string         `json:"id"`
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments"`
}

// Result is the uniform tool response shape. Content and ToolCalls are always
// present on the wire (empty arrays, never null); Metadata is omitted when empty.
type Result struct {
	Content   []ContentBlock `json:"content"`
	ToolCalls []ToolCall     `json:"toolCalls"`
	IsError   bool           `json:"isError"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Handler executes a tool call. A returned error signals an internal failure
// (surfaced as JSON-RPC -32603); tool-level failures are Results with IsError set.
type Handler func(ctx context.Context, args map[string]any) (Result, error)

// TextBlock builds a single text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{"type": "text", "text": text}
}

// OKResult builds a successful result. Nil content or toolCalls become empty slices.
func OKResult(content []ContentBlock, toolCalls []ToolCall, metadata map[string]any) Result {
	if content == nil {
		content = []ContentBlock{}
	}
	if toolCalls == nil {
		toolCalls = []ToolCall{}
	}
	r := Result{
		Content:   content,
		ToolCalls: toolCalls,
		IsError:   false,
	}
	if len(metadata) > 0 {
		r.Metadata = metadata
	}
	return r
}

// TextResult builds a successful result holding one text block.
func TextResult(text string, metadata map[string]any) Result {
	return OKResult([]ContentBlock{TextBlock(text)}, nil, metadata)
}

// ErrorResult builds a tool-level error result with the message as its only
// content block.
func ErrorResult(message string, metadata map[string]any) Result {
	r := Result{
		Content:   []ContentBlock{TextBlock(message)},
		ToolCalls: []ToolCall{},
		IsError:   true,
	}
	if len(metadata) > 0 {
		r.Metadata = metadata
	}
	return r
}
