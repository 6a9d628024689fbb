// Package chat implements the chat tool: a bounded conversation loop
// against an asynchronous Responses-style provider, with think-tool
// dispatch between turns.
//
// # Request side
//
// ExtractParams validates the tool arguments and NormalizeInputMessages
// scrubs the conversation history. BuildRequest assembles the first
// submission; when the think tool is enabled its function declaration is
// injected unless the caller already listed one. Argument problems are
// *ArgError values and come back to the client as tool errors with
// readable text, never as JSON-RPC faults.
//
// # Response side
//
// Normalize folds whatever the provider returned into content blocks,
// tool calls, and meta. Three strategies run in order: Responses output
// items, chat-completions choices, and finally the raw payload as a text
// block, which makes the function total. Output item and block types the
// gateway does not model pass through as opaque blocks rather than being
// dropped.
//
// # The loop
//
// Orchestrator.run submits, resolves through the poller, normalizes, and
// hands tool calls to the think processor. Think results become
// function_call_output items for a follow-up submission that references
// only the previous response id; hosted tool calls are returned to the
// MCP client as remaining work instead. The loop stops at MaxTurns with a
// stable error message, and every think dispatch along the way is kept in
// the response metadata under thinkTool. Token usage is reported to the
// configured UsageRecorder after each completed turn. Trace context from
// the request metadata is serialized across the provider boundary and
// unpacked again on the way back.
package chat
