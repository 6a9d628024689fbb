// Package mcp implements the gateway's JSON-RPC 2.0 surface for MCP clients.
//
// # Overview
//
// MCP (Model Context Protocol) is a standard for AI tool integration. This
// package provides an MCP-compatible HTTP endpoint that exposes the gateway's
// tools (echo, read_file, chat, and optionally think) to external clients.
//
// # Protocol
//
// The server uses JSON-RPC 2.0 over plain HTTP:
//
//   - POST /mcp - JSON-RPC requests (initialize, ping, shutdown, tools/list, tools/call)
//   - GET /mcp - transport discovery (protocol version, capabilities, endpoint)
//
// Requests without an id (or with id null) are notifications and are
// acknowledged with HTTP 202 and no body. Everything else gets an HTTP 200
// whose body is either a result or a JSON-RPC error object.
//
// # Sessions
//
// initialize allocates a fresh session and returns its id both in the result
// and in the Mcp-Session-Id response header:
//
//	{
//	  "jsonrpc": "2.0",
//	  "method": "initialize",
//	  "params": {"clientInfo": {"name": "my-client"}},
//	  "id": 1
//	}
//
// Subsequent ping, tools/list, and tools/call requests carry the id in
// params.sessionId. In strict mode (the default) a missing or unknown id is
// rejected with code -32001; in lenient mode the gateway auto-creates
// sessions, binding id-less callers to a shared "_auto" session.
//
// # Tool Execution
//
// Clients call tools/call to execute a tool:
//
//	{
//	  "jsonrpc": "2.0",
//	  "method": "tools/call",
//	  "params": {"name": "echo", "arguments": {"text": "hi"}, "sessionId": "..."},
//	  "id": 2
//	}
//
// The result is always the uniform tool payload {content, toolCalls, isError,
// metadata?}. Tool-level failures (bad arguments, provider errors, think-tool
// failures) set isError instead of becoming JSON-RPC errors, so MCP clients
// can render them uniformly. JSON-RPC errors are reserved for protocol
// problems: parse errors, unknown methods or tools, malformed params, missing
// sessions, and panics (-32603).
package mcp
