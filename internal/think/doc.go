// Package think delegates the model's intermediate reasoning to an external
// MCP "think" server and folds the results back into the chat loop.
//
// Three pieces cooperate:
//
//   - Client speaks JSON-RPC over HTTP to the upstream server. It negotiates
//     a session once per process (ping, initialize, notifications/initialized),
//     tracks the mcp-session-id header, tolerates text/event-stream framed
//     replies, and retries transport failures with exponential backoff.
//
//   - Tool adapts the client into the shared tool contract. The handler is
//     always registered so a direct tools/call name="think" while disabled
//     yields a tool-level error rather than Tool not found; the Spec is
//     hidden from tools/list until enabled.
//
//   - Processor consumes one turn's provider tool calls: think calls are
//     dispatched in order through the handler, each producing a LogEntry and
//     a function_call_output follow-up input; any failure aborts the turn.
//     Everything else is passed back untouched for the MCP client to run.
//
// Dispatch is sequential. Follow-up inputs must line up with the provider's
// call order, and the upstream server is a single reasoning log anyway.
package think
