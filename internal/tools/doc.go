// Package tools defines the gateway's tool surface: the shared result types,
// the registry that publishes tool specs over tools/list, and the built-in
// echo and read_file tools.
//
// # Result Contract
//
// Every tool handler returns a Result:
//
//	{
//	  "content": [{"type": "text", "text": "..."}],
//	  "toolCalls": [],
//	  "isError": false,
//	  "metadata": {...}
//	}
//
// Tool-level failures (bad arguments, sandbox violations, upstream errors)
// are Results with isError=true. A handler returns a Go error only for
// programming faults, which the router surfaces as JSON-RPC -32603.
//
// # Registry
//
// Tools register once at startup with a name, a JSON Schema for their input,
// and a handler. Schemas are compiled at registration so malformed schemas
// fail fast. tools/list publishes specs in registration order; tools marked
// Hidden stay dispatchable without being published.
//
// # Sandbox
//
// read_file serves files strictly below a base directory. Absolute paths and
// ".." segments are rejected outright; symlinks are resolved before the
// containment check.
package tools
