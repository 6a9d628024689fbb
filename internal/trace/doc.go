// Package trace records chat invocations as LangSmith runs.
//
// Tracing activates per request: either the process enables it globally
// (LANGSMITH_TRACING) or the client opts in through request metadata, by
// setting metadata.langsmith.enabled or by supplying any of parent_run_id,
// run_id, or trace_id to chain onto an existing trace. Flat
// langsmith_*-prefixed keys are accepted from clients that cannot send
// nested metadata. Without an API key the tracer stays inert.
//
// A Tracer covers exactly one chat call: Start opens the run (minting ids
// when the client supplied none), Annotate stamps the run identifiers into
// the response metadata, ThinkMetadata forwards them to the think server so
// its runs nest under ours, and FinishSuccess/FinishError close the run.
// Every API call is best-effort with its own five second deadline, detached
// from the request context; a failed trace call downgrades the tracer and
// the chat proceeds untraced.
//
// SerializeMetadata and DeserializeMetadata handle the provider boundary:
// provider metadata values must be strings, so structured langsmith context
// is JSON-encoded on the way out and parsed back on the way in.
package trace
