// ABOUTME: The chat tool loop: submit, poll, normalize, dispatch think calls, follow up.
// ABOUTME: Bounded by MaxTurns; each turn references only the previous response id.

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/2389/seer-gateway/internal/provider"
	"github.com/2389/seer-gateway/internal/think"
	"github.com/2389/seer-gateway/internal/tools"
	"github.com/2389/seer-gateway/internal/trace"
)

const defaultMaxTurns = 15

// maxTurnsMessage is the stable guardrail text clients can match on.
const maxTurnsMessage = "Reached maximum tool iterations without completion."

// cancelledMessage is the sentinel for requests abandoned by the caller.
const cancelledMessage = "chat request cancelled"

// Submitter creates provider responses. *provider.Client satisfies it.
type Submitter interface {
	Create(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

// Awaiter resolves a response to a terminal state, or gives up and returns
// the last known one. *provider.Poller satisfies it.
type Awaiter interface {
	Await(ctx context.Context, resp *provider.Response) (*provider.Response, error)
}

// UsageRecorder receives one token-usage sample per completed provider turn.
// Recording is fire and forget; implementations own their failure handling.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, responseID, model string, usage map[string]any)
}

// Orchestrator runs the chat loop. It is the only component that carries
// per-request conversation state; everything it calls is stateless across a
// single request.
type Orchestrator struct {
	submitter    Submitter
	awaiter      Awaiter
	thinkHandler tools.Handler
	thinkOn      bool
	trace        trace.Settings
	usage        UsageRecorder
	maxTurns     int
	logger       *slog.Logger

	// rootLogger is untagged; per-request collaborators add their own
	// component attribute.
	rootLogger *slog.Logger
}

// OrchestratorConfig wires the orchestrator's collaborators.
type OrchestratorConfig struct {
	Submitter    Submitter
	Awaiter      Awaiter
	ThinkHandler tools.Handler
	ThinkEnabled bool
	Trace        trace.Settings
	Usage        UsageRecorder
	MaxTurns     int
}

// NewOrchestrator builds the chat orchestrator. MaxTurns below 1 falls back
// to the default loop bound.
func NewOrchestrator(cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	maxTurns := cfg.MaxTurns
	if maxTurns < 1 {
		maxTurns = defaultMaxTurns
	}
	return &Orchestrator{
		submitter:    cfg.Submitter,
		awaiter:      cfg.Awaiter,
		thinkHandler: cfg.ThinkHandler,
		thinkOn:      cfg.ThinkEnabled,
		trace:        cfg.Trace,
		usage:        cfg.Usage,
		maxTurns:     maxTurns,
		logger:       logger.With("component", "chat"),
		rootLogger:   logger,
	}
}

// Spec returns the chat tool registry entry.
func Spec() tools.Spec {
	return tools.Spec{
		Name:        "chat",
		Description: "Call an OpenAI Responses API compatible endpoint.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"model": {"type": "string", "description": "Model name, e.g. gpt-4.1-mini"},
				"messages": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"role": {"type": "string", "description": "system|user|assistant|tool"},
							"content": {
								"anyOf": [
									{"type": "string"},
									{"type": "array", "items": {"type": "object"}}
								]
							}
						},
						"required": ["role", "content"],
						"additionalProperties": false
					},
					"description": "Conversation history in OpenAI chat format."
				},
				"temperature": {"type": "number", "description": "0-2 range", "default": 0.7},
				"max_tokens": {"type": "integer", "description": "Max output tokens for the response"},
				"top_p": {"type": "number", "description": "Nucleus sampling"},
				"tools": {
					"type": "array",
					"description": "Hosted tools for Responses API (e.g., [{'type':'web_search'}]).",
					"items": {"type": "object"}
				},
				"tool_choice": {
					"type": "string",
					"description": "Tool choice mode for Responses API (e.g., 'auto')."
				},
				"metadata": {"type": "object", "description": "Optional vendor-specific options"},
				"parallelToolCalls": {
					"type": "boolean",
					"description": "Allow hosted tools to run in parallel"
				}
			},
			"required": ["model", "messages"],
			"additionalProperties": false
		}`),
		OutputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"content": {"type": "array"},
				"toolCalls": {"type": "array"},
				"isError": {"type": "boolean"}
			},
			"required": [],
			"additionalProperties": false
		}`),
	}
}

// Handler adapts the orchestrator to the tool registry.
func (o *Orchestrator) Handler() tools.Handler {
	return func(ctx context.Context, args map[string]any) (tools.Result, error) {
		return o.run(ctx, args)
	}
}

func (o *Orchestrator) run(ctx context.Context, args map[string]any) (tools.Result, error) {
	params, err := ExtractParams(args)
	var input []map[string]any
	if err == nil {
		input, err = NormalizeInputMessages(params.Messages)
	}
	if err != nil {
		var argErr *ArgError
		if errors.As(err, &argErr) {
			return tools.ErrorResult(argErr.Message, nil), nil
		}
		return tools.Result{}, err
	}

	tracer := trace.NewTracer(o.trace, trace.ExtractContext(params.Metadata), o.rootLogger)
	tracer.Start(map[string]any{"model": params.Model, "messages": input})

	processor := think.NewProcessor(o.linkedThinkHandler(tracer), o.rootLogger)

	// Trace context must survive the provider round trip as a string value.
	serializedMeta := trace.SerializeMetadata(params.Metadata)
	req := BuildRequest(params, input, o.thinkOn)
	req.Metadata = serializedMeta

	var logs []think.LogEntry

	response, err := o.submitter.Create(ctx, req)
	if err != nil {
		message, errMeta := providerFailure(ctx, err, "")
		return o.fail(tracer, logs, message, errMeta), nil
	}
	lastID := response.ID

	for turn := 0; turn < o.maxTurns; turn++ {
		if ctx.Err() != nil {
			return o.fail(tracer, logs, cancelledMessage, nil), nil
		}

		resolved, err := o.awaiter.Await(ctx, response)
		if err != nil {
			message, errMeta := providerFailure(ctx, err, lastID)
			return o.fail(tracer, logs, message, errMeta), nil
		}
		if resolved.ID != "" {
			lastID = resolved.ID
		}

		if !resolved.Terminal() {
			// Poll budget ran out. A snapshot carries no dispatchable tool
			// calls; surface its content if it has any, fail otherwise.
			o.logger.Warn("provider response still pending after polling",
				"response_id", lastID, "status", resolved.Status)
			content, _, meta := extract(resolved.Data)
			if len(content) == 0 {
				errMeta := map[string]any{"status": resolved.Status}
				if lastID != "" {
					errMeta["responseId"] = lastID
				}
				return o.fail(tracer, logs, "Provider response did not complete within the polling budget.", errMeta), nil
			}
			return o.succeed(tracer, logs, content, nil, unpackEchoedMetadata(meta, resolved.Data)), nil
		}

		content, calls, meta := Normalize(resolved.Data)
		meta = unpackEchoedMetadata(meta, resolved.Data)
		o.recordUsage(ctx, meta)

		if len(calls) == 0 {
			return o.succeed(tracer, logs, content, nil, meta), nil
		}

		outcome, err := processor.Process(ctx, calls)
		logs = append(logs, outcome.Logs...)
		if err != nil {
			tracer.FinishError(nil, err.Error())
			return tools.Result{}, err
		}
		if outcome.Failed() {
			if ctx.Err() != nil {
				return o.fail(tracer, logs, cancelledMessage, nil), nil
			}
			return o.fail(tracer, logs, outcome.ErrorMessage, outcome.ErrorMetadata), nil
		}

		if len(outcome.FollowUpInputs) == 0 {
			// Only hosted tool calls remain; the MCP client executes those.
			return o.succeed(tracer, logs, content, outcome.RemainingCalls, meta), nil
		}

		if lastID == "" {
			return o.fail(tracer, logs, "Provider response did not include an identifier for follow-up.", nil), nil
		}

		o.logger.Debug("submitting follow-up", "previous_response_id", lastID,
			"outputs", len(outcome.FollowUpInputs), "turn", turn+1)
		response, err = o.submitter.Create(ctx, FollowUpRequest(params.Model, lastID, outcome.FollowUpInputs, serializedMeta))
		if err != nil {
			message, errMeta := providerFailure(ctx, err, lastID)
			return o.fail(tracer, logs, message, errMeta), nil
		}
	}

	o.logger.Warn("chat loop hit the turn bound", "max_turns", o.maxTurns)
	return o.fail(tracer, logs, maxTurnsMessage, nil), nil
}

// recordUsage forwards a turn's token accounting when the provider sent any.
func (o *Orchestrator) recordUsage(ctx context.Context, meta map[string]any) {
	if o.usage == nil {
		return
	}
	usage, ok := meta["usage"].(map[string]any)
	if !ok || len(usage) == 0 {
		return
	}
	responseID, _ := meta["responseId"].(string)
	model, _ := meta["model"].(string)
	o.usage.RecordUsage(ctx, responseID, model, usage)
}

// linkedThinkHandler injects the tracer's context into each think dispatch
// so the upstream server nests its runs under this request's run.
func (o *Orchestrator) linkedThinkHandler(tracer *trace.Tracer) tools.Handler {
	return func(ctx context.Context, args map[string]any) (tools.Result, error) {
		linked := tracer.ThinkMetadata()
		if linked == nil {
			return o.thinkHandler(ctx, args)
		}
		merged := make(map[string]any, len(args)+1)
		for key, value := range args {
			merged[key] = value
		}
		if _, present := merged["metadata"]; !present {
			merged["metadata"] = linked
		}
		return o.thinkHandler(ctx, merged)
	}
}

func (o *Orchestrator) succeed(tracer *trace.Tracer, logs []think.LogEntry, content []tools.ContentBlock, calls []tools.ToolCall, meta map[string]any) tools.Result {
	meta = tracer.Annotate(withThinkLogs(meta, logs))
	result := tools.OKResult(content, calls, meta)
	tracer.FinishSuccess(result)
	return result
}

func (o *Orchestrator) fail(tracer *trace.Tracer, logs []think.LogEntry, message string, meta map[string]any) tools.Result {
	meta = tracer.Annotate(withThinkLogs(meta, logs))
	result := tools.ErrorResult(message, meta)
	tracer.FinishError(result, message)
	return result
}

func withThinkLogs(meta map[string]any, logs []think.LogEntry) map[string]any {
	if len(logs) == 0 {
		return meta
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["thinkTool"] = logs
	return meta
}

// providerFailure maps a create or await failure onto the tool error
// surface. Cancellation wins over whatever the transport reported.
func providerFailure(ctx context.Context, err error, responseID string) (string, map[string]any) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return cancelledMessage, nil
	}
	var meta map[string]any
	if responseID != "" {
		meta = map[string]any{"responseId": responseID}
	}
	return "Provider request failed: " + err.Error(), meta
}

// unpackEchoedMetadata restores structure to provider-echoed request
// metadata, so trace context serialized on the way out comes back intact.
func unpackEchoedMetadata(meta map[string]any, data map[string]any) map[string]any {
	echoed, ok := data["metadata"].(map[string]any)
	if !ok || len(echoed) == 0 {
		return meta
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["metadata"] = trace.DeserializeMetadata(echoed)
	return meta
}
