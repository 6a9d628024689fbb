// ABOUTME: Partitions provider tool calls into think work and client-owned remainder.
// ABOUTME: Builds function_call_output follow-ups and the per-call log trail.

package think

import (
	"context"
	"log/slog"
	"strings"

	"github.com/2389/seer-gateway/internal/tools"
)

// LogEntry records one think dispatch for the final response metadata.
type LogEntry struct {
	CallID   string               `json:"callId"`
	Status   string               `json:"status"`
	Content  []tools.ContentBlock `json:"content"`
	Metadata map[string]any       `json:"metadata"`
}

// ProcessResult is the outcome of one turn's tool call batch. ErrorMessage is
// set when the turn must abort; logs collected up to that point are kept.
type ProcessResult struct {
	FollowUpInputs []map[string]any
	RemainingCalls []tools.ToolCall
	Logs           []LogEntry
	ErrorMessage   string
	ErrorMetadata  map[string]any
}

// Failed reports whether the turn aborted on a think failure.
func (r ProcessResult) Failed() bool { return r.ErrorMessage != "" }

// Processor dispatches think calls through a tool handler, sequentially and
// in provider order so follow-up inputs line up with call indexes.
type Processor struct {
	handler tools.Handler
	logger  *slog.Logger
}

// NewProcessor wires the processor to the think tool handler.
func NewProcessor(handler tools.Handler, logger *slog.Logger) *Processor {
	return &Processor{
		handler: handler,
		logger:  logger.With("component", "think"),
	}
}

// Process walks the calls in order. Non-think calls pass through as remaining
// work for the MCP client. Each think call is validated, dispatched, and
// logged; the first failure aborts the turn. A returned error means the
// handler itself broke, not that the upstream tool failed.
func (p *Processor) Process(ctx context.Context, calls []tools.ToolCall) (ProcessResult, error) {
	result := ProcessResult{
		FollowUpInputs: []map[string]any{},
		RemainingCalls: []tools.ToolCall{},
		Logs:           []LogEntry{},
	}

	for _, call := range calls {
		if call.ToolName != "think" {
			result.RemainingCalls = append(result.RemainingCalls, call)
			continue
		}

		// A follow-up without a call id cannot be paired by the provider, so
		// the whole turn fails before any dispatch.
		if strings.TrimSpace(call.ID) == "" {
			result.ErrorMessage = "Invalid think-tool call identifier."
			return result, nil
		}

		args := call.Arguments
		if args == nil {
			args = map[string]any{}
		}

		toolResult, err := p.handler(ctx, args)
		if err != nil {
			return result, err
		}

		status := "ok"
		if toolResult.IsError {
			status = "error"
		}
		p.logger.Debug("think call dispatched", "call_id", call.ID, "status", status)

		result.Logs = append(result.Logs, LogEntry{
			CallID:   call.ID,
			Status:   status,
			Content:  toolResult.Content,
			Metadata: toolResult.Metadata,
		})

		if toolResult.IsError {
			result.ErrorMessage = errorText(toolResult.Content)
			result.ErrorMetadata = toolResult.Metadata
			return result, nil
		}

		result.FollowUpInputs = append(result.FollowUpInputs, map[string]any{
			"type":    "function_call_output",
			"call_id": call.ID,
			"output": []map[string]any{
				{"type": "input_text", "text": followUpText(toolResult.Content)},
			},
		})
	}

	return result, nil
}

// followUpText folds result blocks into the output text the provider sees.
// Blank results still acknowledge the call so the model can move on.
func followUpText(content []tools.ContentBlock) string {
	var texts []string
	for _, block := range content {
		if text := strings.TrimSpace(block.Text()); text != "" {
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return "ok"
	}
	return strings.Join(texts, "\n\n")
}

func errorText(content []tools.ContentBlock) string {
	var texts []string
	for _, block := range content {
		if text := block.Text(); text != "" {
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return "think-tool returned error"
	}
	return strings.Join(texts, "\n")
}
