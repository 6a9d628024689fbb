// ABOUTME: Tool handler wrapper that records telemetry into the store.
// ABOUTME: Captures duration, error flag, session id, and provider token usage.

package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/seer-gateway/internal/mcp"
	"github.com/2389/seer-gateway/internal/store"
	"github.com/2389/seer-gateway/internal/tools"
)

// recorder persists per-call telemetry. Recording failures are logged and
// never fail the call itself.
type recorder struct {
	store  store.Store
	logger *slog.Logger
}

func newRecorder(s store.Store, logger *slog.Logger) *recorder {
	return &recorder{
		store:  s,
		logger: logger.With("component", "recorder"),
	}
}

// wrap decorates a tool handler so every invocation lands in the store.
func (r *recorder) wrap(tool string, handler tools.Handler) tools.Handler {
	return func(ctx context.Context, args map[string]any) (tools.Result, error) {
		start := time.Now()
		result, err := handler(ctx, args)
		r.record(ctx, tool, result, err, time.Since(start))
		return result, err
	}
}

func (r *recorder) record(ctx context.Context, tool string, result tools.Result, callErr error, elapsed time.Duration) {
	sessionID := ""
	if sess, ok := mcp.SessionFromContext(ctx); ok {
		sessionID = sess.ID
	}

	// The request context may already be canceled when the handler failed;
	// the record still has to land.
	ctx = context.WithoutCancel(ctx)

	call := &store.ToolCall{
		SessionID: sessionID,
		Tool:      tool,
		IsError:   callErr != nil || result.IsError,
		Duration:  elapsed,
	}
	if err := r.store.AppendToolCall(ctx, call); err != nil {
		r.logger.Warn("failed to record tool call", "tool", tool, "error", err)
	}
}

// RecordUsage satisfies chat.UsageRecorder. The orchestrator reports one
// sample per completed provider turn, so intermediate turns of a multi-turn
// chat are accounted for, not just the one that produced the final result.
func (r *recorder) RecordUsage(ctx context.Context, responseID, model string, usage map[string]any) {
	sample := &store.Usage{
		ResponseID:   responseID,
		Model:        model,
		Tool:         "chat",
		InputTokens:  tokenCount(usage, "input_tokens", "prompt_tokens"),
		OutputTokens: tokenCount(usage, "output_tokens", "completion_tokens"),
		TotalTokens:  tokenCount(usage, "total_tokens"),
	}
	if sample.TotalTokens == 0 {
		sample.TotalTokens = sample.InputTokens + sample.OutputTokens
	}

	ctx = context.WithoutCancel(ctx)
	if err := r.store.SaveUsage(ctx, sample); err != nil {
		r.logger.Warn("failed to record token usage", "response_id", responseID, "error", err)
	}
}

// tokenCount reads the first present key. Decoded JSON numbers arrive as
// float64; int and int64 values are accepted as-is.
func tokenCount(usage map[string]any, keys ...string) int64 {
	for _, key := range keys {
		switch n := usage[key].(type) {
		case float64:
			return int64(n)
		case int:
			return int64(n)
		case int64:
			return n
		}
	}
	return 0
}
