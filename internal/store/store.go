// ABOUTME: Telemetry record types and the Store interface.
// ABOUTME: Covers tool-call audit records and provider token usage.

package store

import (
	"context"
	"time"
)

// ToolCall is one recorded tool invocation. Records are append-only; nothing
// in request handling reads them back.
type ToolCall struct {
	ID        string        `json:"id"`
	SessionID string        `json:"sessionId"`
	Tool      string        `json:"tool"`
	IsError   bool          `json:"isError"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"createdAt"`
}

// ToolCallFilter narrows ListToolCalls. Nil fields match everything.
type ToolCallFilter struct {
	Tool    *string
	IsError *bool
	Since   *time.Time
	Limit   int
}

// ToolCallTotals summarizes the tool_calls table for diagnostics.
type ToolCallTotals struct {
	Calls  int64 `json:"calls"`
	Errors int64 `json:"errors"`
}

// Usage is one provider token-usage sample, taken from a completed response.
type Usage struct {
	ID           string    `json:"id"`
	ResponseID   string    `json:"responseId,omitempty"`
	Model        string    `json:"model,omitempty"`
	Tool         string    `json:"tool"`
	InputTokens  int64     `json:"inputTokens"`
	OutputTokens int64     `json:"outputTokens"`
	TotalTokens  int64     `json:"totalTokens"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UsageTotals aggregates usage_records for diagnostics.
type UsageTotals struct {
	Records      int64 `json:"records"`
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
}

// Store records operational telemetry: which tools ran, whether they errored,
// how long they took, and what the provider billed for chat turns.
type Store interface {
	// AppendToolCall records a tool invocation. A missing ID or CreatedAt is
	// filled in.
	AppendToolCall(ctx context.Context, call *ToolCall) error

	// ListToolCalls returns recorded invocations, newest first.
	ListToolCalls(ctx context.Context, filter ToolCallFilter) ([]ToolCall, error)

	// ToolCallTotals returns call and error counts across all records.
	ToolCallTotals(ctx context.Context) (ToolCallTotals, error)

	// SaveUsage records one token-usage sample.
	SaveUsage(ctx context.Context, usage *Usage) error

	// UsageTotals aggregates token counts across all samples.
	UsageTotals(ctx context.Context) (UsageTotals, error)

	// Close releases any resources held by the store.
	Close() error
}

// Verify SQLiteStore satisfies the interface.
var _ Store = (*SQLiteStore)(nil)
