// ABOUTME: Tool-call audit methods for recording and listing invocations.
// ABOUTME: Append-only telemetry; the audit CLI command and diagnostics read it.

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendToolCall records a tool invocation.
// Generates ID and CreatedAt if not set.
func (s *SQLiteStore) AppendToolCall(ctx context.Context, call *ToolCall) error {
	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}

	isError := 0
	if call.IsError {
		isError = 1
	}

	query := `
		INSERT INTO tool_calls (id, session_id, tool, is_error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		call.ID,
		call.SessionID,
		call.Tool,
		isError,
		call.Duration.Milliseconds(),
		call.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting tool call: %w", err)
	}

	s.logger.Debug("recorded tool call",
		"id", call.ID,
		"tool", call.Tool,
		"isError", call.IsError,
		"durationMs", call.Duration.Milliseconds(),
	)
	return nil
}

// normalizeListLimit applies default (100) and cap (1000) to list limits.
func normalizeListLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// toolCallQueryArgs holds nullable query arguments built from a ToolCallFilter.
type toolCallQueryArgs struct {
	sinceStr *string
	isError  *int
}

// buildToolCallQueryArgs converts filter time/bool fields to query args.
func buildToolCallQueryArgs(f ToolCallFilter) toolCallQueryArgs {
	var args toolCallQueryArgs
	if f.Since != nil {
		s := f.Since.UTC().Format(time.RFC3339)
		args.sinceStr = &s
	}
	if f.IsError != nil {
		v := 0
		if *f.IsError {
			v = 1
		}
		args.isError = &v
	}
	return args
}

// scanToolCall scans a row into a ToolCall.
func scanToolCall(scanner interface{ Scan(dest ...any) error }) (ToolCall, error) {
	var c ToolCall
	var isError int
	var durationMS int64
	var createdStr string

	if err := scanner.Scan(
		&c.ID,
		&c.SessionID,
		&c.Tool,
		&isError,
		&durationMS,
		&createdStr,
	); err != nil {
		return c, fmt.Errorf("scanning tool call: %w", err)
	}

	c.IsError = isError != 0
	c.Duration = time.Duration(durationMS) * time.Millisecond
	var err error
	c.CreatedAt, err = time.Parse(time.RFC3339, createdStr)
	if err != nil {
		return c, fmt.Errorf("parsing created_at: %w", err)
	}
	return c, nil
}

const toolCallListQuery = `
	SELECT id, session_id, tool, is_error, duration_ms, created_at
	FROM tool_calls
	WHERE (? IS NULL OR tool = ?)
	  AND (? IS NULL OR is_error = ?)
	  AND (? IS NULL OR created_at >= ?)
	ORDER BY created_at DESC
	LIMIT ?
`

// ListToolCalls returns recorded invocations matching the filter criteria.
// Results are returned newest first (DESC by creation time).
func (s *SQLiteStore) ListToolCalls(ctx context.Context, f ToolCallFilter) ([]ToolCall, error) {
	limit := normalizeListLimit(f.Limit)
	args := buildToolCallQueryArgs(f)

	rows, err := s.db.QueryContext(ctx, toolCallListQuery,
		f.Tool, f.Tool,
		args.isError, args.isError,
		args.sinceStr, args.sinceStr,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tool calls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var calls []ToolCall
	for rows.Next() {
		c, err := scanToolCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool calls: %w", err)
	}

	if calls == nil {
		calls = []ToolCall{}
	}
	return calls, nil
}

// ToolCallTotals returns call and error counts across all recorded invocations.
func (s *SQLiteStore) ToolCallTotals(ctx context.Context) (ToolCallTotals, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(is_error), 0)
		FROM tool_calls
	`

	var totals ToolCallTotals
	err := s.db.QueryRowContext(ctx, query).Scan(&totals.Calls, &totals.Errors)
	if err != nil {
		return ToolCallTotals{}, fmt.Errorf("aggregating tool calls: %w", err)
	}
	return totals, nil
}
