// Package store records operational telemetry for the gateway using SQLite.
//
// # Scope
//
// The store is deliberately small: it holds an append-only audit trail of
// tool invocations plus provider token-usage samples. It is not a session or
// conversation database; nothing recorded here is read back into request
// handling. Diagnostics endpoints and the audit CLI command are the only
// readers.
//
// # Data Models
//
//   - ToolCall: one tool invocation (tool name, session, error flag, duration)
//   - Usage: one provider token-usage sample (input/output/total tokens)
//
// Aggregate views:
//
//   - ToolCallTotals: call and error counts for diagnostics
//   - UsageTotals: summed token counts for diagnostics
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// An in-memory database (":memory:") pins the pool to a single connection so
// every query sees the same database. Timestamps are stored as RFC3339 text,
// which also makes lexicographic ordering chronological.
//
// # Testing
//
// Use NewSQLiteStore(":memory:", nil) or a t.TempDir-backed file for tests;
// there is no mock implementation.
//
// All methods accept context.Context for cancellation support.
package store
