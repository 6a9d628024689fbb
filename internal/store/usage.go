// ABOUTME: SQLite methods for provider token usage records.
// ABOUTME: Stores per-response token counts and aggregates them for diagnostics.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveUsage stores a token usage record.
// Generates ID and CreatedAt if not set.
func (s *SQLiteStore) SaveUsage(ctx context.Context, usage *Usage) error {
	if usage.ID == "" {
		usage.ID = uuid.New().String()
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO usage_records (
			id, response_id, model, tool,
			input_tokens, output_tokens, total_tokens,
			created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		usage.ID,
		nullString(usage.ResponseID),
		nullString(usage.Model),
		usage.Tool,
		usage.InputTokens,
		usage.OutputTokens,
		usage.TotalTokens,
		usage.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting usage: %w", err)
	}

	s.logger.Debug("saved token usage",
		"id", usage.ID,
		"responseId", usage.ResponseID,
		"inputTokens", usage.InputTokens,
		"outputTokens", usage.OutputTokens,
	)
	return nil
}

// UsageTotals returns aggregated token counts across all recorded samples.
func (s *SQLiteStore) UsageTotals(ctx context.Context) (UsageTotals, error) {
	query := `
		SELECT
			COUNT(*) as record_count,
			COALESCE(SUM(input_tokens), 0) as total_input,
			COALESCE(SUM(output_tokens), 0) as total_output,
			COALESCE(SUM(total_tokens), 0) as total_tokens
		FROM usage_records
	`

	var totals UsageTotals
	err := s.db.QueryRowContext(ctx, query).Scan(
		&totals.Records,
		&totals.InputTokens,
		&totals.OutputTokens,
		&totals.TotalTokens,
	)
	if err != nil {
		return UsageTotals{}, fmt.Errorf("aggregating usage: %w", err)
	}
	return totals, nil
}

// ListUsage returns usage samples, newest first, capped like tool-call lists.
func (s *SQLiteStore) ListUsage(ctx context.Context, limit int) ([]Usage, error) {
	query := `
		SELECT id, response_id, model, tool,
		       input_tokens, output_tokens, total_tokens,
		       created_at
		FROM usage_records
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, normalizeListLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying usage records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Usage
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage rows: %w", err)
	}

	if records == nil {
		records = []Usage{}
	}
	return records, nil
}

// scanUsage scans a single usage row into a Usage struct.
func scanUsage(rows *sql.Rows) (Usage, error) {
	var u Usage
	var responseID, model sql.NullString
	var createdStr string

	err := rows.Scan(
		&u.ID,
		&responseID,
		&model,
		&u.Tool,
		&u.InputTokens,
		&u.OutputTokens,
		&u.TotalTokens,
		&createdStr,
	)
	if err != nil {
		return u, fmt.Errorf("scanning usage row: %w", err)
	}

	if responseID.Valid {
		u.ResponseID = responseID.String
	}
	if model.Valid {
		u.Model = model.String
	}

	u.CreatedAt, err = time.Parse(time.RFC3339, createdStr)
	if err != nil {
		return u, fmt.Errorf("parsing created_at: %w", err)
	}
	return u, nil
}
