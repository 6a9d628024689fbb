// ABOUTME: Tests for token-usage persistence and aggregation.
// ABOUTME: Covers default generation, listing order, and the totals rollup.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveUsage_GeneratesDefaults(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	usage := &Usage{
		Tool:         "chat",
		InputTokens:  120,
		OutputTokens: 45,
		TotalTokens:  165,
	}

	err := store.SaveUsage(ctx, usage)
	require.NoError(t, err)

	assert.NotEmpty(t, usage.ID, "ID should be generated")
	assert.False(t, usage.CreatedAt.IsZero(), "CreatedAt should be set")

	records, err := store.ListUsage(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, usage.ID, records[0].ID)
	assert.Empty(t, records[0].ResponseID, "NULL response_id should read back empty")
	assert.Empty(t, records[0].Model)
	assert.Equal(t, int64(120), records[0].InputTokens)
	assert.Equal(t, int64(45), records[0].OutputTokens)
	assert.Equal(t, int64(165), records[0].TotalTokens)
}

func TestStore_SaveUsage_FullRecord(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	usage := &Usage{
		ID:           "usage-1",
		ResponseID:   "resp_abc123",
		Model:        "gpt-4.1",
		Tool:         "chat",
		InputTokens:  900,
		OutputTokens: 250,
		TotalTokens:  1150,
		CreatedAt:    created,
	}

	err := store.SaveUsage(ctx, usage)
	require.NoError(t, err)

	records, err := store.ListUsage(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "usage-1", records[0].ID)
	assert.Equal(t, "resp_abc123", records[0].ResponseID)
	assert.Equal(t, "gpt-4.1", records[0].Model)
	assert.Equal(t, created, records[0].CreatedAt)
}

func TestStore_ListUsage_Empty(t *testing.T) {
	store := setupTestStore(t)

	records, err := store.ListUsage(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestStore_ListUsage_NewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveUsage(ctx, &Usage{Tool: "chat", ResponseID: "resp_1", CreatedAt: base}))
	require.NoError(t, store.SaveUsage(ctx, &Usage{Tool: "chat", ResponseID: "resp_2", CreatedAt: base.Add(time.Minute)}))

	records, err := store.ListUsage(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "resp_2", records[0].ResponseID)
	assert.Equal(t, "resp_1", records[1].ResponseID)
}

func TestStore_UsageTotals(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	totals, err := store.UsageTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, UsageTotals{}, totals, "empty store should report zeros")

	base := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveUsage(ctx, &Usage{
		Tool: "chat", InputTokens: 100, OutputTokens: 40, TotalTokens: 140, CreatedAt: base,
	}))
	require.NoError(t, store.SaveUsage(ctx, &Usage{
		Tool: "chat", InputTokens: 60, OutputTokens: 10, TotalTokens: 70, CreatedAt: base.Add(time.Minute),
	}))

	totals, err = store.UsageTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Records)
	assert.Equal(t, int64(160), totals.InputTokens)
	assert.Equal(t, int64(50), totals.OutputTokens)
	assert.Equal(t, int64(210), totals.TotalTokens)
}
