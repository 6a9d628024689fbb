// ABOUTME: Health and diagnostics HTTP handlers.
// ABOUTME: Reports non-secret configuration state and store totals.

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"github.com/2389/seer-gateway/internal/mcp"
)

// handleHealth reports liveness.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleDiagnostics returns a state report without revealing secrets: key
// presence flags instead of keys, and aggregate store counts.
func (g *Gateway) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	cfg := g.config

	info, err := os.Stat(cfg.Files.BaseDir)
	baseDirExists := err == nil && info.IsDir()

	names := g.registry.Names()

	report := map[string]any{
		"status": "ok",
		"app": map[string]any{
			"name":    mcp.ServerName,
			"version": mcp.ServerVersion,
		},
		"openai": map[string]any{
			"base_url":    cfg.OpenAI.BaseURL,
			"api_key_set": cfg.OpenAI.APIKey != "",
		},
		"poll": map[string]any{
			"delay_ms":        cfg.OpenAI.PollDelay.Milliseconds(),
			"max_polls":       cfg.OpenAI.MaxPolls,
			"max_concurrency": cfg.OpenAI.PollMaxConcurrency,
		},
		"chat": map[string]any{
			"max_turns": cfg.Chat.MaxTurns,
		},
		"think": map[string]any{
			"enabled":     cfg.Think.Enabled,
			"url_set":     cfg.Think.URL != "",
			"timeout_ms":  cfg.Think.Timeout.Milliseconds(),
			"retry_limit": cfg.Think.RetryLimit,
		},
		"session": map[string]any{
			"require": cfg.Session.Require,
		},
		"trace": map[string]any{
			"enabled": cfg.LangSmith.Enabled,
			"project": cfg.LangSmith.Project,
		},
		"tools": map[string]any{
			"count": len(names),
			"names": names,
		},
		"filesystem": map[string]any{
			"base_dir":        cfg.Files.BaseDir,
			"base_dir_exists": baseDirExists,
		},
		"store": g.storeReport(r.Context()),
	}

	g.writeJSON(w, http.StatusOK, report)
}

// storeReport aggregates store totals; a failing store degrades to an error
// field rather than failing the whole report.
func (g *Gateway) storeReport(ctx context.Context) map[string]any {
	calls, err := g.store.ToolCallTotals(ctx)
	if err != nil {
		g.logger.Warn("diagnostics: tool call totals failed", "error", err)
		return map[string]any{"error": err.Error()}
	}
	usage, err := g.store.UsageTotals(ctx)
	if err != nil {
		g.logger.Warn("diagnostics: usage totals failed", "error", err)
		return map[string]any{"error": err.Error()}
	}
	return map[string]any{
		"tool_calls":    calls.Calls,
		"tool_errors":   calls.Errors,
		"usage_records": usage.Records,
		"total_tokens":  usage.TotalTokens,
	}
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		g.logger.Warn("failed to encode response", "error", err)
	}
}
