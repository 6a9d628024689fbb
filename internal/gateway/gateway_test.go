// ABOUTME: Tests for gateway wiring and the HTTP surface lifecycle.
// ABOUTME: Runs real listeners on ephemeral ports and round-trips JSON-RPC.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/2389/seer-gateway/internal/config"
	"github.com/2389/seer-gateway/internal/store"
)

// testConfig creates a minimal config bound to an available port.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := config.Default()
	cfg.Server.HTTPAddr = addr
	return cfg
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startGateway builds a gateway from cfg and runs it until the test ends.
func startGateway(t *testing.T, cfg *config.Config) *Gateway {
	t.Helper()

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- gw.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("gateway did not shut down in time")
		}
	})

	waitForHealthy(t, cfg.Server.HTTPAddr)
	return gw
}

// waitForHealthy polls /health until the server answers.
func waitForHealthy(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("gateway did not become healthy in time")
}

func TestGatewayNew(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	if gw.config != cfg {
		t.Error("gateway config mismatch")
	}
	if gw.store == nil {
		t.Error("store should not be nil")
	}
	if gw.registry == nil {
		t.Error("registry should not be nil")
	}
	if gw.mcpServer == nil {
		t.Error("mcpServer should not be nil")
	}

	names := gw.registry.Names()
	want := map[string]bool{"echo": false, "read_file": false, "chat": false, "think": false}
	for _, name := range names {
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %q not registered", name)
		}
	}
}

func TestGatewayRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()

	waitForHealthy(t, cfg.Server.HTTPAddr)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("gateway did not shutdown in time")
	}
}

func TestGatewayRunFailsOnBusyPort(t *testing.T) {
	cfg := testConfig(t)

	ln, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		t.Fatalf("failed to occupy port: %v", err)
	}
	defer ln.Close()

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.store.Close()

	if err := gw.Run(context.Background()); err == nil {
		t.Error("Run() should fail when the port is taken")
	}
}

func TestHealthEndpoint(t *testing.T) {
	cfg := testConfig(t)
	startGateway(t, cfg)

	resp, err := http.Get("http://" + cfg.Server.HTTPAddr + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status field = %v, want ok", body["status"])
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	startGateway(t, cfg)

	resp, err := http.Get("http://" + cfg.Server.HTTPAddr + "/diagnostics")
	if err != nil {
		t.Fatalf("diagnostics request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("diagnostics status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var report map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode diagnostics body: %v", err)
	}

	app, _ := report["app"].(map[string]any)
	if app["name"] != "seer-gateway" {
		t.Errorf("app.name = %v, want seer-gateway", app["name"])
	}

	openai, _ := report["openai"].(map[string]any)
	if openai["api_key_set"] != false {
		t.Errorf("openai.api_key_set = %v, want false", openai["api_key_set"])
	}
	if openai["base_url"] == "" {
		t.Error("openai.base_url should not be empty")
	}

	toolsSection, _ := report["tools"].(map[string]any)
	if count, _ := toolsSection["count"].(float64); count != 4 {
		t.Errorf("tools.count = %v, want 4", toolsSection["count"])
	}

	storeSection, _ := report["store"].(map[string]any)
	if _, hasError := storeSection["error"]; hasError {
		t.Errorf("store section reported error: %v", storeSection["error"])
	}
	if calls, _ := storeSection["tool_calls"].(float64); calls != 0 {
		t.Errorf("store.tool_calls = %v, want 0", storeSection["tool_calls"])
	}
}

// postJSONRPC sends a raw JSON-RPC body to the running gateway.
func postJSONRPC(t *testing.T, addr, body string) map[string]any {
	t.Helper()

	resp, err := http.Post("http://"+addr+"/mcp", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("JSON-RPC request failed: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode JSON-RPC response: %v", err)
	}
	return decoded
}

func TestGatewayRecordsToolCalls(t *testing.T) {
	cfg := testConfig(t)
	gw := startGateway(t, cfg)
	addr := cfg.Server.HTTPAddr

	initResp := postJSONRPC(t, addr, `{"jsonrpc": "2.0", "method": "initialize", "params": {}, "id": 1}`)
	result, _ := initResp["result"].(map[string]any)
	sessionID, _ := result["sessionId"].(string)
	if sessionID == "" {
		t.Fatalf("initialize did not return a sessionId: %v", initResp)
	}

	callResp := postJSONRPC(t, addr, `{"jsonrpc": "2.0", "method": "tools/call", "params": {"name": "echo", "arguments": {"text": "hi"}, "sessionId": "`+sessionID+`"}, "id": 2}`)
	if callResp["error"] != nil {
		t.Fatalf("tools/call failed: %v", callResp["error"])
	}

	calls, err := gw.store.ListToolCalls(context.Background(), store.ToolCallFilter{})
	if err != nil {
		t.Fatalf("listing tool calls failed: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 recorded tool call, got %d", len(calls))
	}
	if calls[0].Tool != "echo" {
		t.Errorf("recorded tool = %q, want echo", calls[0].Tool)
	}
	if calls[0].SessionID != sessionID {
		t.Errorf("recorded session = %q, want %q", calls[0].SessionID, sessionID)
	}
	if calls[0].IsError {
		t.Error("echo call should not be recorded as an error")
	}
}

func TestGatewayRecordsToolErrors(t *testing.T) {
	cfg := testConfig(t)
	gw := startGateway(t, cfg)
	addr := cfg.Server.HTTPAddr

	initResp := postJSONRPC(t, addr, `{"jsonrpc": "2.0", "method": "initialize", "params": {}, "id": 1}`)
	result, _ := initResp["result"].(map[string]any)
	sessionID, _ := result["sessionId"].(string)

	// Bad argument type produces a tool-level error result.
	callResp := postJSONRPC(t, addr, `{"jsonrpc": "2.0", "method": "tools/call", "params": {"name": "echo", "arguments": {"text": 5}, "sessionId": "`+sessionID+`"}, "id": 2}`)
	callResult, _ := callResp["result"].(map[string]any)
	if callResult["isError"] != true {
		t.Fatalf("expected isError result, got %v", callResp)
	}

	calls, err := gw.store.ListToolCalls(context.Background(), store.ToolCallFilter{})
	if err != nil {
		t.Fatalf("listing tool calls failed: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 recorded tool call, got %d", len(calls))
	}
	if !calls[0].IsError {
		t.Error("tool-level error should be recorded with IsError set")
	}
}
