// ABOUTME: JSON-RPC HTTP client for the upstream think-tool MCP server.
// ABOUTME: Handles the session handshake, SSE-tolerant response parsing, and transport retries.

package think

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionHeader carries the upstream server's session id on every exchange.
const sessionHeader = "mcp-session-id"

// Identity presented to the upstream server during initialize.
const (
	clientName      = "seer-gateway"
	clientVersion   = "0.0.2"
	protocolVersion = "1.0"
)

// Capturer sends one thought to the upstream think-tool. Satisfied by Client;
// a seam for handler tests.
type Capturer interface {
	CaptureThought(ctx context.Context, thought, parentTraceID string, metadata map[string]any) (CallResult, error)
}

// CallResult is the upstream verdict for one captured thought. A Go error is
// reserved for transport-level failures; JSON-RPC errors land here.
type CallResult struct {
	OK         bool
	Result     map[string]any
	Err        string
	StatusCode int
}

// Config controls the think-tool connection.
type Config struct {
	URL        string
	Timeout    time.Duration
	RetryLimit int
}

// Client is the MCP client side of the gateway: it speaks the same JSON-RPC
// dialect the gateway serves, against the configured think server.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	handshakeMu sync.Mutex
	initialized bool

	sessionMu sync.Mutex
	sessionID string
}

// NewClient creates a think-tool client. A zero Timeout disables the
// per-call deadline.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("think-tool URL is required")
	}
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "think"),
	}, nil
}

// CaptureThought performs the session handshake if needed, then issues
// tools/call name="think" upstream. metadata is forwarded verbatim so trace
// context reaches the think server.
func (c *Client) CaptureThought(ctx context.Context, thought, parentTraceID string, metadata map[string]any) (CallResult, error) {
	if err := c.ensureSession(ctx); err != nil {
		return CallResult{}, err
	}

	arguments := map[string]any{"thought": thought}
	if parentTraceID != "" {
		arguments["parent_trace_id"] = parentTraceID
	}
	params := map[string]any{
		"name":      "think",
		"arguments": arguments,
		"stream":    false,
	}
	if len(metadata) > 0 {
		params["metadata"] = metadata
	}

	response, status, err := c.post(ctx, rpcPayload("think", "tools/call", params), true, false)
	if err != nil {
		return CallResult{}, err
	}
	if len(response) == 0 {
		return CallResult{Err: "think-tool returned an empty response", StatusCode: status}, nil
	}
	if errObj, ok := response["error"].(map[string]any); ok {
		message, _ := errObj["message"].(string)
		if message == "" {
			message = "think-tool returned error"
		}
		return CallResult{Result: errObj, Err: message, StatusCode: status}, nil
	}

	result, _ := response["result"].(map[string]any)
	return CallResult{OK: true, Result: result, StatusCode: status}, nil
}

// ensureSession runs the one-time handshake: ping to obtain a session id,
// initialize, then the initialized notification. Concurrent callers block on
// the first handshake.
func (c *Client) ensureSession(ctx context.Context) error {
	c.handshakeMu.Lock()
	defer c.handshakeMu.Unlock()
	if c.initialized {
		return nil
	}

	c.logger.Debug("negotiating think-tool session", "url", c.cfg.URL)

	// Ping without a session and tolerate an error status; some servers only
	// mint the session id on this first exchange.
	response, _, err := c.post(ctx, rpcPayload("ping", "ping", nil), false, true)
	if err != nil {
		return fmt.Errorf("think-tool ping failed: %w", err)
	}
	if sid := sessionFromPayload(response); sid != "" {
		c.setSession(sid)
	}
	if c.session() == "" {
		return errors.New("think-tool server did not return a session ID")
	}

	initParams := map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
		"capabilities": map[string]any{},
	}
	if _, _, err := c.post(ctx, rpcPayload("init", "initialize", initParams), true, false); err != nil {
		return fmt.Errorf("think-tool initialize failed: %w", err)
	}

	note := map[string]any{"jsonrpc": "2.0", "method": "notifications/initialized"}
	if _, _, err := c.post(ctx, note, true, false); err != nil {
		return fmt.Errorf("think-tool initialized notification failed: %w", err)
	}

	c.initialized = true
	c.logger.Debug("think-tool session established", "session_id", c.session())
	return nil
}

// post sends one JSON-RPC payload. Transport failures are retried with
// exponential backoff up to RetryLimit extra attempts; HTTP-level errors are
// returned immediately unless allowError is set (the ping path).
func (c *Client) post(ctx context.Context, payload map[string]any, includeSession, allowError bool) (map[string]any, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encoding think-tool request: %w", err)
	}

	attempts := c.cfg.RetryLimit + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return nil, 0, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return nil, 0, fmt.Errorf("building think-tool request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/event-stream")
		if includeSession {
			if sid := c.session(); sid != "" {
				req.Header.Set(sessionHeader, sid)
			}
		}

		res, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("think-tool request failed", "attempt", attempt+1, "error", err)
			continue
		}

		raw, err := io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			lastErr = err
			c.logger.Warn("think-tool response truncated", "attempt", attempt+1, "error", err)
			continue
		}

		if sid := res.Header.Get(sessionHeader); sid != "" {
			c.setSession(sid)
		}

		if res.StatusCode >= 400 && !allowError {
			detail := string(raw)
			if len(detail) > 500 {
				detail = detail[:500]
			}
			return nil, res.StatusCode, fmt.Errorf("think-tool returned %d: %s", res.StatusCode, detail)
		}

		return parseRPCBody(res.Header.Get("Content-Type"), raw), res.StatusCode, nil
	}

	return nil, 0, fmt.Errorf("think-tool request failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) session() string {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.sessionID
}

func (c *Client) setSession(id string) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.sessionID = id
}

// sessionFromPayload digs the session id out of a ping reply: inside result,
// or top-level for servers that predate the nested shape.
func sessionFromPayload(payload map[string]any) string {
	if result, ok := payload["result"].(map[string]any); ok {
		if sid, ok := result["sessionId"].(string); ok && sid != "" {
			return sid
		}
	}
	sid, _ := payload["sessionId"].(string)
	return sid
}

// parseRPCBody decodes a JSON-RPC reply, tolerating event-stream framing and
// undecodable bodies. Never fails: garbage becomes {"raw": text}.
func parseRPCBody(contentType string, raw []byte) map[string]any {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return map[string]any{}
	}
	if strings.Contains(contentType, "text/event-stream") {
		return parseEventStream(text)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return map[string]any{"raw": text}
	}
	return decoded
}

// parseEventStream scans data: lines; the final payload wins.
func parseEventStream(text string) map[string]any {
	var last map[string]any
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		chunk := strings.TrimSpace(line[len("data:"):])
		if chunk == "" {
			continue
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(chunk), &decoded); err != nil {
			last = map[string]any{"raw": chunk}
			continue
		}
		last = decoded
	}
	if last == nil {
		return map[string]any{}
	}
	return last
}

func rpcPayload(prefix, method string, params map[string]any) map[string]any {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      rpcID(prefix),
		"method":  method,
	}
	if params != nil {
		payload["params"] = params
	}
	return payload
}

func rpcID(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func sleepBackoff(ctx context.Context, retry int) error {
	delay := 100 * time.Millisecond << uint(retry-1)
	if delay > 2*time.Second {
		delay = 2 * time.Second
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
