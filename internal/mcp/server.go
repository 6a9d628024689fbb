// ABOUTME: JSON-RPC 2.0 endpoint exposing gateway tools over the MCP HTTP transport.
// ABOUTME: Single POST /mcp dispatch with session checks; GET /mcp reports transport info.

package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/seer-gateway/internal/tools"
)

// ProtocolVersion is advertised by initialize responses and GET /mcp.
const ProtocolVersion = "1.0"

// ServerName and ServerVersion identify the gateway in initialize responses.
const (
	ServerName    = "seer-gateway"
	ServerVersion = "0.0.2"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes, plus the gateway's session error code.
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
	JSONRPCSessionError   = -32001
)

// MCPListToolsResult is the result for tools/list. Pagination is not
// implemented, so NextCursor always serializes as null.
type MCPListToolsResult struct {
	Tools      []tools.Spec `json:"tools"`
	NextCursor any          `json:"nextCursor"`
}

// Config holds configuration for the MCP server.
type Config struct {
	Registry       *tools.Registry
	Logger         *slog.Logger
	RequireSession bool
}

// Server exposes the tool registry over JSON-RPC 2.0.
//
// Two error channels deliberately stay separate: protocol failures (parse
// errors, unknown methods, bad sessions) are JSON-RPC error objects, while
// tool failures are ordinary results with isError set so MCP clients render
// them uniformly.
type Server struct {
	registry *tools.Registry
	logger   *slog.Logger
	sessions *SessionStore
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		registry: cfg.Registry,
		logger:   logger.With("component", "mcp"),
		sessions: NewSessionStore(cfg.RequireSession),
	}, nil
}

// Sessions returns the server's session store.
func (s *Server) Sessions() *SessionStore {
	return s.sessions
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp", s.handleMCP)
}

// handleMCP is the single MCP endpoint. POST carries JSON-RPC; GET reports
// transport details for clients probing the endpoint.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleInfo(w)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handleInfo answers GET /mcp with transport discovery data.
func (s *Server) handleInfo(w http.ResponseWriter) {
	s.writeJSON(w, map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    serverCapabilities(),
		"transport":       map[string]any{"type": "http", "endpoint": "/mcp"},
	})
}

// serverCapabilities is the static capability set advertised to clients.
func serverCapabilities() map[string]any {
	return map[string]any{
		"tools": map[string]any{
			"listChangedNotification": false,
			"parallelCalls":           true,
		},
		"sampling": map[string]any{
			"supportsHostedTools": true,
		},
	}
}

// handlePost processes JSON-RPC messages sent via HTTP POST.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "failed to read request body", nil)
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendJSONRPCError(w, nil, JSONRPCInvalidRequest, "request body too large", nil)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "invalid JSON", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil)
		return
	}

	var params map[string]any
	if len(req.Params) > 0 && string(req.Params) != "null" {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendJSONRPCError(w, req.ID, JSONRPCInvalidRequest, "params must be an object", nil)
			return
		}
	}
	if params == nil {
		params = map[string]any{}
	}

	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	s.logger.Debug("MCP request",
		"method", req.Method,
		"is_notification", isNotification,
	)

	// Notifications are accepted and dropped: HTTP 202 with no body.
	if isNotification {
		if strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Debug("accepted MCP notification", "method", req.Method)
		} else {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Panics in handlers must not take the server down with the request.
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic in MCP handler", "method", req.Method, "panic", rec)
			s.sendJSONRPCError(w, req.ID, JSONRPCInternalError, "Internal error", fmt.Sprint(rec))
		}
	}()

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, req, params)
	case "ping":
		s.handlePing(w, req, params)
	case "shutdown":
		s.handleShutdown(w, req, params)
	case "tools/list":
		s.handleToolsList(w, req, params)
	case "tools/call":
		s.handleToolsCall(w, r, req, params)
	default:
		s.sendJSONRPCError(w, req.ID, JSONRPCMethodNotFound, "Method not found", map[string]any{"method": req.Method})
	}
}

// handleInitialize allocates a fresh session. Every call produces a new one;
// clients that want to resume must keep the returned sessionId.
func (s *Server) handleInitialize(w http.ResponseWriter, req JSONRPCRequest, params map[string]any) {
	if raw, present := params["protocolVersion"]; present && raw != nil {
		if _, ok := raw.(string); !ok {
			s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "Invalid initialize params", "'protocolVersion' must be a string")
			return
		}
	}
	clientInfo, ok := optionalObject(params, "clientInfo")
	if !ok {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "Invalid initialize params", "'clientInfo' must be an object")
		return
	}
	capabilities, ok := optionalObject(params, "capabilities")
	if !ok {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "Invalid initialize params", "'capabilities' must be an object")
		return
	}

	sess := s.sessions.Create(clientInfo, capabilities)

	s.logger.Info("MCP session created", "session_id", sess.ID)

	// The id rides both the result and the header so header-based MCP
	// clients can pick it up without parsing the body.
	w.Header().Set("Mcp-Session-Id", sess.ID)

	s.sendJSONRPCResult(w, req.ID, map[string]any{
		"protocolVersion": ProtocolVersion,
		"serverInfo": map[string]any{
			"name":    ServerName,
			"version": ServerVersion,
		},
		"capabilities": serverCapabilities(),
		"sessionId":    sess.ID,
	})
}

// handlePing verifies the caller's session is alive.
func (s *Server) handlePing(w http.ResponseWriter, req JSONRPCRequest, params map[string]any) {
	sess, err := s.sessions.Resolve(params)
	if err != nil {
		s.sendSessionError(w, req.ID, err)
		return
	}

	w.Header().Set("Mcp-Session-Id", sess.ID)
	s.sendJSONRPCResult(w, req.ID, map[string]any{})
}

// handleShutdown evicts the named session. Succeeds even when the id is
// absent or unknown.
func (s *Server) handleShutdown(w http.ResponseWriter, req JSONRPCRequest, params map[string]any) {
	if id, ok := params["sessionId"].(string); ok {
		if s.sessions.Evict(id) {
			s.logger.Info("MCP session terminated", "session_id", id)
		}
	}
	s.sendJSONRPCResult(w, req.ID, map[string]any{})
}

// handleToolsList publishes the visible tool catalog.
func (s *Server) handleToolsList(w http.ResponseWriter, req JSONRPCRequest, params map[string]any) {
	if _, err := s.sessions.Resolve(params); err != nil {
		s.sendSessionError(w, req.ID, err)
		return
	}

	specs := s.registry.List()

	s.logger.Debug("tools/list", "count", len(specs))

	s.sendJSONRPCResult(w, req.ID, MCPListToolsResult{Tools: specs, NextCursor: nil})
}

// handleToolsCall dispatches a registered tool. Tool-level failures come back
// as results with isError set, never as JSON-RPC errors.
func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req JSONRPCRequest, params map[string]any) {
	sess, err := s.sessions.Resolve(params)
	if err != nil {
		s.sendSessionError(w, req.ID, err)
		return
	}

	name, _ := params["name"].(string)
	handler, found := s.registry.Lookup(name)
	if !found {
		s.sendJSONRPCError(w, req.ID, JSONRPCMethodNotFound, "Tool not found", map[string]any{"available": s.registry.Names()})
		return
	}

	args := map[string]any{}
	if raw, present := params["arguments"]; present && raw != nil {
		obj, ok := raw.(map[string]any)
		if !ok {
			s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "Invalid params: 'arguments' must be an object", nil)
			return
		}
		args = obj
	}

	s.logger.Debug("tools/call", "tool", name, "session_id", sess.ID)

	result, err := handler(ContextWithSession(r.Context(), sess), args)
	if err != nil {
		s.logger.Error("tool execution failed", "tool", name, "error", err)
		s.sendJSONRPCError(w, req.ID, JSONRPCInternalError, "Internal error", err.Error())
		return
	}

	s.logger.Debug("tools/call complete", "tool", name, "is_error", result.IsError)

	s.sendJSONRPCResult(w, req.ID, result)
}

// optionalObject reads a map-valued param, tolerating absence and JSON null.
func optionalObject(params map[string]any, key string) (map[string]any, bool) {
	raw, present := params[key]
	if !present || raw == nil {
		return nil, true
	}
	obj, ok := raw.(map[string]any)
	return obj, ok
}

// sendSessionError maps session failures onto JSON-RPC error codes.
func (s *Server) sendSessionError(w http.ResponseWriter, id json.RawMessage, err error) {
	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		s.sendJSONRPCError(w, id, JSONRPCSessionError, sessErr.Message, nil)
		return
	}
	s.sendJSONRPCError(w, id, JSONRPCInternalError, "Internal error", err.Error())
}

// sendJSONRPCResult sends a successful JSON-RPC response.
func (s *Server) sendJSONRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	s.writeJSON(w, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

// sendJSONRPCError sends a JSON-RPC error response. HTTP status stays 200;
// the error object is the signal.
func (s *Server) sendJSONRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string, data any) {
	s.writeJSON(w, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}
