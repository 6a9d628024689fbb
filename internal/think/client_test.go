// ABOUTME: Tests for the think-tool JSON-RPC client.
// ABOUTME: Covers the handshake, session propagation, SSE parsing, retries, and error surfaces.

package think

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// thinkServer fakes the upstream MCP server: mints a session on ping,
// acknowledges initialize, and answers tools/call with a scripted result.
type thinkServer struct {
	t *testing.T

	mu       sync.Mutex
	methods  []string
	sessions []string
	lastCall map[string]any

	sessionInBody bool
	omitSession   bool
	callResponder func(w http.ResponseWriter, payload map[string]any)
	failFirstCall bool
	callFailures  int
}

func (s *thinkServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&payload))
		method, _ := payload["method"].(string)

		s.mu.Lock()
		s.methods = append(s.methods, method)
		s.sessions = append(s.sessions, r.Header.Get(sessionHeader))
		if method == "tools/call" {
			s.lastCall = payload
		}
		failNow := method == "tools/call" && s.failFirstCall && s.callFailures == 0
		if failNow {
			s.callFailures++
		}
		s.mu.Unlock()

		if failNow {
			hj, ok := w.(http.Hijacker)
			require.True(s.t, ok, "recorder must support hijack")
			conn, _, err := hj.Hijack()
			require.NoError(s.t, err)
			conn.Close()
			return
		}

		w.Header().Set("Content-Type", "application/json")

		switch method {
		case "ping":
			if s.omitSession {
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"x","result":{}}`))
				return
			}
			if s.sessionInBody {
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"x","result":{"sessionId":"sess-body"}}`))
				return
			}
			w.Header().Set(sessionHeader, "sess-header")
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"x","result":{}}`))
		case "initialize":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"x","result":{"protocolVersion":"1.0"}}`))
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{}`))
		case "tools/call":
			if s.callResponder != nil {
				s.callResponder(w, payload)
				return
			}
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"x","result":{"content":[{"type":"text","text":"noted"}]}}`))
		default:
			s.t.Errorf("unexpected method %q", method)
		}
	}
}

func (s *thinkServer) recordedMethods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

func (s *thinkServer) recordedSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sessions...)
}

func (s *thinkServer) lastToolCall() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCall
}

func newTestClient(t *testing.T, url string, retryLimit int) *Client {
	t.Helper()
	client, err := NewClient(Config{
		URL:        url,
		Timeout:    5 * time.Second,
		RetryLimit: retryLimit,
	}, testLogger())
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(Config{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URL is required")
}

func TestCaptureThought_HandshakeThenCall(t *testing.T) {
	upstream := &thinkServer{t: t}
	srv := httptest.NewServer(upstream.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)

	call, err := client.CaptureThought(context.Background(), "pondering", "trace-1", nil)
	require.NoError(t, err)
	require.True(t, call.OK)
	assert.Equal(t, http.StatusOK, call.StatusCode)

	methods := upstream.recordedMethods()
	require.Equal(t, []string{"ping", "initialize", "notifications/initialized", "tools/call"}, methods)

	// Ping goes out before any session exists; everything after carries it.
	sessions := upstream.recordedSessions()
	assert.Empty(t, sessions[0])
	for _, sid := range sessions[1:] {
		assert.Equal(t, "sess-header", sid)
	}

	payload := upstream.lastToolCall()
	params := payload["params"].(map[string]any)
	assert.Equal(t, "think", params["name"])
	assert.Equal(t, false, params["stream"])
	args := params["arguments"].(map[string]any)
	assert.Equal(t, "pondering", args["thought"])
	assert.Equal(t, "trace-1", args["parent_trace_id"])

	content := call.Result["content"].([]any)
	require.Len(t, content, 1)

	// Second call reuses the session without another handshake.
	_, err = client.CaptureThought(context.Background(), "again", "", nil)
	require.NoError(t, err)
	methods = upstream.recordedMethods()
	assert.Equal(t, "tools/call", methods[len(methods)-1])
	assert.Len(t, methods, 5)
}

func TestCaptureThought_SessionFromBody(t *testing.T) {
	upstream := &thinkServer{t: t, sessionInBody: true}
	srv := httptest.NewServer(upstream.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)
	_, err := client.CaptureThought(context.Background(), "x", "", nil)
	require.NoError(t, err)

	sessions := upstream.recordedSessions()
	assert.Equal(t, "sess-body", sessions[1])
}

func TestCaptureThought_MissingSession(t *testing.T) {
	upstream := &thinkServer{t: t, omitSession: true}
	srv := httptest.NewServer(upstream.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)
	_, err := client.CaptureThought(context.Background(), "x", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not return a session ID")
}

func TestCaptureThought_ForwardsMetadata(t *testing.T) {
	upstream := &thinkServer{t: t}
	srv := httptest.NewServer(upstream.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)
	metadata := map[string]any{"langsmith": map[string]any{"run_id": "r-1"}}
	_, err := client.CaptureThought(context.Background(), "x", "", metadata)
	require.NoError(t, err)

	params := upstream.lastToolCall()["params"].(map[string]any)
	langsmith := params["metadata"].(map[string]any)["langsmith"].(map[string]any)
	assert.Equal(t, "r-1", langsmith["run_id"])
}

func TestCaptureThought_ErrorObject(t *testing.T) {
	upstream := &thinkServer{t: t, callResponder: func(w http.ResponseWriter, _ map[string]any) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"x","error":{"code":-32000,"message":"log full"}}`))
	}}
	srv := httptest.NewServer(upstream.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)
	call, err := client.CaptureThought(context.Background(), "x", "", nil)
	require.NoError(t, err)
	assert.False(t, call.OK)
	assert.Equal(t, "log full", call.Err)
	assert.Equal(t, float64(-32000), call.Result["code"])
}

func TestCaptureThought_EmptyResponse(t *testing.T) {
	upstream := &thinkServer{t: t, callResponder: func(w http.ResponseWriter, _ map[string]any) {
		w.WriteHeader(http.StatusOK)
	}}
	srv := httptest.NewServer(upstream.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)
	call, err := client.CaptureThought(context.Background(), "x", "", nil)
	require.NoError(t, err)
	assert.False(t, call.OK)
	assert.Equal(t, "think-tool returned an empty response", call.Err)
}

func TestCaptureThought_HTTPError(t *testing.T) {
	upstream := &thinkServer{t: t, callResponder: func(w http.ResponseWriter, _ map[string]any) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`backend exploded`))
	}}
	srv := httptest.NewServer(upstream.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)
	_, err := client.CaptureThought(context.Background(), "x", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "think-tool returned 500")
	assert.Contains(t, err.Error(), "backend exploded")
}

func TestCaptureThought_RetriesTransportFailure(t *testing.T) {
	upstream := &thinkServer{t: t, failFirstCall: true}
	srv := httptest.NewServer(upstream.handler())
	defer srv.Close()

	t.Run("retry budget recovers the call", func(t *testing.T) {
		client := newTestClient(t, srv.URL, 1)
		call, err := client.CaptureThought(context.Background(), "x", "", nil)
		require.NoError(t, err)
		assert.True(t, call.OK)
	})
}

func TestCaptureThought_NoRetryBudgetFails(t *testing.T) {
	upstream := &thinkServer{t: t, failFirstCall: true}
	srv := httptest.NewServer(upstream.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)
	_, err := client.CaptureThought(context.Background(), "x", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 1 attempts")
}

func TestCaptureThought_EventStreamResponse(t *testing.T) {
	upstream := &thinkServer{t: t, callResponder: func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: message\ndata: {\"jsonrpc\":\"2.0\",\"result\":{\"content\":[]}}\n\n" +
			"data: {\"jsonrpc\":\"2.0\",\"result\":{\"content\":[{\"type\":\"text\",\"text\":\"final\"}]}}\n\n"))
	}}
	srv := httptest.NewServer(upstream.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL, 0)
	call, err := client.CaptureThought(context.Background(), "x", "", nil)
	require.NoError(t, err)
	require.True(t, call.OK)

	content := call.Result["content"].([]any)
	require.Len(t, content, 1)
	block := content[0].(map[string]any)
	assert.Equal(t, "final", block["text"])
}

func TestParseRPCBody(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		got := parseRPCBody("application/json", []byte(`{"result": 1}`))
		assert.Equal(t, float64(1), got["result"])
	})

	t.Run("empty body", func(t *testing.T) {
		assert.Empty(t, parseRPCBody("application/json", []byte("  \n")))
	})

	t.Run("garbage wrapped as raw", func(t *testing.T) {
		got := parseRPCBody("application/json", []byte(`[1,2,3]`))
		assert.Equal(t, "[1,2,3]", got["raw"])
	})

	t.Run("event stream keeps last data line", func(t *testing.T) {
		body := "data: {\"a\":1}\r\ndata: {\"a\":2}\r\n"
		got := parseRPCBody("text/event-stream; charset=utf-8", []byte(body))
		assert.Equal(t, float64(2), got["a"])
	})

	t.Run("event stream bad chunk becomes raw", func(t *testing.T) {
		got := parseRPCBody("text/event-stream", []byte("data: }{\n"))
		assert.Equal(t, "}{", got["raw"])
	})

	t.Run("event stream without data lines", func(t *testing.T) {
		assert.Empty(t, parseRPCBody("text/event-stream", []byte("event: ping\n")))
	})
}
