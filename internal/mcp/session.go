// ABOUTME: In-memory MCP session registry with strict and lenient resolution.
// ABOUTME: Strict mode rejects unknown callers; lenient mode auto-creates on first use.

package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// autoSessionID is the shared session that lenient mode binds callers to when
// they did not supply an id of their own.
const autoSessionID = "_auto"

// SessionError reports a missing or unknown session in strict mode. The
// router surfaces it as JSON-RPC code -32001.
type SessionError struct {
	Message string
}

func (e *SessionError) Error() string { return e.Message }

// Session tracks one MCP client conversation. Sessions are process-local and
// lost on restart; clients re-initialize after a gateway restart.
type Session struct {
	ID           string
	ClientInfo   map[string]any
	Capabilities map[string]any
	CreatedAt    time.Time
}

// SessionStore manages active sessions in memory.
type SessionStore struct {
	mu       sync.RWMutex
	require  bool
	sessions map[string]*Session
}

// NewSessionStore creates an empty store. With require set, Resolve rejects
// requests that do not name a known session.
func NewSessionStore(require bool) *SessionStore {
	return &SessionStore{
		require:  require,
		sessions: make(map[string]*Session),
	}
}

// Create mints a session with a fresh UUID. Each initialize call gets its own.
func (s *SessionStore) Create(clientInfo, capabilities map[string]any) *Session {
	sess := &Session{
		ID:           uuid.New().String(),
		ClientInfo:   clientInfo,
		Capabilities: capabilities,
		CreatedAt:    time.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Resolve finds the session named by params.sessionId. Strict mode fails on
// missing and unknown ids; lenient mode binds a missing id to the shared
// "_auto" session and registers unknown ids as given.
func (s *SessionStore) Resolve(params map[string]any) (*Session, error) {
	id, ok := params["sessionId"].(string)
	if !ok || id == "" {
		if s.require {
			return nil, &SessionError{Message: "Missing sessionId"}
		}
		return s.getOrCreate(autoSessionID), nil
	}

	s.mu.RLock()
	sess, found := s.sessions[id]
	s.mu.RUnlock()
	if found {
		return sess, nil
	}
	if s.require {
		return nil, &SessionError{Message: fmt.Sprintf("Unknown sessionId '%s'", id)}
	}
	return s.getOrCreate(id), nil
}

func (s *SessionStore) getOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess := &Session{ID: id, CreatedAt: time.Now()}
	s.sessions[id] = sess
	return sess
}

// Get returns the session for id, if registered.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	return sess, ok
}

// Evict removes a session. Reports whether it existed.
func (s *SessionStore) Evict(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.sessions[id]
	delete(s.sessions, id)
	return existed
}

// Len reports the number of active sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

type sessionContextKey struct{}

// ContextWithSession attaches the resolved session to the request context
// before tool dispatch.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the session attached by the router, if any.
// Tool handlers and wrappers use it to attribute work to a caller.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*Session)
	return sess, ok
}
