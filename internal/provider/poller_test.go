// ABOUTME: Tests for the bounded response poller.
// ABOUTME: Covers terminal shortcuts, poll budgets, retrieval failures, cancellation, and concurrency caps.

package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type retrieverFunc func(ctx context.Context, responseID string) (*Response, error)

func (f retrieverFunc) Retrieve(ctx context.Context, responseID string) (*Response, error) {
	return f(ctx, responseID)
}

// scriptedRetriever replays a fixed sequence of results, then repeats the last.
type scriptedRetriever struct {
	mu     sync.Mutex
	script []func() (*Response, error)
	calls  int
	gotIDs []string
}

func (s *scriptedRetriever) Retrieve(_ context.Context, responseID string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.calls++
	s.gotIDs = append(s.gotIDs, responseID)
	return s.script[idx]()
}

func (s *scriptedRetriever) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func statusResult(id, status string) func() (*Response, error) {
	return func() (*Response, error) {
		return &Response{ID: id, Status: status, Data: map[string]any{"id": id, "status": status}}, nil
	}
}

func errResult(err error) func() (*Response, error) {
	return func() (*Response, error) { return nil, err }
}

func newTestPoller(r Retriever, maxPolls, maxConcurrency int) *Poller {
	return NewPoller(r, PollerConfig{
		Delay:          0,
		MaxPolls:       maxPolls,
		MaxConcurrency: maxConcurrency,
	}, testLogger())
}

func TestAwait_TerminalResponseShortCircuits(t *testing.T) {
	retriever := &scriptedRetriever{script: []func() (*Response, error){
		statusResult("resp_1", "completed"),
	}}
	poller := newTestPoller(retriever, 30, 8)

	start := &Response{ID: "resp_1", Status: "completed"}
	got, err := poller.Await(context.Background(), start)
	require.NoError(t, err)
	assert.Same(t, start, got)
	assert.Equal(t, 0, retriever.callCount())
}

func TestAwait_NilAndIDLessResponses(t *testing.T) {
	retriever := &scriptedRetriever{script: []func() (*Response, error){
		statusResult("x", "completed"),
	}}
	poller := newTestPoller(retriever, 30, 8)

	got, err := poller.Await(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Without an id there is nothing to poll; hand the state back untouched.
	start := &Response{ID: "", Status: "queued"}
	got, err = poller.Await(context.Background(), start)
	require.NoError(t, err)
	assert.Same(t, start, got)
	assert.Equal(t, 0, retriever.callCount())
}

func TestAwait_PollsUntilTerminal(t *testing.T) {
	retriever := &scriptedRetriever{script: []func() (*Response, error){
		statusResult("resp_1", "queued"),
		statusResult("resp_1", "in_progress"),
		statusResult("resp_1", "completed"),
	}}
	poller := newTestPoller(retriever, 30, 8)

	got, err := poller.Await(context.Background(), &Response{ID: "resp_1", Status: "queued"})
	require.NoError(t, err)

	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "resp_1", got.ID)
	assert.Equal(t, 3, retriever.callCount())
}

func TestAwait_PollBudgetExhausted(t *testing.T) {
	retriever := &scriptedRetriever{script: []func() (*Response, error){
		statusResult("resp_1", "in_progress"),
	}}
	poller := newTestPoller(retriever, 5, 8)

	got, err := poller.Await(context.Background(), &Response{ID: "resp_1", Status: "queued"})
	require.NoError(t, err)

	// Non-terminal is not an error; callers decide what it means.
	assert.Equal(t, "in_progress", got.Status)
	assert.Equal(t, 5, retriever.callCount())
}

func TestAwait_RetrievalFailureKeepsLastState(t *testing.T) {
	t.Run("recovers after transient failures", func(t *testing.T) {
		retriever := &scriptedRetriever{script: []func() (*Response, error){
			errResult(errors.New("boom")),
			errResult(errors.New("boom")),
			statusResult("resp_1", "completed"),
		}}
		poller := newTestPoller(retriever, 10, 8)

		got, err := poller.Await(context.Background(), &Response{ID: "resp_1", Status: "queued"})
		require.NoError(t, err)
		assert.Equal(t, "completed", got.Status)
		assert.Equal(t, 3, retriever.callCount())
	})

	t.Run("returns last state when every poll fails", func(t *testing.T) {
		retriever := &scriptedRetriever{script: []func() (*Response, error){
			errResult(errors.New("boom")),
		}}
		poller := newTestPoller(retriever, 4, 8)

		start := &Response{ID: "resp_1", Status: "queued"}
		got, err := poller.Await(context.Background(), start)
		require.NoError(t, err)
		assert.Same(t, start, got)
		assert.Equal(t, 4, retriever.callCount())
	})
}

func TestAwait_KeepsIDWhenPayloadOmitsIt(t *testing.T) {
	retriever := &scriptedRetriever{script: []func() (*Response, error){
		func() (*Response, error) {
			return &Response{Status: "in_progress", Data: map[string]any{"status": "in_progress"}}, nil
		},
		statusResult("resp_1", "completed"),
	}}
	poller := newTestPoller(retriever, 10, 8)

	got, err := poller.Await(context.Background(), &Response{ID: "resp_1", Status: "queued"})
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, []string{"resp_1", "resp_1"}, retriever.gotIDs)
}

func TestAwait_ContextCancelled(t *testing.T) {
	retriever := retrieverFunc(func(ctx context.Context, _ string) (*Response, error) {
		return &Response{ID: "resp_1", Status: "in_progress"}, nil
	})
	poller := NewPoller(retriever, PollerConfig{
		Delay:          50 * time.Millisecond,
		MaxPolls:       30,
		MaxConcurrency: 8,
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := poller.Await(ctx, &Response{ID: "resp_1", Status: "queued"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAwait_SemaphoreBusyReturnsLastState(t *testing.T) {
	retriever := &scriptedRetriever{script: []func() (*Response, error){
		statusResult("resp_1", "completed"),
	}}
	poller := newTestPoller(retriever, 30, 1)
	poller.acquireTimeout = 10 * time.Millisecond

	// Hold the only slot so Await cannot acquire one.
	require.NoError(t, poller.sem.Acquire(context.Background(), 1))
	defer poller.sem.Release(1)

	start := &Response{ID: "resp_1", Status: "queued"}
	got, err := poller.Await(context.Background(), start)
	require.NoError(t, err)
	assert.Same(t, start, got)
	assert.Equal(t, 0, retriever.callCount())
}

func TestAwait_ConcurrencyBounded(t *testing.T) {
	var mu sync.Mutex
	inflight, peak := 0, 0

	retriever := retrieverFunc(func(ctx context.Context, id string) (*Response, error) {
		mu.Lock()
		inflight++
		if inflight > peak {
			peak = inflight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inflight--
		mu.Unlock()
		return &Response{ID: id, Status: "completed"}, nil
	})
	poller := newTestPoller(retriever, 30, 2)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := poller.Await(context.Background(), &Response{ID: "resp_1", Status: "queued"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
}
