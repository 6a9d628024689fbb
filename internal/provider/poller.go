// ABOUTME: Bounded polling loop for async provider responses.
// ABOUTME: A process-wide weighted semaphore caps concurrent polling across all requests.

package provider

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// semaphoreAcquireTimeout bounds how long a request waits for a polling slot
// before giving up and returning the last observed state.
const semaphoreAcquireTimeout = 5 * time.Second

// Retriever fetches the current state of a response by id.
type Retriever interface {
	Retrieve(ctx context.Context, responseID string) (*Response, error)
}

// PollerConfig controls polling cadence and bounds.
type PollerConfig struct {
	Delay          time.Duration
	MaxPolls       int
	MaxConcurrency int
}

// Poller waits for provider responses to reach a terminal status. One Poller
// is shared by all in-flight requests so the semaphore bounds the process.
type Poller struct {
	retriever      Retriever
	delay          time.Duration
	maxPolls       int
	sem            *semaphore.Weighted
	acquireTimeout time.Duration
	logger         *slog.Logger
}

// NewPoller creates a Poller. MaxPolls and MaxConcurrency below 1 are clamped.
func NewPoller(retriever Retriever, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.MaxPolls < 1 {
		cfg.MaxPolls = 1
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	return &Poller{
		retriever:      retriever,
		delay:          cfg.Delay,
		maxPolls:       cfg.MaxPolls,
		sem:            semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		acquireTimeout: semaphoreAcquireTimeout,
		logger:         logger.With("component", "poller"),
	}
}

// Await polls until the response is terminal, the poll budget is spent, or
// ctx is cancelled. A non-terminal result is not an error: the caller decides
// what an unfinished response means. Retrieval failures keep the last
// observed state and consume a poll.
func (p *Poller) Await(ctx context.Context, resp *Response) (*Response, error) {
	if resp == nil || resp.ID == "" || resp.Terminal() {
		return resp, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()
	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("polling slot unavailable, returning last known state",
			"response_id", resp.ID, "status", resp.Status)
		return resp, nil
	}
	defer p.sem.Release(1)

	current := resp
	for polls := 0; polls < p.maxPolls && !current.Terminal(); polls++ {
		if err := sleepContext(ctx, p.delay); err != nil {
			return nil, err
		}

		next, err := p.retriever.Retrieve(ctx, current.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("poll retrieval failed", "response_id", current.ID, "error", err)
			continue
		}
		if next.ID == "" {
			next.ID = current.ID
		}
		current = next
	}

	if !current.Terminal() {
		p.logger.Warn("poll budget exhausted before terminal status",
			"response_id", current.ID, "status", current.Status, "max_polls", p.maxPolls)
	}

	return current, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
