// Package provider implements the HTTP client for an OpenAI Responses API
// compatible backend, plus the polling loop that waits for asynchronous
// responses to finish.
//
// # Client
//
// Client submits requests (Create) and fetches response state (Retrieve).
// Configuration is lazy: constructing a Client with an empty API key
// succeeds, and calls fail with ErrUnavailable until a key is provided.
// Failures are classified so callers can map them onto their own error
// surface:
//
//   - ErrUnavailable: no API key configured
//   - ErrTransport: network or decode failure (wrapped, use errors.Is)
//   - RejectedError: the provider answered with a 4xx/5xx status
//
// Response keeps the full decoded payload in Data; id and status are
// extracted eagerly because every caller needs them. Backends that reply
// with response_id instead of id are tolerated.
//
// # Poller
//
// Poller.Await drives GET /responses/{id} until the status leaves
// queued/in_progress, the poll budget is spent, or the context is
// cancelled. All requests share one Poller so the weighted semaphore
// bounds concurrent polling process-wide. When no slot frees up within
// five seconds the poller returns the last observed state instead of
// failing; an unfinished response is the caller's problem to interpret.
package provider
