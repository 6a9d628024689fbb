// ABOUTME: HTTP client for an OpenAI Responses API compatible provider.
// ABOUTME: Lazy credential check, typed error taxonomy, raw payload retention for normalization.

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable indicates the provider is not configured (no API key).
// Checked lazily on first use, never at startup.
var ErrUnavailable = errors.New("provider unavailable")

// ErrTransport indicates an I/O failure talking to the provider.
var ErrTransport = errors.New("provider transport error")

// RejectedError is a non-2xx provider reply, body included for diagnostics.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected request with status %d: %s", e.StatusCode, e.Body)
}

// Request is the payload for POST /responses. Pointer fields distinguish
// "absent" from zero values; follow-up requests carry only model, input,
// previous_response_id, and optionally metadata.
type Request struct {
	Model              string           `json:"model"`
	Input              []map[string]any `json:"input"`
	Temperature        *float64         `json:"temperature,omitempty"`
	TopP               *float64         `json:"top_p,omitempty"`
	MaxOutputTokens    *int             `json:"max_output_tokens,omitempty"`
	ParallelToolCalls  *bool            `json:"parallel_tool_calls,omitempty"`
	Tools              []map[string]any `json:"tools,omitempty"`
	ToolChoice         any              `json:"tool_choice,omitempty"`
	Metadata           map[string]any   `json:"metadata,omitempty"`
	PreviousResponseID string           `json:"previous_response_id,omitempty"`
}

// Response is the decoded provider payload plus the two fields every caller
// needs. Data keeps the full payload for the normalizer.
type Response struct {
	ID     string
	Status string
	Data   map[string]any
}

// Terminal reports whether the response needs no further polling.
// Anything outside queued/in_progress counts as terminal.
func (r *Response) Terminal() bool {
	switch r.Status {
	case "queued", "in_progress":
		return false
	}
	return true
}

// responseFromData extracts id and status. Some backends reply with
// response_id instead of id; both are accepted.
func responseFromData(data map[string]any) *Response {
	id, _ := data["id"].(string)
	if id == "" {
		id, _ = data["response_id"].(string)
	}
	status, _ := data["status"].(string)
	return &Response{ID: id, Status: status, Data: data}
}

// Client talks to a Responses-style provider over HTTP.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a provider client. An empty apiKey is allowed; calls will
// fail with ErrUnavailable until one is configured.
func NewClient(apiKey, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.With("component", "provider"),
	}
}

// Create submits a new response request.
func (c *Client) Create(ctx context.Context, req *Request) (*Response, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	c.logger.Debug("creating response", "model", req.Model, "previous_response_id", req.PreviousResponseID)

	return c.do(ctx, http.MethodPost, c.baseURL+"/responses", body)
}

// Retrieve fetches the current state of a response for polling.
func (c *Client) Retrieve(ctx context.Context, responseID string) (*Response, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	return c.do(ctx, http.MethodGet, c.baseURL+"/responses/"+url.PathEscape(responseID), nil)
}

func (c *Client) ready() error {
	if c.apiKey == "" {
		return fmt.Errorf("%w: missing OPENAI_API_KEY", ErrUnavailable)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransport, err)
	}

	if res.StatusCode >= 400 {
		return nil, &RejectedError{StatusCode: res.StatusCode, Body: string(payload)}
	}

	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("%w: decoding body: %v", ErrTransport, err)
	}

	return responseFromData(data), nil
}
