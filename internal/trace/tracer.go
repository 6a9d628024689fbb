// ABOUTME: LangSmith run lifecycle around one chat invocation, over the runs REST API.
// ABOUTME: Strictly best-effort: tracing failures are logged and never break the request.

package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// requestTimeout bounds every trace API call. Trace calls run on their own
// deadline, detached from the request context, so a cancelled chat still
// flushes its final run update.
const requestTimeout = 5 * time.Second

// Tracer creates one LangSmith run per chat invocation and closes it with
// the outcome. Zero value is unusable; construct with NewTracer.
type Tracer struct {
	settings Settings
	context  Context
	api      *apiClient
	logger   *slog.Logger

	active  bool
	started bool
	closed  bool

	// Populated on Start; exposed so callers can link child work to the run.
	ProjectName string
	RunID       string
	TraceID     string
}

// NewTracer builds a tracer for one request. The tracer is active only when
// an API key is configured and either tracing is enabled process-wide or the
// request context asks for it.
func NewTracer(settings Settings, ctx Context, logger *slog.Logger) *Tracer {
	t := &Tracer{
		settings:    settings,
		context:     ctx,
		logger:      logger.With("component", "trace"),
		ProjectName: ctx.Project,
		RunID:       ctx.RunID,
		TraceID:     ctx.TraceID,
	}
	if t.ProjectName == "" {
		t.ProjectName = settings.Project
	}
	if t.ProjectName == "" {
		t.ProjectName = "seer-gateway"
	}

	wanted := settings.Enabled || ctx.ShouldActivate()
	if wanted && settings.APIKey != "" {
		t.api = &apiClient{
			endpoint:   settings.Endpoint,
			apiKey:     settings.APIKey,
			httpClient: &http.Client{Timeout: requestTimeout},
		}
		t.active = true
	} else if wanted {
		t.logger.Debug("tracing requested but no LANGSMITH_API_KEY is configured")
	}
	return t
}

// Active reports whether this request is being traced.
func (t *Tracer) Active() bool { return t.active }

// Start opens the run. Missing identifiers are minted here: a run id always,
// a trace id only for root runs (children inherit theirs from the parent).
func (t *Tracer) Start(inputs map[string]any) {
	if !t.active || t.started {
		return
	}
	t.started = true

	if t.RunID == "" {
		t.RunID = uuid.NewString()
	}
	if t.TraceID == "" && t.context.ParentRunID == "" {
		t.TraceID = uuid.NewString()
	}

	payload := map[string]any{
		"id":         t.RunID,
		"name":       t.context.RunName,
		"run_type":   t.context.RunType,
		"inputs":     inputs,
		"start_time": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if t.ProjectName != "" {
		payload["session_name"] = t.ProjectName
	}
	if t.context.ParentRunID != "" {
		payload["parent_run_id"] = t.context.ParentRunID
	}
	if t.TraceID != "" {
		payload["trace_id"] = t.TraceID
	}
	if len(t.context.Tags) > 0 {
		payload["tags"] = t.context.Tags
	}
	if len(t.context.Metadata) > 0 {
		payload["extra"] = map[string]any{"metadata": t.context.Metadata}
	}

	if err := t.api.createRun(payload); err != nil {
		t.logger.Warn("LangSmith run creation failed", "error", err)
		t.active = false
		t.RunID = ""
		t.TraceID = ""
	}
}

// Annotate merges run identifiers into response metadata without clobbering
// anything the flow already put there.
func (t *Tracer) Annotate(metadata map[string]any) map[string]any {
	if t.RunID == "" {
		return metadata
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	ls, ok := metadata["langsmith"].(map[string]any)
	if !ok {
		ls = map[string]any{}
		metadata["langsmith"] = ls
	}

	setDefault(ls, "runId", t.RunID)
	if t.TraceID != "" {
		setDefault(ls, "traceId", t.TraceID)
	}
	if t.ProjectName != "" {
		setDefault(ls, "project", t.ProjectName)
	}
	if t.context.ParentRunID != "" {
		setDefault(ls, "parentRunId", t.context.ParentRunID)
	}
	if len(t.context.Tags) > 0 {
		setDefault(ls, "tags", append([]string(nil), t.context.Tags...))
	}
	setDefault(ls, "runName", t.context.RunName)
	setDefault(ls, "runType", t.context.RunType)
	return metadata
}

// ThinkMetadata builds the trace context forwarded to the think server so
// its runs nest under ours. Nil when the request is untraced.
func (t *Tracer) ThinkMetadata() map[string]any {
	if !t.active || t.RunID == "" {
		return nil
	}
	nested := map[string]any{"parent_run_id": t.RunID}
	if t.TraceID != "" {
		nested["trace_id"] = t.TraceID
	}
	if t.ProjectName != "" {
		nested["project"] = t.ProjectName
	}
	return map[string]any{"langsmith": nested}
}

// FinishSuccess closes the run with the final response as its outputs.
func (t *Tracer) FinishSuccess(outputs any) {
	t.updateRun(outputs, "")
}

// FinishError closes the run with the response and an error message.
func (t *Tracer) FinishError(outputs any, message string) {
	t.updateRun(outputs, message)
}

func (t *Tracer) updateRun(outputs any, errMessage string) {
	if !t.active || t.RunID == "" || t.closed {
		return
	}

	payload := map[string]any{
		"end_time": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if outputs != nil {
		payload["outputs"] = map[string]any{"response": outputs}
	}
	if errMessage != "" {
		payload["error"] = errMessage
	}

	if err := t.api.updateRun(t.RunID, payload); err != nil {
		t.logger.Warn("LangSmith run update failed", "error", err, "run_id", t.RunID)
	}
	t.closed = true
	t.active = false
}

func setDefault(m map[string]any, key string, value any) {
	if _, exists := m[key]; !exists {
		m[key] = value
	}
}

// apiClient talks to the LangSmith runs REST API: create and update.
type apiClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func (c *apiClient) createRun(payload map[string]any) error {
	return c.send(http.MethodPost, c.endpoint+"/runs", payload)
}

func (c *apiClient) updateRun(runID string, payload map[string]any) error {
	return c.send(http.MethodPatch, c.endpoint+"/runs/"+url.PathEscape(runID), payload)
}

func (c *apiClient) send(method, target string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding run payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("runs API returned %d: %s", res.StatusCode, detail)
	}
	return nil
}
