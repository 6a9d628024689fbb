// ABOUTME: LangSmith trace settings and per-request context extraction.
// ABOUTME: Context arrives from MCP clients inside request metadata, nested or flat.

package trace

import (
	"strconv"
	"strings"
)

// defaultRunName and defaultRunType label the chat run when the client
// supplies no overrides.
const (
	defaultRunName = "seer-gateway.chat"
	defaultRunType = "tool"
)

// Settings is the process-level LangSmith configuration.
type Settings struct {
	Enabled  bool
	Project  string
	APIKey   string
	Endpoint string
}

// Context is the per-request trace context handed over by the MCP client
// through request metadata.
type Context struct {
	ParentRunID string
	TraceID     string
	RunID       string
	Project     string
	RunName     string
	RunType     string
	Tags        []string
	Metadata    map[string]any
	ForceEnable bool
}

// ShouldActivate reports whether the client asked for tracing, either
// explicitly or by supplying run identifiers to chain onto.
func (c Context) ShouldActivate() bool {
	return c.ForceEnable || c.ParentRunID != "" || c.RunID != "" || c.TraceID != ""
}

// ExtractContext reads trace context out of request metadata. The nested
// metadata.langsmith object wins; flat langsmith_* keys are the fallback for
// clients that cannot send nested metadata.
func ExtractContext(rawMetadata map[string]any) Context {
	ctx := Context{RunName: defaultRunName, RunType: defaultRunType}
	if rawMetadata == nil {
		return ctx
	}

	nested, _ := rawMetadata["langsmith"].(map[string]any)

	ctx.ParentRunID = firstString(nested["parent_run_id"], rawMetadata["langsmith_parent_run_id"])
	ctx.TraceID = firstString(nested["trace_id"], rawMetadata["langsmith_trace_id"])
	ctx.RunID = firstString(nested["run_id"], rawMetadata["langsmith_run_id"])
	ctx.Project = firstString(nested["project"], rawMetadata["langsmith_project"])

	if name := coerceString(nested["name"]); name != "" {
		ctx.RunName = name
	}
	if runType := coerceString(nested["run_type"]); runType != "" {
		ctx.RunType = runType
	}
	ctx.Tags = coerceTags(nested["tags"])
	ctx.Metadata = coerceMetadata(nested["metadata"])
	ctx.ForceEnable = nested["enabled"] == true

	return ctx
}

func coerceString(value any) string {
	s, _ := value.(string)
	return strings.TrimSpace(s)
}

func firstString(values ...any) string {
	for _, v := range values {
		if s := coerceString(v); s != "" {
			return s
		}
	}
	return ""
}

// coerceTags keeps trimmed strings and stringifies numbers and booleans,
// dropping everything else.
func coerceTags(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var tags []string
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if text := strings.TrimSpace(v); text != "" {
				tags = append(tags, text)
			}
		case bool:
			if v {
				tags = append(tags, "true")
			} else {
				tags = append(tags, "false")
			}
		case float64:
			tags = append(tags, trimFloat(v))
		}
	}
	return tags
}

// trimFloat renders whole numbers without a decimal point; JSON gives us
// every number as float64.
func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func coerceMetadata(raw any) map[string]any {
	source, ok := raw.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any, len(source))
	for k, v := range source {
		out[k] = v
	}
	return out
}
