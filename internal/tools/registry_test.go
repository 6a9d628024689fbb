// ABOUTME: Tests for the tool registry.
// ABOUTME: Covers registration order, duplicates, hidden tools, and schema compilation.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func noopHandler(ctx context.Context, args map[string]any) (Result, error) {
	return TextResult("ok", nil), nil
}

func TestRegistryRegister(t *testing.T) {
	t.Run("registers and looks up a tool", func(t *testing.T) {
		registry := NewRegistry(slog.Default())

		err := registry.Register(Spec{
			Name:        "demo",
			Description: "Demo tool",
			InputSchema: json.RawMessage(`{"type":"object"}`),
		}, noopHandler)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		handler, ok := registry.Lookup("demo")
		if !ok {
			t.Fatal("expected handler to be registered")
		}
		result, err := handler(context.Background(), nil)
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if result.IsError {
			t.Error("expected non-error result")
		}
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		registry := NewRegistry(slog.Default())

		if err := registry.Register(Spec{Name: "demo"}, noopHandler); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		err := registry.Register(Spec{Name: "demo"}, noopHandler)
		if !errors.Is(err, ErrToolRegistered) {
			t.Errorf("expected ErrToolRegistered, got %v", err)
		}
	})

	t.Run("rejects empty name", func(t *testing.T) {
		registry := NewRegistry(slog.Default())

		if err := registry.Register(Spec{}, noopHandler); err == nil {
			t.Error("expected error for empty name")
		}
	})

	t.Run("rejects nil handler", func(t *testing.T) {
		registry := NewRegistry(slog.Default())

		if err := registry.Register(Spec{Name: "demo"}, nil); err == nil {
			t.Error("expected error for nil handler")
		}
	})

	t.Run("rejects malformed input schema", func(t *testing.T) {
		registry := NewRegistry(slog.Default())

		err := registry.Register(Spec{
			Name:        "demo",
			InputSchema: json.RawMessage(`{"type": 42`),
		}, noopHandler)
		if err == nil {
			t.Error("expected error for malformed schema")
		}
	})
}

func TestRegistryList(t *testing.T) {
	registry := NewRegistry(slog.Default())

	for _, name := range []string{"echo", "read_file", "chat"} {
		if err := registry.Register(Spec{Name: name}, noopHandler); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if err := registry.Register(Spec{Name: "think", Hidden: true}, noopHandler); err != nil {
		t.Fatalf("register think: %v", err)
	}

	t.Run("preserves registration order and hides hidden tools", func(t *testing.T) {
		specs := registry.List()
		if len(specs) != 3 {
			t.Fatalf("expected 3 published specs, got %d", len(specs))
		}
		want := []string{"echo", "read_file", "chat"}
		for i, spec := range specs {
			if spec.Name != want[i] {
				t.Errorf("spec[%d].Name = %q, want %q", i, spec.Name, want[i])
			}
		}
	})

	t.Run("names include hidden tools", func(t *testing.T) {
		names := registry.Names()
		want := []string{"echo", "read_file", "chat", "think"}
		if len(names) != len(want) {
			t.Fatalf("expected %d names, got %d", len(want), len(names))
		}
		for i, name := range names {
			if name != want[i] {
				t.Errorf("names[%d] = %q, want %q", i, name, want[i])
			}
		}
	})

	t.Run("hidden tool still dispatchable", func(t *testing.T) {
		if _, ok := registry.Lookup("think"); !ok {
			t.Error("expected hidden tool to be dispatchable")
		}
	})
}

func TestResultShapes(t *testing.T) {
	t.Run("empty result marshals arrays not null", func(t *testing.T) {
		data, err := json.Marshal(OKResult(nil, nil, nil))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		want := `{"content":[],"toolCalls":[],"isError":false}`
		if string(data) != want {
			t.Errorf("marshal = %s, want %s", data, want)
		}
	})

	t.Run("error result carries message block", func(t *testing.T) {
		r := ErrorResult("boom", map[string]any{"path": "x"})
		if !r.IsError {
			t.Error("IsError = false, want true")
		}
		if len(r.Content) != 1 || r.Content[0].Text() != "boom" {
			t.Errorf("content = %+v, want single boom block", r.Content)
		}
		if len(r.ToolCalls) != 0 {
			t.Errorf("toolCalls = %+v, want empty", r.ToolCalls)
		}
		if r.Metadata["path"] != "x" {
			t.Errorf("metadata = %+v", r.Metadata)
		}
	})

	t.Run("empty metadata omitted from wire shape", func(t *testing.T) {
		data, err := json.Marshal(TextResult("hi", map[string]any{}))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(data) != `{"content":[{"text":"hi","type":"text"}],"toolCalls":[],"isError":false}` {
			t.Errorf("unexpected wire shape: %s", data)
		}
	})

	t.Run("opaque blocks survive round trips", func(t *testing.T) {
		block := ContentBlock{"type": "refusal", "refusal": "no"}
		data, err := json.Marshal(OKResult([]ContentBlock{block}, nil, nil))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var decoded Result
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if decoded.Content[0].Type() != "refusal" {
			t.Errorf("type = %q, want refusal", decoded.Content[0].Type())
		}
		if decoded.Content[0]["refusal"] != "no" {
			t.Errorf("refusal payload lost: %+v", decoded.Content[0])
		}
		if decoded.Content[0].Text() != "" {
			t.Errorf("text = %q, want empty for non-text block", decoded.Content[0].Text())
		}
	})
}
