package tools

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	tool := &stubTool{name: "echo", schema: json.RawMessage(`{}`)}
	if err := r.Register(tool); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, ok := r.Get("echo")
	if !ok || got.Name() != "echo" {
		t.Fatalf("Get(echo) = %v, %v", got, ok)
	}
}

func TestRegistryRegisterInvalidSchema(t *testing.T) {
	r := NewRegistry()
	tool := &stubTool{name: "bad", schema: json.RawMessage(`not json`)}
	if err := r.Register(tool); err == nil {
		t.Fatal("expected error registering tool with invalid schema")
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "echo", schema: json.RawMessage(`{}`)})
	r.Unregister("echo")
	if _, ok := r.Get("echo"); ok {
		t.Fatal("expected echo to be unregistered")
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	result, err := r.Execute(context.Background(), "call_1", "missing", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error = %v, want nil", err)
	}
	if result.Success {
		t.Fatal("expected Success=false for unknown tool")
	}
	if result.Error != "Unknown tool: missing" {
		t.Errorf("Error = %q", result.Error)
	}
}

func TestRegistryExecuteValidatesInput(t *testing.T) {
	r := NewRegistry()
	schema := json.RawMessage(`{"type":"object","required":["q"],"properties":{"q":{"type":"string"}}}`)
	r.Register(&stubTool{name: "search", schema: schema})

	result, err := r.Execute(context.Background(), "call_1", "search", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Success {
		t.Fatal("expected validation failure for missing required field")
	}
}

func TestRegistryExecuteValidInput(t *testing.T) {
	r := NewRegistry()
	schema := json.RawMessage(`{"type":"object","required":["q"],"properties":{"q":{"type":"string"}}}`)
	r.Register(&stubTool{name: "search", schema: schema})

	result, err := r.Execute(context.Background(), "call_1", "search", json.RawMessage(`{"q":"weather"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
}

func TestRegistryExecuteRejectsOversizedName(t *testing.T) {
	r := NewRegistry()
	longName := make([]byte, MaxToolNameLength+1)
	for i := range longName {
		longName[i] = 'a'
	}
	result, _ := r.Execute(context.Background(), "call_1", string(longName), json.RawMessage(`{}`))
	if result.Success {
		t.Fatal("expected failure for oversized tool name")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "a", schema: json.RawMessage(`{}`)})
	r.Register(&stubTool{name: "b", schema: json.RawMessage(`{}`)})
	if got := len(r.List()); got != 2 {
		t.Fatalf("List() returned %d tools, want 2", got)
	}
}
