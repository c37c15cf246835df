package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxToolNameLength bounds a tool name (spec.md mentions no explicit
// cap; kept from the teacher's resource-exhaustion guard).
const MaxToolNameLength = 256

// MaxToolInputSize bounds raw input JSON before it is even unmarshaled.
const MaxToolInputSize = 10 << 20 // 10MB, matches the teacher's MaxToolParamsSize

// Registry is a name→Tool map built once per session from the agent
// config (spec.md §4.3). It compiles and caches each tool's JSON schema
// so ToolExecutor can validate input before calling Execute.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its schema eagerly so a malformed
// schema fails at wiring time rather than at the first tool call.
func (r *Registry) Register(tool Tool) error {
	compiled, err := compileSchema(tool.Name(), tool.Schema())
	if err != nil {
		return fmt.Errorf("tools: register %s: %w", tool.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	if compiled != nil {
		r.schemas[tool.Name()] = compiled
	} else {
		delete(r.schemas, tool.Name())
	}
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns every registered tool, in no particular order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Validate checks input against the tool's declared schema, if one was
// compiled. A tool with an empty/absent schema accepts any input.
func (r *Registry) Validate(name string, input json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	var doc any
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("invalid json input: %w", err)
	}
	return schema.Validate(doc)
}

// Execute runs a tool by name, validating name length, input size, and
// schema before dispatch. Unknown tool names return a synthetic error
// Result rather than an error, per spec.md §4.3.
func (r *Registry) Execute(ctx context.Context, callID, name string, input json.RawMessage) (Result, error) {
	if len(name) > MaxToolNameLength {
		return Result{Success: false, Error: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength)}, nil
	}
	if len(input) > MaxToolInputSize {
		return Result{Success: false, Error: fmt.Sprintf("tool input exceeds maximum size of %d bytes", MaxToolInputSize)}, nil
	}

	tool, ok := r.Get(name)
	if !ok {
		return Result{Success: false, Error: "Unknown tool: " + name}, nil
	}

	if err := r.Validate(name, input); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("invalid input: %v", err)}, nil
	}

	return tool.Execute(ctx, callID, input)
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(resource)
}
