package tools

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultToolTimeout matches spec.md §4.3's toolTimeoutMs default of 30s.
const DefaultToolTimeout = 30 * time.Second

// MaxResultContentBytes bounds the stringified tool_result content fed
// back to the model (spec.md §4.3: "truncated at a provider-safe limit,
// e.g. 50 KB per tool_result").
const MaxResultContentBytes = 50 * 1024

// ExecutorConfig configures ToolExecutor's per-call timeout and, when
// set, a per-tool override (spec.md's supplemented per-tool config
// override feature).
type ExecutorConfig struct {
	Timeout       time.Duration
	PerToolConfig map[string]time.Duration
}

// DefaultExecutorConfig returns the spec's 30s default timeout with no
// per-tool overrides.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{Timeout: DefaultToolTimeout}
}

// Executor wraps Registry.Execute with the timeout/cancellation/panic
// recovery/truncation contract of spec.md §4.3, grounded on the
// teacher's ToolExecutor (internal/agent/tool_exec.go) generalized from
// the teacher's single-string ToolResult to the typed-block Result and
// from a fixed ExecuteConcurrently fan-out to a single-call executor the
// AgentLoop drives once per tool_use block.
type Executor struct {
	registry *Registry
	config   ExecutorConfig
}

// NewExecutor constructs a ToolExecutor bound to registry.
func NewExecutor(registry *Registry, config ExecutorConfig) *Executor {
	if config.Timeout <= 0 {
		config.Timeout = DefaultToolTimeout
	}
	return &Executor{registry: registry, config: config}
}

func (e *Executor) timeoutFor(name string) time.Duration {
	if d, ok := e.config.PerToolConfig[name]; ok && d > 0 {
		return d
	}
	return e.config.Timeout
}

// Execute runs one tool call: derives a timeout-bound child context from
// ctx (the session's abort token), catches panics and errors into
// {success=false, error=message}, and truncates the flattened text
// content to MaxResultContentBytes. It never returns an error — all
// failure modes surface inside Result.
func (e *Executor) Execute(ctx context.Context, callID, name string, input []byte) Result {
	toolCtx, cancel := context.WithTimeout(ctx, e.timeoutFor(name))
	defer cancel()

	result := e.runCatchingPanics(toolCtx, callID, name, input)

	if toolCtx.Err() != nil && !result.Success {
		if errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
			result = Result{Success: false, Error: fmt.Sprintf("tool execution timed out after %s", e.timeoutFor(name))}
		} else if result.Error == "" {
			result = Result{Success: false, Error: "tool execution canceled"}
		}
	}

	return truncateResult(result)
}

func (e *Executor) runCatchingPanics(ctx context.Context, callID, name string, input []byte) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Success: false, Error: fmt.Sprintf("tool panicked: %v", r)}
		}
	}()

	done := make(chan Result, 1)
	go func() {
		res, err := e.registry.Execute(ctx, callID, name, input)
		if err != nil {
			done <- Result{Success: false, Error: err.Error()}
			return
		}
		done <- res
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{Success: false, Error: fmt.Sprintf("tool execution timed out after %s", e.timeoutFor(name))}
		}
		return Result{Success: false, Error: "tool execution canceled"}
	case res := <-done:
		return res
	}
}

func truncateResult(result Result) Result {
	total := 0
	for _, block := range result.Content {
		total += len(block.Text)
	}
	if total <= MaxResultContentBytes {
		return result
	}

	remaining := MaxResultContentBytes
	truncated := make([]ResultBlock, 0, len(result.Content))
	for _, block := range result.Content {
		if block.Type != ContentText || remaining <= 0 {
			if block.Type != ContentText {
				truncated = append(truncated, block)
			}
			continue
		}
		if len(block.Text) <= remaining {
			truncated = append(truncated, block)
			remaining -= len(block.Text)
			continue
		}
		truncated = append(truncated, TextResultBlock(block.Text[:remaining]+"\n...[truncated]"))
		remaining = 0
	}
	result.Content = truncated
	return result
}

// FlattenContent joins every text block of a Result's content into a
// single string, the form the AgentLoop feeds back as a tool_result
// block's content.
func FlattenContent(result Result) string {
	var out string
	for _, block := range result.Content {
		if block.Type == ContentText {
			out += block.Text
		}
	}
	return out
}
