package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestExecutorSuccessResult(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "echo", schema: json.RawMessage(`{}`)})
	exec := NewExecutor(r, DefaultExecutorConfig())

	result := exec.Execute(context.Background(), "call_1", "echo", json.RawMessage(`{}`))
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
}

func TestExecutorUnknownToolIsSyntheticError(t *testing.T) {
	r := NewRegistry()
	exec := NewExecutor(r, DefaultExecutorConfig())

	result := exec.Execute(context.Background(), "call_1", "missing", json.RawMessage(`{}`))
	if result.Success {
		t.Fatal("expected failure for unknown tool")
	}
	if !strings.Contains(result.Error, "Unknown tool") {
		t.Errorf("Error = %q, want mention of unknown tool", result.Error)
	}
}

func TestExecutorTimesOutSlowTool(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{
		name:   "slow",
		schema: json.RawMessage(`{}`),
		execFunc: func(ctx context.Context, callID string, input json.RawMessage) (Result, error) {
			select {
			case <-time.After(time.Second):
				return Result{Success: true}, nil
			case <-ctx.Done():
				return Result{Success: false, Error: "canceled"}, nil
			}
		},
	})
	exec := NewExecutor(r, ExecutorConfig{Timeout: 20 * time.Millisecond})

	result := exec.Execute(context.Background(), "call_1", "slow", json.RawMessage(`{}`))
	if result.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(result.Error, "timed out") {
		t.Errorf("Error = %q, want timeout message", result.Error)
	}
}

func TestExecutorRespectsPerToolOverride(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{
		name:   "slow",
		schema: json.RawMessage(`{}`),
		execFunc: func(ctx context.Context, callID string, input json.RawMessage) (Result, error) {
			select {
			case <-time.After(200 * time.Millisecond):
				return Result{Success: true}, nil
			case <-ctx.Done():
				return Result{Success: false, Error: "canceled"}, nil
			}
		},
	})
	exec := NewExecutor(r, ExecutorConfig{
		Timeout:       time.Second,
		PerToolConfig: map[string]time.Duration{"slow": 10 * time.Millisecond},
	})

	result := exec.Execute(context.Background(), "call_1", "slow", json.RawMessage(`{}`))
	if result.Success {
		t.Fatal("expected per-tool timeout override to fire before the default timeout")
	}
}

func TestExecutorCatchesPanic(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{
		name:   "panicky",
		schema: json.RawMessage(`{}`),
		execFunc: func(ctx context.Context, callID string, input json.RawMessage) (Result, error) {
			panic("boom")
		},
	})
	exec := NewExecutor(r, DefaultExecutorConfig())

	result := exec.Execute(context.Background(), "call_1", "panicky", json.RawMessage(`{}`))
	if result.Success {
		t.Fatal("expected failure result from a panicking tool")
	}
	if !strings.Contains(result.Error, "panicked") {
		t.Errorf("Error = %q, want mention of panic", result.Error)
	}
}

func TestExecutorTruncatesLargeResults(t *testing.T) {
	huge := strings.Repeat("x", MaxResultContentBytes+500)
	r := NewRegistry()
	r.Register(&stubTool{
		name:   "verbose",
		schema: json.RawMessage(`{}`),
		execFunc: func(ctx context.Context, callID string, input json.RawMessage) (Result, error) {
			return Result{Success: true, Content: []ResultBlock{TextResultBlock(huge)}}, nil
		},
	})
	exec := NewExecutor(r, DefaultExecutorConfig())

	result := exec.Execute(context.Background(), "call_1", "verbose", json.RawMessage(`{}`))
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	flattened := FlattenContent(result)
	if len(flattened) > MaxResultContentBytes+len("\n...[truncated]") {
		t.Errorf("flattened content length %d exceeds truncation bound", len(flattened))
	}
	if !strings.Contains(flattened, "[truncated]") {
		t.Error("expected truncation marker in content")
	}
}

func TestExecutorCancellation(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{
		name:   "blocking",
		schema: json.RawMessage(`{}`),
		execFunc: func(ctx context.Context, callID string, input json.RawMessage) (Result, error) {
			<-ctx.Done()
			return Result{Success: false, Error: "canceled"}, nil
		},
	})
	exec := NewExecutor(r, ExecutorConfig{Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := exec.Execute(ctx, "call_1", "blocking", json.RawMessage(`{}`))
	if result.Success {
		t.Fatal("expected failure after cancellation")
	}
}
