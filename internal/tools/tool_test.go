package tools

import (
	"context"
	"encoding/json"
)

// stubTool implements Tool for tests across the package.
type stubTool struct {
	name     string
	schema   json.RawMessage
	execFunc func(ctx context.Context, callID string, input json.RawMessage) (Result, error)
}

func (s *stubTool) Name() string              { return s.name }
func (s *stubTool) Label() string             { return s.name }
func (s *stubTool) Category() string          { return "test" }
func (s *stubTool) Risk() RiskLevel           { return RiskLow }
func (s *stubTool) Schema() json.RawMessage   { return s.schema }
func (s *stubTool) Execute(ctx context.Context, callID string, input json.RawMessage) (Result, error) {
	if s.execFunc != nil {
		return s.execFunc(ctx, callID, input)
	}
	return Result{Success: true, Content: []ResultBlock{TextResultBlock("ok")}}, nil
}
