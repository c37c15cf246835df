// Package tools implements the Tool/ToolRegistry/ToolExecutor contract
// (spec.md §4.3), grounded on the teacher's internal/agent tool
// machinery (tool_exec.go, tool_registry.go) generalized from the
// teacher's flat content-string ToolResult to the {text, image} typed
// content blocks spec.md requires.
package tools

import (
	"context"
	"encoding/json"
)

// RiskLevel classifies how dangerous a tool's side effects are.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ContentType discriminates a ResultBlock's payload.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

// ResultBlock is one element of a tool Result's content list.
type ResultBlock struct {
	Type ContentType `json:"type"`
	Text string      `json:"text,omitempty"`

	// ImageURL/ImageMimeType populate an image block.
	ImageURL      string `json:"image_url,omitempty"`
	ImageMimeType string `json:"image_mime_type,omitempty"`
}

// TextResultBlock constructs a text content block.
func TextResultBlock(text string) ResultBlock {
	return ResultBlock{Type: ContentText, Text: text}
}

// Result is the outcome of executing a tool call.
type Result struct {
	Success  bool            `json:"success"`
	Content  []ResultBlock   `json:"content,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Tool is an opaque, named capability the AgentLoop can invoke. Name
// must be unique within a session's registry; Schema describes the
// shape Execute's input must satisfy.
type Tool interface {
	Name() string
	Label() string
	Category() string
	Risk() RiskLevel
	Schema() json.RawMessage
	Execute(ctx context.Context, callID string, input json.RawMessage) (Result, error)
}
