package modelclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentruntime/core/pkg/models"
)

// AnthropicConfig configures the Anthropic Messages API adapter.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Retry        RetryConfig
}

// AnthropicClient implements ModelClient against Anthropic's Messages
// streaming API, grounded on the teacher's AnthropicProvider
// (internal/agent/providers/anthropic.go) but generalized from the
// teacher's flat CompletionMessage to the canonical Block-tagged
// models.Message. Call runs through the shared RetryConfig budget, but
// its retry attempt only opens the stream and never fails, so connection
// and stream errors are not retried: they surface as a stop delta with
// StopReason=error.
type AnthropicClient struct {
	client       anthropic.Client
	defaultModel string
	retry        RetryConfig
}

// NewAnthropicClient constructs an Anthropic adapter.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("modelclient: anthropic api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &AnthropicClient{
		client:       anthropic.NewClient(opts...),
		defaultModel: model,
		retry:        cfg.Retry,
	}, nil
}

func (c *AnthropicClient) Name() string { return "anthropic" }

func (c *AnthropicClient) Call(ctx context.Context, model, system string, messages []models.Message, tools []ToolDef, opts CallOptions) (<-chan Delta, error) {
	if model == "" {
		model = c.defaultModel
	}

	anthMessages, err := convertMessagesToAnthropic(messages)
	if err != nil {
		return nil, wrapErr("modelclient.anthropic.Call", err)
	}
	anthTools, err := convertToolsToAnthropic(tools)
	if err != nil {
		return nil, wrapErr("modelclient.anthropic.Call", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  anthMessages,
		MaxTokens: int64(maxTokensOrDefault(opts.MaxTokens)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(anthTools) > 0 {
		params.Tools = anthTools
	}
	if opts.EnableThinking {
		budget := int64(opts.ThinkingBudgetTokens)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	out, err := callWithRetry(ctx, c.retry, func(ctx context.Context, try int) (<-chan Delta, error) {
		stream := c.client.Messages.NewStreaming(ctx, params)
		deltas := make(chan Delta)
		go processAnthropicStream(stream, deltas)
		return deltas, nil
	})
	if err != nil {
		return nil, wrapErr("modelclient.anthropic.Call", err)
	}
	return out, nil
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return 4096
	}
	return n
}

func convertMessagesToAnthropic(messages []models.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			switch block.Type {
			case models.BlockText:
				content = append(content, anthropic.NewTextBlock(block.Text))
			case models.BlockThinking:
				// Thinking blocks are assistant-only and are not replayed
				// back as input; Anthropic regenerates them per call.
			case models.BlockToolUse:
				var input map[string]interface{}
				if len(block.ToolInput) > 0 {
					if err := json.Unmarshal(block.ToolInput, &input); err != nil {
						return nil, fmt.Errorf("invalid tool_use input for %s: %w", block.ToolName, err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(block.ToolUseID, input, block.ToolName))
			case models.BlockToolResult:
				content = append(content, anthropic.NewToolResultBlock(block.ToolUseID, block.ToolResultContent, block.IsError))
			}
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out, nil
}

func convertToolsToAnthropic(tools []ToolDef) ([]anthropic.ToolUnionParam, error) {
	var out []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for tool %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(tool.Description)
		}
		out = append(out, param)
	}
	return out, nil
}

// maxEmptyStreamEvents bounds how many consecutive no-op SSE events are
// tolerated before a stream is assumed to be stuck and aborted.
const maxEmptyStreamEvents = 300

func processAnthropicStream(stream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
}, deltas chan<- Delta) {
	defer close(deltas)

	var currentToolID, currentToolName string
	var currentToolInput []byte
	inTool := false
	empty := 0
	var inputTokens, outputTokens int
	stopReason := StopEndTurn

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int(ms.Message.Usage.InputTokens)
			}
			processed = true

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentToolID = toolUse.ID
				currentToolName = toolUse.Name
				currentToolInput = currentToolInput[:0]
				inTool = true
				deltas <- Delta{Type: DeltaToolUseStart, ToolUseID: currentToolID, ToolName: currentToolName}
				processed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					deltas <- Delta{Type: DeltaText, Text: delta.Text}
					processed = true
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					deltas <- Delta{Type: DeltaThinking, Text: delta.Thinking}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentToolInput = append(currentToolInput, delta.PartialJSON...)
					deltas <- Delta{Type: DeltaToolUseInput, ToolUseID: currentToolID, PartialInput: delta.PartialJSON}
					processed = true
				}
			}

		case "content_block_stop":
			if inTool {
				deltas <- Delta{Type: DeltaToolUseEnd, ToolUseID: currentToolID, ToolName: currentToolName, FinalInput: json.RawMessage(currentToolInput)}
				inTool = false
				processed = true
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}
			switch md.Delta.StopReason {
			case anthropic.StopReasonToolUse:
				stopReason = StopToolUse
			case anthropic.StopReasonMaxTokens:
				stopReason = StopMaxTokens
			}
			processed = true

		case "message_stop":
			deltas <- Delta{Type: DeltaUsage, InputTokens: inputTokens, OutputTokens: outputTokens}
			deltas <- Delta{Type: DeltaStop, StopReason: stopReason}
			return

		case "error":
			deltas <- Delta{Type: DeltaStop, StopReason: StopError, Err: fmt.Errorf("anthropic stream error")}
			return
		}

		if processed {
			empty = 0
		} else if empty++; empty >= maxEmptyStreamEvents {
			deltas <- Delta{Type: DeltaStop, StopReason: StopError, Err: fmt.Errorf("anthropic stream stalled: too many empty events")}
			return
		}
	}

	if err := stream.Err(); err != nil {
		deltas <- Delta{Type: DeltaStop, StopReason: StopError, Err: wrapErr("modelclient.anthropic.stream", err)}
	}
}
