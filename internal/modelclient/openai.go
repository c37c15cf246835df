package modelclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentruntime/core/pkg/models"
)

// OpenAIConfig configures the OpenAI chat completions adapter.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Retry        RetryConfig
}

// OpenAIClient implements ModelClient against OpenAI's chat completions
// streaming API, grounded on the teacher's OpenAIProvider
// (internal/agent/providers/openai.go), generalized from the teacher's
// role-switched CompletionMessage conversion to the Block-tagged
// models.Message, and from its bespoke isRetryableError loop to the
// shared RetryConfig budget.
type OpenAIClient struct {
	client       *openai.Client
	defaultModel string
	retry        RetryConfig
}

// NewOpenAIClient constructs an OpenAI adapter.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("modelclient: openai api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	model := cfg.DefaultModel
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIClient{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: model,
		retry:        cfg.Retry,
	}, nil
}

func (c *OpenAIClient) Name() string { return "openai" }

func (c *OpenAIClient) Call(ctx context.Context, model, system string, messages []models.Message, tools []ToolDef, opts CallOptions) (<-chan Delta, error) {
	if model == "" {
		model = c.defaultModel
	}

	chatMessages := convertMessagesToOpenAI(messages, system)
	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: chatMessages,
		Stream:   true,
	}
	if opts.MaxTokens > 0 {
		chatReq.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature != nil {
		chatReq.Temperature = float32(*opts.Temperature)
	}
	if len(tools) > 0 {
		chatReq.Tools = convertToolsToOpenAI(tools)
	}

	out, err := callWithRetry(ctx, c.retry, func(ctx context.Context, try int) (<-chan Delta, error) {
		stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return nil, wrapErr("modelclient.openai.Call", err)
		}
		deltas := make(chan Delta)
		go processOpenAIStream(stream, deltas)
		return deltas, nil
	})
	if err != nil {
		return nil, wrapErr("modelclient.openai.Call", err)
	}
	return out, nil
}

func convertMessagesToOpenAI(messages []models.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var text string
		var toolCalls []openai.ToolCall
		var toolResults []models.Block

		for _, block := range msg.Content {
			switch block.Type {
			case models.BlockText:
				text += block.Text
			case models.BlockToolUse:
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   block.ToolUseID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      block.ToolName,
						Arguments: string(block.ToolInput),
					},
				})
			case models.BlockToolResult:
				toolResults = append(toolResults, block)
			}
		}

		if len(toolResults) > 0 {
			for _, tr := range toolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.ToolResultContent,
					ToolCallID: tr.ToolUseID,
				})
			}
			continue
		}

		role := openai.ChatMessageRoleUser
		if msg.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		oaiMsg := openai.ChatCompletionMessage{Role: role, Content: text}
		if len(toolCalls) > 0 {
			oaiMsg.ToolCalls = toolCalls
		}
		result = append(result, oaiMsg)
	}

	return result
}

func convertToolsToOpenAI(tools []ToolDef) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Schema, &schemaMap); err != nil {
			schemaMap = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}

func processOpenAIStream(stream *openai.ChatCompletionStream, deltas chan<- Delta) {
	defer close(deltas)
	defer stream.Close()

	type building struct {
		id, name string
		args     []byte
		started  bool
	}
	toolCalls := make(map[int]*building)
	var inputTokens, outputTokens int
	stopReason := StopEndTurn

	flush := func() {
		for _, tc := range toolCalls {
			if tc.id == "" || tc.name == "" {
				continue
			}
			deltas <- Delta{Type: DeltaToolUseEnd, ToolUseID: tc.id, ToolName: tc.name, FinalInput: json.RawMessage(tc.args)}
		}
		toolCalls = make(map[int]*building)
	}

	for {
		response, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				flush()
				deltas <- Delta{Type: DeltaUsage, InputTokens: inputTokens, OutputTokens: outputTokens}
				deltas <- Delta{Type: DeltaStop, StopReason: stopReason}
				return
			}
			deltas <- Delta{Type: DeltaStop, StopReason: StopError, Err: wrapErr("modelclient.openai.stream", err)}
			return
		}

		if response.Usage != nil {
			inputTokens = response.Usage.PromptTokens
			outputTokens = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			deltas <- Delta{Type: DeltaText, Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			b, ok := toolCalls[index]
			if !ok {
				b = &building{}
				toolCalls[index] = b
			}
			if tc.ID != "" {
				b.id = tc.ID
			}
			if tc.Function.Name != "" {
				b.name = tc.Function.Name
			}
			if !b.started && b.id != "" && b.name != "" {
				b.started = true
				deltas <- Delta{Type: DeltaToolUseStart, ToolUseID: b.id, ToolName: b.name}
			}
			if tc.Function.Arguments != "" {
				b.args = append(b.args, tc.Function.Arguments...)
				deltas <- Delta{Type: DeltaToolUseInput, ToolUseID: b.id, PartialInput: tc.Function.Arguments}
			}
		}

		switch choice.FinishReason {
		case openai.FinishReasonToolCalls:
			flush()
			stopReason = StopToolUse
		case openai.FinishReasonLength:
			deltas <- Delta{Type: DeltaUsage, InputTokens: inputTokens, OutputTokens: outputTokens}
			deltas <- Delta{Type: DeltaStop, StopReason: StopMaxTokens}
			return
		case openai.FinishReasonContentFilter:
			deltas <- Delta{Type: DeltaStop, StopReason: StopContentFilter}
			return
		}
	}
}
