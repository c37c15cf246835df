package modelclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/agentruntime/core/pkg/models"
)

// BedrockConfig configures the AWS Bedrock ConverseStream adapter.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	Retry           RetryConfig
}

// BedrockClient implements ModelClient against AWS Bedrock's ConverseStream
// API, grounded on the teacher's BedrockProvider
// (internal/agent/providers/bedrock.go), generalized from its
// CompletionMessage/Attachment conversion to the Block-tagged
// models.Message (image attachments are not part of this runtime's
// content model and are dropped) and from its bespoke retry loop to the
// shared RetryConfig budget.
type BedrockClient struct {
	client       *bedrockruntime.Client
	defaultModel string
	retry        RetryConfig
}

// NewBedrockClient constructs a Bedrock adapter.
func NewBedrockClient(ctx context.Context, cfg BedrockConfig) (*BedrockClient, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("modelclient: bedrock: load aws config: %w", err)
	}

	return &BedrockClient{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		retry:        cfg.Retry,
	}, nil
}

func (c *BedrockClient) Name() string { return "bedrock" }

func (c *BedrockClient) Call(ctx context.Context, model, system string, messages []models.Message, tools []ToolDef, opts CallOptions) (<-chan Delta, error) {
	if model == "" {
		model = c.defaultModel
	}

	converted, err := convertMessagesToBedrock(messages)
	if err != nil {
		return nil, wrapErr("modelclient.bedrock.Call", err)
	}

	req := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: converted,
	}
	if system != "" {
		req.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	if opts.MaxTokens > 0 {
		maxTokens := opts.MaxTokens
		if maxTokens > math.MaxInt32 {
			maxTokens = math.MaxInt32
		}
		req.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))}
	}
	if len(tools) > 0 {
		req.ToolConfig = convertToolsToBedrock(tools)
	}

	out, err := callWithRetry(ctx, c.retry, func(ctx context.Context, try int) (<-chan Delta, error) {
		stream, err := c.client.ConverseStream(ctx, req)
		if err != nil {
			return nil, wrapErr("modelclient.bedrock.Call", err)
		}
		deltas := make(chan Delta)
		go processBedrockStream(stream, deltas)
		return deltas, nil
	})
	if err != nil {
		return nil, wrapErr("modelclient.bedrock.Call", err)
	}
	return out, nil
}

func convertMessagesToBedrock(messages []models.Message) ([]types.Message, error) {
	var result []types.Message
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []types.ContentBlock
		for _, block := range msg.Content {
			switch block.Type {
			case models.BlockText:
				if block.Text != "" {
					content = append(content, &types.ContentBlockMemberText{Value: block.Text})
				}
			case models.BlockToolResult:
				content = append(content, &types.ContentBlockMemberToolResult{
					Value: types.ToolResultBlock{
						ToolUseId: aws.String(block.ToolUseID),
						Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: block.ToolResultContent}},
					},
				})
			case models.BlockToolUse:
				var inputDoc any
				if len(block.ToolInput) > 0 {
					if err := json.Unmarshal(block.ToolInput, &inputDoc); err != nil {
						return nil, fmt.Errorf("invalid tool_use input for %s: %w", block.ToolName, err)
					}
				} else {
					inputDoc = map[string]any{}
				}
				content = append(content, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(block.ToolUseID),
						Name:      aws.String(block.ToolName),
						Input:     document.NewLazyDocument(inputDoc),
					},
				})
			}
		}

		if len(content) == 0 {
			continue
		}
		role := types.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: content})
	}
	return result, nil
}

func convertToolsToBedrock(tools []ToolDef) *types.ToolConfiguration {
	specs := make([]types.Tool, 0, len(tools))
	for _, tool := range tools {
		var schemaDoc any
		if err := json.Unmarshal(tool.Schema, &schemaDoc); err != nil {
			schemaDoc = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(tool.Name),
				Description: aws.String(tool.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schemaDoc)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}
}

func processBedrockStream(stream *bedrockruntime.ConverseStreamOutput, deltas chan<- Delta) {
	defer close(deltas)
	eventStream := stream.GetStream()
	defer eventStream.Close()

	var currentToolID, currentToolName string
	var toolInput strings.Builder
	inTool := false
	var inputTokens, outputTokens int

	for event := range eventStream.Events() {
		switch ev := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockStart:
			if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
				currentToolID = aws.ToString(toolUse.Value.ToolUseId)
				currentToolName = aws.ToString(toolUse.Value.Name)
				toolInput.Reset()
				inTool = true
				deltas <- Delta{Type: DeltaToolUseStart, ToolUseID: currentToolID, ToolName: currentToolName}
			}

		case *types.ConverseStreamOutputMemberContentBlockDelta:
			switch delta := ev.Value.Delta.(type) {
			case *types.ContentBlockDeltaMemberText:
				if delta.Value != "" {
					deltas <- Delta{Type: DeltaText, Text: delta.Value}
				}
			case *types.ContentBlockDeltaMemberToolUse:
				if delta.Value.Input != nil && *delta.Value.Input != "" {
					toolInput.WriteString(*delta.Value.Input)
					deltas <- Delta{Type: DeltaToolUseInput, ToolUseID: currentToolID, PartialInput: *delta.Value.Input}
				}
			}

		case *types.ConverseStreamOutputMemberContentBlockStop:
			if inTool {
				deltas <- Delta{Type: DeltaToolUseEnd, ToolUseID: currentToolID, ToolName: currentToolName, FinalInput: json.RawMessage(toolInput.String())}
				inTool = false
			}

		case *types.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				inputTokens = int(aws.ToInt32(ev.Value.Usage.InputTokens))
				outputTokens = int(aws.ToInt32(ev.Value.Usage.OutputTokens))
			}

		case *types.ConverseStreamOutputMemberMessageStop:
			deltas <- Delta{Type: DeltaUsage, InputTokens: inputTokens, OutputTokens: outputTokens}
			reason := StopEndTurn
			if ev.Value.StopReason == types.StopReasonMaxTokens {
				reason = StopMaxTokens
			} else if ev.Value.StopReason == types.StopReasonToolUse {
				reason = StopToolUse
			} else if ev.Value.StopReason == types.StopReasonContentFiltered {
				reason = StopContentFilter
			}
			deltas <- Delta{Type: DeltaStop, StopReason: reason}
			return
		}
	}

	if err := eventStream.Err(); err != nil {
		deltas <- Delta{Type: DeltaStop, StopReason: StopError, Err: wrapErr("modelclient.bedrock.stream", err)}
	}
}
