package modelclient

import (
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/agentruntime/core/pkg/models"
)

func TestConvertMessagesToBedrock(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleSystem, Content: []models.Block{models.TextBlock("be terse")}},
		{Role: models.RoleUser, Content: []models.Block{models.TextBlock("hello")}},
		{Role: models.RoleAssistant, Content: []models.Block{
			models.TextBlock("sure"),
			models.ToolUseBlock("call_1", "search", json.RawMessage(`{"q":"weather"}`)),
		}},
		{Role: models.RoleUser, Content: []models.Block{models.ToolResultBlock("call_1", "sunny", false)}},
	}

	got, err := convertMessagesToBedrock(messages)
	if err != nil {
		t.Fatalf("convertMessagesToBedrock() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	if got[0].Role != types.ConversationRoleUser {
		t.Errorf("first message role = %v, want user", got[0].Role)
	}
	if got[1].Role != types.ConversationRoleAssistant {
		t.Errorf("second message role = %v, want assistant", got[1].Role)
	}
}

func TestConvertMessagesToBedrockInvalidToolInput(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleAssistant, Content: []models.Block{
			models.ToolUseBlock("call_1", "search", json.RawMessage(`not json`)),
		}},
	}
	if _, err := convertMessagesToBedrock(messages); err == nil {
		t.Fatal("expected error for invalid tool_use input, got nil")
	}
}

func TestConvertToolsToBedrock(t *testing.T) {
	tools := []ToolDef{
		{Name: "search", Description: "search the web", Schema: json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`)},
	}
	got := convertToolsToBedrock(tools)
	if len(got.Tools) != 1 {
		t.Fatalf("got %d tools, want 1", len(got.Tools))
	}
}

func TestBedrockClientName(t *testing.T) {
	c := &BedrockClient{defaultModel: "anthropic.claude-3-sonnet-20240229-v1:0"}
	if c.Name() != "bedrock" {
		t.Errorf("Name() = %v, want bedrock", c.Name())
	}
}
