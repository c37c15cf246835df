package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewTextMessage(t *testing.T) {
	now := time.Now()
	msg := NewTextMessage("msg_1", "sess_1", RoleUser, "hello", now)

	require.Equal(t, "msg_1", msg.ID)
	require.Equal(t, RoleUser, msg.Role)
	require.Len(t, msg.Content, 1)
	require.Equal(t, BlockText, msg.Content[0].Type)
	require.Equal(t, "hello", msg.Text())
}

func TestMessageTextConcatenatesTextAndThinkingOnly(t *testing.T) {
	msg := Message{
		Content: []Block{
			ThinkingBlock("considering... "),
			TextBlock("the answer is 4"),
			ToolUseBlock("tu_1", "calc", nil),
		},
	}

	require.Equal(t, "considering... the answer is 4", msg.Text())
}

func TestMessageToolUseAndToolResultBlocks(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []Block{
			TextBlock("let me check"),
			ToolUseBlock("tu_1", "read", nil),
			ToolUseBlock("tu_2", "write", nil),
		},
	}
	require.Len(t, msg.ToolUseBlocks(), 2)
	require.Empty(t, msg.ToolResultBlocks())

	result := Message{
		Role: RoleUser,
		Content: []Block{
			ToolResultBlock("tu_1", "file contents", false),
			ToolResultBlock("tu_2", "permission denied", true),
		},
	}
	blocks := result.ToolResultBlocks()
	require.Len(t, blocks, 2)
	require.False(t, blocks[0].IsError)
	require.True(t, blocks[1].IsError)
}

func TestMessageEstimateTokens(t *testing.T) {
	msg := NewTextMessage("m", "s", RoleUser, "abcdefgh", time.Now()) // 8 chars
	require.Equal(t, 2, msg.EstimateTokens())
}
