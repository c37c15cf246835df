package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Role is the author type of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockType discriminates a content Block's payload.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Block is one element of a Message's ordered content list. Exactly the
// fields matching Type are populated; the rest are zero. tool_use blocks
// appear only in assistant messages; tool_result blocks appear only in
// user-role messages and carry ToolUseID referencing an earlier tool_use
// block in the same session.
type Block struct {
	Type BlockType `json:"type"`

	// Text carries the text or thinking body, depending on Type.
	Text string `json:"text,omitempty"`

	// ToolUseID/ToolName/ToolInput populate a tool_use block.
	ToolUseID string          `json:"tool_use_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`

	// ToolResultContent/IsError populate a tool_result block. ToolUseID
	// above doubles as the reference id for tool_result blocks.
	ToolResultContent string `json:"tool_result_content,omitempty"`
	IsError           bool   `json:"is_error,omitempty"`
}

// TextBlock constructs a text content block.
func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// ThinkingBlock constructs a thinking content block.
func ThinkingBlock(text string) Block {
	return Block{Type: BlockThinking, Text: text}
}

// ToolUseBlock constructs a tool_use content block.
func ToolUseBlock(id, name string, input json.RawMessage) Block {
	return Block{Type: BlockToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

// ToolResultBlock constructs a tool_result content block.
func ToolResultBlock(toolUseID, content string, isError bool) Block {
	return Block{Type: BlockToolResult, ToolUseID: toolUseID, ToolResultContent: content, IsError: isError}
}

// Message is one entry in a session's dialogue. Content is always the
// ordered block list; NewTextMessage is the convenience constructor for
// the common plain-string case (a single text block).
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   []Block   `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTextMessage builds a single-block text Message.
func NewTextMessage(id, sessionID string, role Role, text string, now time.Time) Message {
	return Message{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Content:   []Block{TextBlock(text)},
		CreatedAt: now,
	}
}

// Text concatenates the text and thinking blocks of a message, in order,
// for logging and for the char/4 token estimate.
func (m Message) Text() string {
	var b strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockText || block.Type == BlockThinking {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// ToolUseBlocks returns the message's tool_use blocks, in order.
func (m Message) ToolUseBlocks() []Block {
	var out []Block
	for _, block := range m.Content {
		if block.Type == BlockToolUse {
			out = append(out, block)
		}
	}
	return out
}

// ToolResultBlocks returns the message's tool_result blocks, in order.
func (m Message) ToolResultBlocks() []Block {
	var out []Block
	for _, block := range m.Content {
		if block.Type == BlockToolResult {
			out = append(out, block)
		}
	}
	return out
}

// EstimateTokens applies the conservative character/4 fallback heuristic
// (spec.md §4.2) to a message body.
func (m Message) EstimateTokens() int {
	return len(m.Text()) / 4
}
