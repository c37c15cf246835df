package agentloop

import (
	"encoding/json"
	"strings"

	"github.com/agentruntime/core/pkg/models"
)

// blockAssembler reconstructs an assistant Message's ordered Content
// blocks from a Delta stream. modelclient's adapters emit plain
// text_delta/thinking_delta chunks with no explicit block-start marker,
// so the assembler infers block boundaries itself: a run of same-type
// text/thinking deltas accumulates into one builder, flushed into a
// completed Block whenever the delta type changes or a tool_use_start
// arrives. tool_use blocks are appended as ordered placeholders at
// tool_use_start and filled in once tool_use_end's FinalInput arrives,
// so interleaved prose and tool calls come out in the order the model
// actually produced them.
type blockAssembler struct {
	blocks []models.Block

	openKind BlockType
	builder  strings.Builder

	toolIndex map[string]int
}

// BlockType mirrors models.BlockType but adds "none" for the assembler's
// idle state, so openKind can default to the zero value without
// colliding with models.BlockText.
type BlockType string

const (
	blockNone     BlockType = ""
	blockText     BlockType = "text"
	blockThinking BlockType = "thinking"
)

func newBlockAssembler() *blockAssembler {
	return &blockAssembler{toolIndex: make(map[string]int)}
}

func (a *blockAssembler) appendText(text string) {
	a.ensureOpen(blockText)
	a.builder.WriteString(text)
}

func (a *blockAssembler) appendThinking(text string) {
	a.ensureOpen(blockThinking)
	a.builder.WriteString(text)
}

// ensureOpen flushes the current builder if accumulating a different
// kind, then opens (or continues) kind's builder.
func (a *blockAssembler) ensureOpen(kind BlockType) {
	if a.openKind != kind {
		a.flushText()
		a.openKind = kind
	}
}

func (a *blockAssembler) flushText() {
	if a.openKind == blockNone || a.builder.Len() == 0 {
		a.openKind = blockNone
		a.builder.Reset()
		return
	}
	text := a.builder.String()
	switch a.openKind {
	case blockText:
		a.blocks = append(a.blocks, models.TextBlock(text))
	case blockThinking:
		a.blocks = append(a.blocks, models.ThinkingBlock(text))
	}
	a.openKind = blockNone
	a.builder.Reset()
}

// startToolUse flushes any open text/thinking run, then appends an
// ordered placeholder block for this call, recording its index so
// finishToolUse can fill it in without disturbing block order.
func (a *blockAssembler) startToolUse(id, name string) {
	a.flushText()
	a.toolIndex[id] = len(a.blocks)
	a.blocks = append(a.blocks, models.ToolUseBlock(id, name, json.RawMessage("{}")))
}

func (a *blockAssembler) finishToolUse(id string, finalInput json.RawMessage) {
	idx, ok := a.toolIndex[id]
	if !ok {
		return
	}
	if len(finalInput) > 0 {
		a.blocks[idx].ToolInput = finalInput
	}
}

// flush closes out any still-open text/thinking run (called once the
// stream ends, mirroring a stop delta with no trailing block marker).
func (a *blockAssembler) flush() {
	a.flushText()
}
