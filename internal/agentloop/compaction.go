package agentloop

import (
	"strings"
	"time"

	"github.com/agentruntime/core/pkg/models"
	"github.com/google/uuid"
)

// maxDigestBytes bounds the synthetic compaction summary message
// (spec.md §4.5: "a bounded (≤4KB) textual digest").
const maxDigestBytes = 4 * 1024

// perMessageDigestChars is how much of each source message's
// concatenated text contributes to the digest before truncation.
const perMessageDigestChars = 200

// compact implements spec.md §4.5's deterministic compaction: every
// system-role message is preserved; of the rest, the last keepLast are
// kept verbatim, and everything older is folded into one synthetic
// system message whose body is a bounded digest. The digest text is a
// pure function of the message list — no randomness, no clock — so the
// same input always compacts to the same summary; the wrapping message
// still gets a fresh ID and CreatedAt each call, same as any other
// constructed message, since it is persisted via ReplaceMessages.
func compact(messages []models.Message, keepLast int, sessionID string) []models.Message {
	var systemMsgs []models.Message
	var rest []models.Message
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			systemMsgs = append(systemMsgs, m)
		} else {
			rest = append(rest, m)
		}
	}

	if len(rest) <= keepLast {
		return messages
	}

	older := rest[:len(rest)-keepLast]
	kept := rest[len(rest)-keepLast:]

	digest := buildDigest(older)

	result := make([]models.Message, 0, len(systemMsgs)+1+len(kept))
	result = append(result, systemMsgs...)
	result = append(result, models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleSystem,
		Content:   []models.Block{models.TextBlock(digest)},
		CreatedAt: time.Now(),
	})
	result = append(result, kept...)
	return result
}

// buildDigest renders each source message as "[role]: first 200 chars of
// concatenated text blocks", joins them with newlines, then truncates
// the whole string to maxDigestBytes with an ellipsis marker.
func buildDigest(messages []models.Message) string {
	var b strings.Builder
	for _, m := range messages {
		text := concatenatedText(m)
		if len(text) > perMessageDigestChars {
			text = text[:perMessageDigestChars]
		}
		b.WriteString("[")
		b.WriteString(string(m.Role))
		b.WriteString("]: ")
		b.WriteString(text)
		b.WriteString("\n")
	}

	digest := b.String()
	if len(digest) > maxDigestBytes {
		digest = digest[:maxDigestBytes-len(ellipsisMarker)] + ellipsisMarker
	}
	return digest
}

const ellipsisMarker = "...[truncated]"

// concatenatedText extends Message.Text() with tool_result content, since
// a tool-result-only message would otherwise digest to an empty line.
func concatenatedText(m models.Message) string {
	text := m.Text()
	if text != "" {
		return text
	}
	var b strings.Builder
	for _, block := range m.ToolResultBlocks() {
		b.WriteString(block.ToolResultContent)
	}
	return b.String()
}
