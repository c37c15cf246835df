package agentloop

import (
	"context"
	"time"

	"github.com/agentruntime/core/internal/hooks"
	"github.com/agentruntime/core/internal/tools"
	"github.com/agentruntime/core/pkg/models"
	"github.com/google/uuid"
)

// runTools executes every tool_use block of assistantMsg in order,
// building the single user-role message whose content is the ordered
// list of tool_result blocks (spec.md §4.5 step 8, tool_use branch).
// Each call goes through beforeToolCall/afterToolCall so the hook chain
// can deny, modify, or observe it, regardless of which tool answers.
func (l *Loop) runTools(ctx context.Context, session *models.Session, assistantMsg models.Message) models.Message {
	toolUses := assistantMsg.ToolUseBlocks()
	resultBlocks := make([]models.Block, 0, len(toolUses))

	for _, use := range toolUses {
		l.publishToolEvent(session, models.EventToolCallStart, use.ToolUseID, use.ToolName, false, false)

		call := hooks.ToolCallContext{
			SessionID: session.ID,
			AgentID:   session.AgentID,
			OrgID:     session.OrgID,
			CallID:    use.ToolUseID,
			ToolName:  use.ToolName,
			Input:     use.ToolInput,
		}

		decision := l.deps.Hooks.BeforeToolCall(ctx, call)
		if !decision.Allowed {
			resultBlocks = append(resultBlocks, models.ToolResultBlock(use.ToolUseID, decision.Reason, true))
			l.publishToolEvent(session, models.EventToolCallEnd, use.ToolUseID, use.ToolName, false, true)
			continue
		}
		if decision.ModifiedParameters != nil {
			call.Input = decision.ModifiedParameters
		}

		toolCtx, span := l.deps.Tracer.TraceToolExecution(ctx, use.ToolName, use.ToolUseID)
		start := time.Now()
		result := l.deps.Executor.Execute(toolCtx, use.ToolUseID, use.ToolName, call.Input)
		duration := time.Since(start)
		if !result.Success {
			l.deps.Tracer.SetAttributes(span, "tool.error", true)
		}
		span.End()

		l.deps.Hooks.AfterToolCall(ctx, call, result)
		l.recordToolCall(ctx, session, use, call.Input, result, duration)

		if l.deps.Metrics != nil {
			status := "success"
			if !result.Success {
				status = "error"
			}
			l.deps.Metrics.ToolExecutionCounter.WithLabelValues(use.ToolName, status).Inc()
			l.deps.Metrics.ToolExecutionDuration.WithLabelValues(use.ToolName).Observe(duration.Seconds())
		}

		content := tools.FlattenContent(result)
		resultBlocks = append(resultBlocks, models.ToolResultBlock(use.ToolUseID, content, !result.Success))
		l.publishToolEvent(session, models.EventToolCallEnd, use.ToolUseID, use.ToolName, result.Success, !result.Success)
	}

	return models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   resultBlocks,
		CreatedAt: time.Now(),
	}
}

func (l *Loop) publishToolEvent(session *models.Session, eventType models.EventType, callID, toolName string, success, isError bool) {
	if l.deps.Events == nil {
		return
	}
	l.deps.Events.Publish(session.ID, models.Event{
		Type:      eventType,
		TurnIndex: session.TurnCount,
		Tool:      &models.ToolPayload{CallID: callID, ToolName: toolName, Success: success, IsError: isError},
	})
}

func (l *Loop) recordToolCall(ctx context.Context, session *models.Session, use models.Block, input []byte, result tools.Result, duration time.Duration) {
	if l.deps.Store == nil {
		return
	}
	now := time.Now()
	record := models.ToolCallRecord{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		AgentID:   session.AgentID,
		TurnIndex: session.TurnCount,
		ToolName:  use.ToolName,
		Input:     input,
		Result:    tools.FlattenContent(result),
		Success:   result.Success,
		Duration:  duration,
		StartedAt: now.Add(-duration),
		EndedAt:   now,
	}
	if err := l.deps.Store.RecordToolCall(ctx, record); err != nil {
		l.deps.Logger.Warn(ctx, "failed to record tool call", "session_id", session.ID, "tool", use.ToolName, "error", err)
	}
}
