package agentloop

import (
	"context"
	"time"

	"github.com/agentruntime/core/internal/modelclient"
	"github.com/agentruntime/core/pkg/models"
	"github.com/google/uuid"
)

// callResult is one model turn's outcome: the assembled assistant
// message, the usage it reported, and why the stream stopped.
type callResult struct {
	Message    models.Message
	Usage      models.Usage
	StopReason modelclient.StopReason
}

// callModel invokes the ModelClient and forwards every text/thinking
// delta to the event bus as it arrives (spec.md §4.5 step 6: "Stream
// deltas; forward them to the event bus unchanged"), accumulating the
// same stream into an ordered assistant Message via blockAssembler.
func (l *Loop) callModel(ctx context.Context, session *models.Session, messages []models.Message) (callResult, error) {
	opts := modelclient.CallOptions{
		MaxTokens:            l.config.MaxTokensPerCall,
		EnableThinking:       l.config.EnableThinking,
		ThinkingBudgetTokens: l.config.ThinkingBudgetTokens,
	}

	ctx, span := l.deps.Tracer.TraceModelCall(ctx, l.deps.Model.Name(), l.config.Model)
	defer span.End()

	start := time.Now()
	deltas, err := l.deps.Model.Call(ctx, l.config.Model, l.config.SystemPrompt, messages, l.config.Tools, opts)
	if err != nil {
		l.deps.Tracer.RecordError(span, err)
		return callResult{}, err
	}

	asm := newBlockAssembler()
	var usage models.Usage
	stopReason := modelclient.StopEndTurn
	var streamErr error

drain:
	for {
		select {
		case <-ctx.Done():
			stopReason = modelclient.StopCancelled
			streamErr = ctx.Err()
			break drain
		case d, ok := <-deltas:
			if !ok {
				break drain
			}
			switch d.Type {
			case modelclient.DeltaText:
				asm.appendText(d.Text)
				l.publishDelta(session, models.EventTextDelta, d.Text)
			case modelclient.DeltaThinking:
				asm.appendThinking(d.Text)
				l.publishDelta(session, models.EventThinkingDelta, d.Text)
			case modelclient.DeltaToolUseStart:
				asm.startToolUse(d.ToolUseID, d.ToolName)
			case modelclient.DeltaToolUseInput:
				// Partial fragments are not forwarded; FinalInput on
				// tool_use_end carries the complete, valid JSON.
			case modelclient.DeltaToolUseEnd:
				asm.finishToolUse(d.ToolUseID, d.FinalInput)
			case modelclient.DeltaUsage:
				usage.InputTokens += d.InputTokens
				usage.OutputTokens += d.OutputTokens
			case modelclient.DeltaStop:
				stopReason = d.StopReason
				streamErr = d.Err
				break drain
			}
		}
	}

	if l.deps.Metrics != nil {
		l.deps.Metrics.ModelRequestDuration.WithLabelValues(l.deps.Model.Name(), l.config.Model).Observe(time.Since(start).Seconds())
		l.deps.Metrics.ModelRequestCounter.WithLabelValues(l.deps.Model.Name(), l.config.Model, string(stopReason)).Inc()
		l.deps.Metrics.ModelTokensUsed.WithLabelValues(l.deps.Model.Name(), l.config.Model, "input").Add(float64(usage.InputTokens))
		l.deps.Metrics.ModelTokensUsed.WithLabelValues(l.deps.Model.Name(), l.config.Model, "output").Add(float64(usage.OutputTokens))
	}

	asm.flush()
	msg := models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   asm.blocks,
		CreatedAt: time.Now(),
	}

	result := callResult{Message: msg, Usage: usage, StopReason: stopReason}
	if streamErr != nil {
		l.deps.Tracer.RecordError(span, streamErr)
		return result, streamErr
	}
	return result, nil
}

func (l *Loop) publishDelta(session *models.Session, eventType models.EventType, text string) {
	if l.deps.Events == nil {
		return
	}
	l.deps.Events.Publish(session.ID, models.Event{
		Type:      eventType,
		TurnIndex: session.TurnCount,
		Delta:     &models.DeltaPayload{Text: text},
	})
}

// estimateCost resolves pricing via the hook chain first, falling back
// to the built-in table, and returns 0 if neither has an answer for this
// provider/model (spec.md §4.5 step 7: "estimating cost via
// getModelPricing or fallback table").
func (l *Loop) estimateCost(ctx context.Context, provider, model string, usage models.Usage) float64 {
	if pricing, ok := l.deps.Hooks.GetModelPricing(ctx, provider, model); ok {
		return models.ModelPricing{
			InputPerMillion:  pricing.InputPerMillionUSD,
			OutputPerMillion: pricing.OutputPerMillionUSD,
		}.Estimate(usage)
	}
	if p, ok := lookupFallbackPricing(provider, model); ok {
		return models.ModelPricing{
			InputPerMillion:     p.Input,
			OutputPerMillion:    p.Output,
			CacheReadPerMillion: p.CacheRead,
		}.Estimate(usage)
	}
	return 0
}
