package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clinsim/clinsim/pkg/logging"
)

// SessionEvent represents a structured event in the interview lifecycle.
// All events share the same base fields for easy filtering/grep.
type SessionEvent struct {
	Time      string         `json:"time"`
	Event     string         `json:"event"`
	SessionID string         `json:"session_id"`
	CaseID    string         `json:"case_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventLogger emits structured JSON events at each decision point of a
// session. Designed for fast grep/filter debugging:
//
//	grep '"event":"block_revealed"' /var/log/app.log
//	grep '"session_id":"sess_abc"' /var/log/app.log
type EventLogger struct {
	logger *logging.Logger
}

// NewEventLogger creates a new session event logger.
func NewEventLogger(logger *logging.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

// Log emits a structured session event.
func (e *EventLogger) Log(_ context.Context, event, sessionID, caseID string, data map[string]any) {
	if e == nil || e.logger == nil {
		return
	}
	evt := SessionEvent{
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Event:     event,
		SessionID: sessionID,
		CaseID:    caseID,
		Data:      data,
	}
	b, _ := json.Marshal(evt)
	e.logger.Info(string(b))
}

// Convenience methods for common events:

func (e *EventLogger) SessionStarted(ctx context.Context, sessionID, caseID string) {
	e.Log(ctx, "session_started", sessionID, caseID, nil)
}

func (e *EventLogger) QueryReceived(ctx context.Context, sessionID, caseID, clinicalContext, query string) {
	q := query
	if len(q) > 200 {
		q = q[:200] + "..."
	}
	e.Log(ctx, "query_received", sessionID, caseID, map[string]any{
		"context": clinicalContext,
		"query":   q,
	})
}

func (e *EventLogger) IntentClassified(ctx context.Context, sessionID, caseID, intentID string, confidence float64, recognized bool, durationMs int64) {
	e.Log(ctx, "intent_classified", sessionID, caseID, map[string]any{
		"intent_id":   intentID,
		"confidence":  confidence,
		"recognized":  recognized,
		"duration_ms": durationMs,
	})
}

func (e *EventLogger) BlockRevealed(ctx context.Context, sessionID, caseID, blockID, triggerType string, level int) {
	e.Log(ctx, "block_revealed", sessionID, caseID, map[string]any{
		"block_id":     blockID,
		"trigger_type": triggerType,
		"level":        level,
	})
}

func (e *EventLogger) NoMatch(ctx context.Context, sessionID, caseID, intentID, reason string) {
	e.Log(ctx, "no_match", sessionID, caseID, map[string]any{
		"intent_id": intentID,
		"reason":    reason,
	})
}

func (e *EventLogger) ContextMismatch(ctx context.Context, sessionID, caseID, intentID, clinicalContext string) {
	e.Log(ctx, "context_mismatch", sessionID, caseID, map[string]any{
		"intent_id": intentID,
		"context":   clinicalContext,
	})
}

func (e *EventLogger) BiasWarning(ctx context.Context, sessionID, caseID, biasType string, confidence float64) {
	e.Log(ctx, "bias_warning", sessionID, caseID, map[string]any{
		"bias_type":  biasType,
		"confidence": confidence,
	})
}

func (e *EventLogger) GenerationFallback(ctx context.Context, sessionID, caseID, stage string) {
	e.Log(ctx, "generation_fallback", sessionID, caseID, map[string]any{
		"stage": stage,
	})
}

func (e *EventLogger) HypothesisSubmitted(ctx context.Context, sessionID, caseID string, count int) {
	e.Log(ctx, "hypothesis_submitted", sessionID, caseID, map[string]any{
		"hypothesis_count": count,
	})
}

func (e *EventLogger) SessionEnded(ctx context.Context, sessionID, caseID string, interactions, revealed int) {
	e.Log(ctx, "session_ended", sessionID, caseID, map[string]any{
		"interactions": interactions,
		"revealed":     revealed,
	})
}

func (e *EventLogger) InvariantBreach(ctx context.Context, sessionID, caseID, detail string) {
	e.Log(ctx, "invariant_breach", sessionID, caseID, map[string]any{
		"detail": detail,
	})
}
