package engine

import (
	"time"

	"github.com/clinsim/clinsim/internal/bias"
)

// Trigger types recorded when a block is revealed.
const (
	TriggerDirect   = "direct"
	TriggerEscalate = "escalate"
)

// Outcome labels for a processed query, also used as metric label values.
const (
	OutcomeRevealed        = "revealed"
	OutcomeNoMatch         = "no_match"
	OutcomeUnrecognized    = "unrecognized"
	OutcomeContextMismatch = "context_mismatch"
	OutcomeError           = "error"
)

// DiscoveryView is one revealed block as shown to the trainee.
type DiscoveryView struct {
	BlockID    string    `json:"blockId"`
	Label      string    `json:"label"`
	Category   string    `json:"category"`
	Content    string    `json:"content"`
	RevealedAt time.Time `json:"revealedAt,omitempty"`
}

// Response is the rendered persona reply for one turn.
type Response struct {
	Text           string          `json:"text"`
	Discoveries    []DiscoveryView `json:"discoveries"`
	DiscoveryCount int             `json:"discoveryCount"`
	HasDiscoveries bool            `json:"hasDiscoveries"`
}

// QueryResult is the complete outcome of one trainee turn. Err carries the
// sentinel behind Error so callers can map failures with errors.Is.
type QueryResult struct {
	Success      bool           `json:"success"`
	SessionID    string         `json:"sessionId"`
	Query        string         `json:"query"`
	Context      string         `json:"context"`
	IntentID     string         `json:"intentId,omitempty"`
	Confidence   float64        `json:"confidence"`
	Explanation  string         `json:"explanation,omitempty"`
	Recognized   bool           `json:"recognized"`
	Outcome      string         `json:"outcome"`
	TriggerType  string         `json:"triggerType,omitempty"`
	Response     Response       `json:"response"`
	BiasWarnings []bias.Warning `json:"biasWarnings,omitempty"`
	Error        string         `json:"error,omitempty"`
	Err          error          `json:"-"`
}

// HypothesisResult is the outcome of submitting a working diagnosis.
type HypothesisResult struct {
	Success     bool          `json:"success"`
	SessionID   string        `json:"sessionId"`
	Hypotheses  []string      `json:"hypotheses"`
	BiasWarning *bias.Warning `json:"biasWarning,omitempty"`
	Error       string        `json:"error,omitempty"`
	Err         error         `json:"-"`
}

// SessionSummary reports the state of a session, including the evaluation
// against the case's answer key once the session has ended.
type SessionSummary struct {
	SessionID        string          `json:"sessionId"`
	CaseID           string          `json:"caseId"`
	CreatedAt        time.Time       `json:"createdAt"`
	DurationSeconds  float64         `json:"durationSeconds"`
	Ended            bool            `json:"ended"`
	FinalDiagnosis   string          `json:"finalDiagnosis,omitempty"`
	InteractionCount int             `json:"interactionCount"`
	RevealedCount    int             `json:"revealedCount"`
	TotalBlocks      int             `json:"totalBlocks"`
	CriticalFound    int             `json:"criticalFound"`
	CriticalTotal    int             `json:"criticalTotal"`
	Discoveries      []DiscoveryView `json:"discoveries"`
	Hypotheses       []string        `json:"hypotheses,omitempty"`
	BiasSummary      []string        `json:"biasSummary,omitempty"`
	BiasReport       *bias.Report    `json:"biasReport,omitempty"`
}
