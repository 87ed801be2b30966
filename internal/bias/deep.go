package bias

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clinsim/clinsim/internal/llm"
	"github.com/clinsim/clinsim/internal/session"
)

// Report is the post-session bias assessment. Source records whether the
// findings came from the LLM analyst or the rule-based fallback.
type Report struct {
	Warnings []Warning `json:"warnings"`
	Source   string    `json:"source"`
}

const (
	ReportSourceLLM   = "llm"
	ReportSourceRules = "rules"
)

const deepAnalysisSystemPrompt = `You are an expert in clinical reasoning and cognitive biases. ` +
	`You review a completed diagnostic interview and identify anchoring bias, confirmation bias ` +
	`and premature closure. Respond with JSON only.`

// DeepAnalyzer produces the end-of-session bias report. When the LLM call
// fails or returns garbage, it degrades to the rule-based detectors so a
// session summary always includes a bias section.
type DeepAnalyzer struct {
	client   llm.Client
	detector *Detector
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDeepAnalyzer creates the post-session analyzer. The LLM call is
// bounded by timeout; hitting it falls back to the rule-based report.
func NewDeepAnalyzer(client llm.Client, detector *Detector, timeout time.Duration, logger *slog.Logger) *DeepAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DeepAnalyzer{client: client, detector: detector, timeout: timeout, logger: logger}
}

// Analyze reviews a finished session.
func (a *DeepAnalyzer) Analyze(ctx context.Context, log []session.Interaction, discoveries []session.Discovery, hypotheses []string, finalDiagnosis string) Report {
	if a.client != nil {
		if report, ok := a.tryLLM(ctx, log, discoveries, hypotheses, finalDiagnosis); ok {
			return report
		}
	}
	return a.ruleReport(log, finalDiagnosis, discoveries)
}

func (a *DeepAnalyzer) tryLLM(ctx context.Context, log []session.Interaction, discoveries []session.Discovery, hypotheses []string, finalDiagnosis string) (Report, bool) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.Complete(callCtx, llm.Request{
		System:      deepAnalysisSystemPrompt,
		Prompt:      buildDeepAnalysisPrompt(log, discoveries, hypotheses, finalDiagnosis),
		Temperature: 0.2,
		TopP:        0.9,
		MaxTokens:   800,
	})
	if err != nil {
		a.logger.Warn("deep bias analysis llm call failed, using rules", "error", err.Error())
		return Report{}, false
	}

	warnings, ok := parseDeepAnalysisOutput(resp.Text)
	if !ok {
		a.logger.Warn("deep bias analysis output unparseable, using rules", "output_len", len(resp.Text))
		return Report{}, false
	}
	return Report{Warnings: warnings, Source: ReportSourceLLM}, true
}

func (a *DeepAnalyzer) ruleReport(log []session.Interaction, finalDiagnosis string, discoveries []session.Discovery) Report {
	warnings := a.detector.Analyze(log)
	if w := a.detector.CheckClosure(log); w != nil {
		warnings = append(warnings, *w)
	}

	// The case may name the diagnosis trainees tend to anchor on and the
	// block that contradicts it. Missing that block while committing to
	// the anchor is the strongest anchoring signal available to rules.
	if trigger := a.detector.cs.BiasTriggers.Anchoring; trigger != nil && finalDiagnosis != "" {
		if matchesAnchor(finalDiagnosis, trigger.AnchorDescription) && !discoveryContains(discoveries, trigger.ContradictoryBlockID) {
			warnings = append(warnings, Warning{
				Type:       TypeAnchoring,
				Message:    "The final diagnosis matches a common anchor for this presentation, and the finding that contradicts it was never uncovered.",
				Confidence: 0.9,
				Details:    map[string]any{"missed_block": trigger.ContradictoryBlockID},
			})
		}
	}
	return Report{Warnings: warnings, Source: ReportSourceRules}
}

func buildDeepAnalysisPrompt(log []session.Interaction, discoveries []session.Discovery, hypotheses []string, finalDiagnosis string) string {
	var sb strings.Builder

	sb.WriteString("Interview transcript (question, intent, outcome):\n")
	for i, it := range log {
		fmt.Fprintf(&sb, "%d. %q -> %s (%s)\n", i+1, it.Query, it.IntentID, it.Outcome)
	}

	sb.WriteString("\nInformation uncovered:\n")
	for _, d := range discoveries {
		fmt.Fprintf(&sb, "- %s\n", d.BlockID)
	}

	if len(hypotheses) > 0 {
		sb.WriteString("\nWorking diagnoses submitted during the interview:\n")
		for _, h := range hypotheses {
			fmt.Fprintf(&sb, "- %s\n", h)
		}
	}
	if finalDiagnosis != "" {
		fmt.Fprintf(&sb, "\nFinal diagnosis: %s\n", finalDiagnosis)
	}

	sb.WriteString("\nIdentify any cognitive biases in this interview. Respond with a JSON array, one object per bias:\n")
	sb.WriteString(`[{"type": "anchoring|confirmation|premature_closure", "message": "<feedback for the trainee>", "confidence": <0.0-1.0>}]` + "\n")
	sb.WriteString("Return [] if no bias is evident.")

	return sb.String()
}

func parseDeepAnalysisOutput(text string) ([]Warning, bool) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, false
	}

	var warnings []Warning
	if err := json.Unmarshal([]byte(text[start:end+1]), &warnings); err != nil {
		return nil, false
	}

	valid := warnings[:0]
	for _, w := range warnings {
		switch w.Type {
		case TypeAnchoring, TypeConfirmation, TypePrematureClosure:
			if w.Confidence < 0 {
				w.Confidence = 0
			}
			if w.Confidence > 1 {
				w.Confidence = 1
			}
			valid = append(valid, w)
		}
	}
	return valid, true
}

func matchesAnchor(diagnosis, anchor string) bool {
	diagnosis = strings.ToLower(diagnosis)
	anchor = strings.ToLower(anchor)
	if anchor == "" {
		return false
	}
	return strings.Contains(diagnosis, anchor) || strings.Contains(anchor, diagnosis)
}

func discoveryContains(discoveries []session.Discovery, blockID string) bool {
	for _, d := range discoveries {
		if d.BlockID == blockID {
			return true
		}
	}
	return false
}
