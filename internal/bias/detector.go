package bias

import (
	"fmt"

	"github.com/clinsim/clinsim/internal/casefile"
	"github.com/clinsim/clinsim/internal/session"
)

// Bias type labels surfaced to trainees.
const (
	TypeAnchoring        = "anchoring"
	TypeConfirmation     = "confirmation"
	TypePrematureClosure = "premature_closure"
)

// Warning is one detected cognitive bias signal.
type Warning struct {
	Type       string         `json:"type"`
	Message    string         `json:"message"`
	Confidence float64        `json:"confidence"`
	Details    map[string]any `json:"details,omitempty"`
}

// Detector runs rule-based bias checks over a session's interaction log.
// Detectors are pure: they read the log and never mutate session state.
type Detector struct {
	cs *casefile.Case
	th Thresholds
}

// NewDetector creates a detector for one case.
func NewDetector(cs *casefile.Case, th Thresholds) *Detector {
	return &Detector{cs: cs, th: th}
}

// assessmentCategories mark intents that commit to a conclusion
// (diagnosis, treatment plan) rather than gather information.
var assessmentCategories = map[string]struct{}{
	"assessment":   {},
	"diagnosis":    {},
	"differential": {},
	"treatment":    {},
}

// IsAssessmentCategory reports whether an intent category represents a
// conclusion rather than an information-gathering question.
func IsAssessmentCategory(category string) bool {
	_, ok := assessmentCategories[category]
	return ok
}

// Analyze runs the real-time detectors over the turn log and returns every
// warning that currently applies.
func (d *Detector) Analyze(log []session.Interaction) []Warning {
	if len(log) < d.th.MinInteractions {
		return nil
	}

	var warnings []Warning
	if w := d.checkAnchoring(log); w != nil {
		warnings = append(warnings, *w)
	}
	if w := d.checkConfirmation(log); w != nil {
		warnings = append(warnings, *w)
	}

	// A conclusion voiced in the query stream is a commitment point just
	// like an explicit hypothesis submission.
	if last := log[len(log)-1]; IsAssessmentCategory(last.IntentCategory) {
		if w := d.CheckClosure(log[:len(log)-1]); w != nil {
			warnings = append(warnings, *w)
		}
	}
	return warnings
}

// checkAnchoring flags a query pattern fixated on a single intent category.
func (d *Detector) checkAnchoring(log []session.Interaction) *Warning {
	window := tail(log, d.th.AnchorWindow)

	counts := make(map[string]int)
	recognized := 0
	for _, it := range window {
		if it.IntentCategory == "" {
			continue
		}
		counts[it.IntentCategory]++
		recognized++
	}
	if recognized < d.th.MinInteractions {
		return nil
	}

	for category, n := range counts {
		ratio := float64(n) / float64(recognized)
		if ratio > d.th.AnchorRatio {
			return &Warning{
				Type:       TypeAnchoring,
				Message:    fmt.Sprintf("Your recent questions focus heavily on %s. Consider whether other systems could explain the presentation.", category),
				Confidence: ratio,
				Details: map[string]any{
					"category":        category,
					"window_size":     len(window),
					"category_ratio":  ratio,
					"category_count":  n,
					"recognized_size": recognized,
				},
			}
		}
	}
	return nil
}

// checkConfirmation flags repeated pursuit of supporting evidence with no
// attempt to seek refuting evidence. Requires the case to declare a
// confirmation trigger.
func (d *Detector) checkConfirmation(log []session.Interaction) *Warning {
	trigger := d.cs.BiasTriggers.Confirmation
	if trigger == nil {
		return nil
	}

	supporting := toSet(trigger.SupportingBlockIDs)
	refuting := toSet(trigger.RefutingBlockIDs)

	window := tail(log, d.th.ConfirmWindow)
	confirmatory, broader := 0, 0
	for _, it := range window {
		for _, id := range it.BlockIDs {
			if _, ok := supporting[id]; ok {
				confirmatory++
				break
			}
			if _, ok := refuting[id]; ok {
				broader++
				break
			}
		}
	}

	if confirmatory >= d.th.ConfirmMinConfirmatory && broader == 0 {
		return &Warning{
			Type:       TypeConfirmation,
			Message:    "You are gathering evidence that supports a single hypothesis. What findings would argue against it?",
			Confidence: float64(confirmatory) / float64(len(window)),
			Details: map[string]any{
				"confirmatory_turns": confirmatory,
				"window_size":        len(window),
			},
		}
	}
	return nil
}

// CheckClosure evaluates a premature closure signal at the moment the
// trainee commits to an assessment, whether through a hypothesis
// submission or an assessment-category query.
func (d *Detector) CheckClosure(log []session.Interaction) *Warning {
	window := tail(log, d.th.ClosureWindow)

	infoTurns := 0
	for _, it := range window {
		if it.Outcome == session.OutcomeRevealed || it.Outcome == session.OutcomeNoMatch {
			infoTurns++
		}
	}

	if infoTurns >= d.th.ClosureMinInfoTurns {
		return nil
	}
	return &Warning{
		Type:       TypePrematureClosure,
		Message:    "You are committing to a diagnosis after limited information gathering. Is there anything you have not yet explored?",
		Confidence: 1 - float64(infoTurns)/float64(d.th.ClosureMinInfoTurns),
		Details: map[string]any{
			"info_turns":  infoTurns,
			"window_size": len(window),
		},
	}
}

func tail(log []session.Interaction, n int) []session.Interaction {
	if len(log) <= n {
		return log
	}
	return log[len(log)-n:]
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
