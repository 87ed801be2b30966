package engine

import (
	"context"
	"errors"
	"time"

	"github.com/clinsim/clinsim/internal/bias"
	"github.com/clinsim/clinsim/internal/casefile"
	"github.com/clinsim/clinsim/internal/intent"
	"github.com/clinsim/clinsim/internal/observability/metrics"
	"github.com/clinsim/clinsim/internal/persona"
	"github.com/clinsim/clinsim/internal/session"
	"github.com/clinsim/clinsim/pkg/logging"
)

// IntentClassifier maps a trainee query to an intent in a clinical context.
type IntentClassifier interface {
	Classify(ctx context.Context, query string, clinicalCtx casefile.Context) intent.Classification
}

// BiasAnalyzer produces the post-session bias report.
type BiasAnalyzer interface {
	Analyze(ctx context.Context, log []session.Interaction, discoveries []session.Discovery, hypotheses []string, finalDiagnosis string) bias.Report
}

// Engine orchestrates a trainee turn: classify the query, resolve which
// block it discloses, mutate the session, render the persona reply and run
// the real-time bias checks. One engine serves one loaded case.
type Engine struct {
	cs         *casefile.Case
	store      *session.Store
	classifier IntentClassifier
	personas   *persona.Registry
	detector   *bias.Detector
	analyzer   BiasAnalyzer
	events     *EventLogger
	metrics    *metrics.EngineMetrics
	logger     *logging.Logger
}

// New creates the engine. metrics and analyzer may be nil.
func New(
	cs *casefile.Case,
	store *session.Store,
	classifier IntentClassifier,
	personas *persona.Registry,
	detector *bias.Detector,
	analyzer BiasAnalyzer,
	events *EventLogger,
	m *metrics.EngineMetrics,
	logger *logging.Logger,
) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		cs:         cs,
		store:      store,
		classifier: classifier,
		personas:   personas,
		detector:   detector,
		analyzer:   analyzer,
		events:     events,
		metrics:    m,
		logger:     logger,
	}
}

// Case returns the loaded case definition.
func (e *Engine) Case() *casefile.Case { return e.cs }

// StartSession begins a new interview over the engine's case.
func (e *Engine) StartSession(ctx context.Context) *session.Session {
	s := e.store.Create(e.cs.ID)
	e.events.SessionStarted(ctx, s.ID, e.cs.ID)
	e.metrics.ObserveSessionStarted()
	return s
}

// ProcessQuery handles one trainee turn. It never returns a Go error:
// failures are reported in the result so the interview can continue.
func (e *Engine) ProcessQuery(ctx context.Context, sessionID string, clinicalCtx casefile.Context, query string) QueryResult {
	result := QueryResult{
		SessionID: sessionID,
		Query:     query,
		Context:   string(clinicalCtx),
	}

	s, err := e.store.Get(sessionID)
	if err != nil {
		result.Outcome = OutcomeError
		result.Error = "session not found"
		result.Err = err
		e.metrics.ObserveQuery(string(clinicalCtx), OutcomeError)
		return result
	}
	if s.Ended() {
		result.Outcome = OutcomeError
		result.Error = "session has ended"
		result.Err = session.ErrEnded
		e.metrics.ObserveQuery(string(clinicalCtx), OutcomeError)
		return result
	}

	responder, ok := e.personas.For(clinicalCtx)
	if !ok {
		result.Outcome = OutcomeError
		result.Error = "unknown clinical context"
		e.metrics.ObserveQuery(string(clinicalCtx), OutcomeError)
		return result
	}

	s.LockTurn()
	defer s.UnlockTurn()

	e.events.QueryReceived(ctx, s.ID, e.cs.ID, string(clinicalCtx), query)

	start := time.Now()
	cls := e.classifier.Classify(ctx, query, clinicalCtx)
	latency := time.Since(start)
	e.metrics.ObserveClassificationLatency(string(clinicalCtx), latency.Seconds())
	e.events.IntentClassified(ctx, s.ID, e.cs.ID, cls.IntentID, cls.Confidence, cls.Recognized, latency.Milliseconds())

	result.IntentID = cls.IntentID
	result.Confidence = cls.Confidence
	result.Explanation = cls.Explanation
	result.Recognized = cls.Recognized
	result.Success = true

	if !cls.Recognized {
		result.Outcome = OutcomeUnrecognized
		result.Response = e.noMatchResponse(ctx, responder, query, false)
		e.finishTurn(ctx, s, clinicalCtx, cls, &result, nil)
		return result
	}

	in, found := e.cs.Intent(cls.IntentID)
	if !found {
		// The classifier restricts itself to the taxonomy; reaching this
		// point means the case changed underneath us.
		e.events.InvariantBreach(ctx, s.ID, e.cs.ID, "classified intent missing from case: "+cls.IntentID)
		result.Outcome = OutcomeNoMatch
		result.Response = e.noMatchResponse(ctx, responder, query, true)
		e.finishTurn(ctx, s, clinicalCtx, cls, &result, nil)
		return result
	}

	if !in.ValidIn(clinicalCtx) {
		e.events.ContextMismatch(ctx, s.ID, e.cs.ID, cls.IntentID, string(clinicalCtx))
		result.Outcome = OutcomeContextMismatch
		result.Response = Response{Text: persona.MismatchReply(clinicalCtx)}
		e.finishTurn(ctx, s, clinicalCtx, cls, &result, nil)
		return result
	}

	block, trigger, found := resolve(e.cs, s, cls.IntentID)
	if !found {
		e.events.NoMatch(ctx, s.ID, e.cs.ID, cls.IntentID, "no revealable block")
		result.Outcome = OutcomeNoMatch
		result.Response = e.noMatchResponse(ctx, responder, query, true)
		e.finishTurn(ctx, s, clinicalCtx, cls, &result, nil)
		return result
	}

	// Resolution was computed without mutation; the reveal is the single
	// state change of the turn.
	if err := s.Reveal(block, query); err != nil {
		if errors.Is(err, session.ErrPrerequisites) || errors.Is(err, session.ErrAlreadyRevealed) {
			e.events.InvariantBreach(ctx, s.ID, e.cs.ID, "reveal rejected after resolution: "+err.Error())
			result.Outcome = OutcomeNoMatch
			result.Response = e.noMatchResponse(ctx, responder, query, true)
			e.finishTurn(ctx, s, clinicalCtx, cls, &result, nil)
			return result
		}
		result.Success = false
		result.Outcome = OutcomeError
		result.Error = err.Error()
		result.Err = err
		e.metrics.ObserveQuery(string(clinicalCtx), OutcomeError)
		return result
	}

	e.events.BlockRevealed(ctx, s.ID, e.cs.ID, block.ID, trigger, block.Level)
	e.metrics.ObserveReveal(trigger)

	result.Outcome = OutcomeRevealed
	result.TriggerType = trigger
	text := responder.Render(ctx, query, []casefile.Block{block})
	result.Response = Response{
		Text: text,
		Discoveries: []DiscoveryView{{
			BlockID:  block.ID,
			Label:    block.Label,
			Category: block.Category,
			Content:  block.Content,
		}},
		DiscoveryCount: 1,
		HasDiscoveries: true,
	}

	e.finishTurn(ctx, s, clinicalCtx, cls, &result, []string{block.ID})
	return result
}

// noMatchResponse phrases an empty-handed turn in the persona voice. The
// anamnesis persona gets a conversational LLM phrasing; others use their
// fixed wording.
func (e *Engine) noMatchResponse(ctx context.Context, responder persona.Responder, query string, recognized bool) Response {
	if son, ok := responder.(*persona.AnamnesisSon); ok {
		return Response{Text: son.NoMatchConversational(ctx, query, recognized)}
	}
	return Response{Text: responder.NoMatch(recognized)}
}

// finishTurn appends the interaction and runs the real-time bias checks.
func (e *Engine) finishTurn(ctx context.Context, s *session.Session, clinicalCtx casefile.Context, cls intent.Classification, result *QueryResult, blockIDs []string) {
	var category string
	if in, ok := e.cs.Intent(cls.IntentID); ok && cls.Recognized {
		category = in.Category
	}

	s.AppendInteraction(session.Interaction{
		Query:          cls.Query,
		Context:        clinicalCtx,
		IntentID:       cls.IntentID,
		IntentCategory: category,
		Confidence:     cls.Confidence,
		Outcome:        turnOutcome(result.Outcome),
		BlockIDs:       blockIDs,
	})
	e.metrics.ObserveQuery(string(clinicalCtx), result.Outcome)

	for _, w := range e.detector.Analyze(s.Interactions()) {
		if !s.MarkBiasReported(w.Type) {
			continue
		}
		e.events.BiasWarning(ctx, s.ID, e.cs.ID, w.Type, w.Confidence)
		e.metrics.ObserveBiasWarning(w.Type)
		result.BiasWarnings = append(result.BiasWarnings, w)
	}
}

func turnOutcome(outcome string) session.Outcome {
	switch outcome {
	case OutcomeRevealed:
		return session.OutcomeRevealed
	case OutcomeUnrecognized:
		return session.OutcomeUnrecognized
	default:
		return session.OutcomeNoMatch
	}
}

// SubmitHypothesis records a working diagnosis and checks for premature
// closure at the moment of commitment.
func (e *Engine) SubmitHypothesis(ctx context.Context, sessionID, text string) HypothesisResult {
	result := HypothesisResult{SessionID: sessionID}

	s, err := e.store.Get(sessionID)
	if err != nil {
		result.Error = "session not found"
		result.Err = err
		return result
	}
	if err := s.SubmitHypothesis(text); err != nil {
		result.Error = err.Error()
		result.Err = err
		return result
	}

	result.Success = true
	result.Hypotheses = s.Hypotheses()
	e.events.HypothesisSubmitted(ctx, s.ID, e.cs.ID, len(result.Hypotheses))

	if w := e.detector.CheckClosure(s.Interactions()); w != nil && s.MarkBiasReported(w.Type) {
		e.events.BiasWarning(ctx, s.ID, e.cs.ID, w.Type, w.Confidence)
		e.metrics.ObserveBiasWarning(w.Type)
		result.BiasWarning = w
	}
	return result
}

// EndSession closes a session with a final diagnosis and returns the full
// summary including the post-session bias report.
func (e *Engine) EndSession(ctx context.Context, sessionID, finalDiagnosis string) (SessionSummary, error) {
	s, err := e.store.Get(sessionID)
	if err != nil {
		return SessionSummary{}, err
	}
	if err := s.End(finalDiagnosis); err != nil {
		return SessionSummary{}, err
	}

	e.events.SessionEnded(ctx, s.ID, e.cs.ID, s.InteractionCount(), s.RevealedCount())
	e.metrics.ObserveSessionEnded()

	summary := e.summarize(s)
	if e.analyzer != nil {
		report := e.analyzer.Analyze(ctx, s.Interactions(), s.Discoveries(), s.Hypotheses(), finalDiagnosis)
		summary.BiasReport = &report
	}
	return summary, nil
}

// Summary reports the current state of a session.
func (e *Engine) Summary(sessionID string) (SessionSummary, error) {
	s, err := e.store.Get(sessionID)
	if err != nil {
		return SessionSummary{}, err
	}
	return e.summarize(s), nil
}

// Discoveries lists everything revealed so far, in reveal order.
func (e *Engine) Discoveries(sessionID string) ([]DiscoveryView, error) {
	s, err := e.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return e.discoveryViews(s), nil
}

// DeleteSession removes a session from the store.
func (e *Engine) DeleteSession(sessionID string) error {
	return e.store.Delete(sessionID)
}

func (e *Engine) summarize(s *session.Session) SessionSummary {
	discoveries := e.discoveryViews(s)

	criticalTotal := 0
	criticalFound := 0
	for _, b := range e.cs.Blocks {
		if !b.IsCritical {
			continue
		}
		criticalTotal++
		if s.IsRevealed(b.ID) {
			criticalFound++
		}
	}

	duration := time.Since(s.CreatedAt)
	if endedAt := s.EndedAt(); !endedAt.IsZero() {
		duration = endedAt.Sub(s.CreatedAt)
	}

	return SessionSummary{
		SessionID:        s.ID,
		CaseID:           s.CaseID,
		CreatedAt:        s.CreatedAt,
		DurationSeconds:  duration.Seconds(),
		Ended:            s.Ended(),
		FinalDiagnosis:   s.FinalDiagnosis(),
		InteractionCount: s.InteractionCount(),
		RevealedCount:    s.RevealedCount(),
		TotalBlocks:      len(e.cs.Blocks),
		CriticalFound:    criticalFound,
		CriticalTotal:    criticalTotal,
		Discoveries:      discoveries,
		Hypotheses:       s.Hypotheses(),
		BiasSummary:      s.ReportedBiases(),
	}
}

func (e *Engine) discoveryViews(s *session.Session) []DiscoveryView {
	revealed := s.Discoveries()
	views := make([]DiscoveryView, 0, len(revealed))
	for _, d := range revealed {
		view := DiscoveryView{BlockID: d.BlockID, RevealedAt: d.RevealedAt}
		if b, ok := e.cs.Block(d.BlockID); ok {
			view.Label = b.Label
			view.Category = b.Category
			view.Content = b.Content
		}
		views = append(views, view)
	}
	return views
}
