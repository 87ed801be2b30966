package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsim/clinsim/internal/bias"
	"github.com/clinsim/clinsim/internal/casefile"
	"github.com/clinsim/clinsim/internal/intent"
	"github.com/clinsim/clinsim/internal/persona"
	"github.com/clinsim/clinsim/internal/session"
	"github.com/clinsim/clinsim/pkg/logging"
)

// mapClassifier resolves queries from a fixed table, standing in for the
// LLM classifier.
type mapClassifier struct {
	intents map[string]string
	conf    float64
}

func (m *mapClassifier) Classify(_ context.Context, query string, _ casefile.Context) intent.Classification {
	id, ok := m.intents[query]
	if !ok {
		return intent.Classification{
			IntentID:   intent.FallbackIntentID,
			Recognized: false,
			Query:      query,
		}
	}
	conf := m.conf
	if conf == 0 {
		conf = 0.9
	}
	return intent.Classification{
		IntentID:    id,
		Confidence:  conf,
		Explanation: "matched fixture table",
		Recognized:  true,
		Query:       query,
	}
}

const engineCase = `{
	"caseId": "case_engine",
	"informationBlocks": [
		{"blockId": "fever_l1", "label": "Fever L1", "category": "infectious", "content": "No fever at home.", "groupId": "grp_fever", "level": 1},
		{"blockId": "fever_l2", "label": "Fever L2", "category": "infectious", "content": "No chills either.", "groupId": "grp_fever", "level": 2},
		{"blockId": "fever_l3", "label": "Fever L3", "category": "infectious", "content": "Temperature was normal yesterday.", "groupId": "grp_fever", "level": 3},
		{"blockId": "chest_pain_absent", "label": "Chest pain", "category": "cardiovascular", "content": "She denies chest pain."},
		{"blockId": "cardio_a", "label": "Cardio A", "category": "cardiovascular", "content": "No palpitations."},
		{"blockId": "cardio_b", "label": "Cardio B", "category": "cardiovascular", "content": "No leg swelling."},
		{"blockId": "cardio_c", "label": "Cardio C", "category": "cardiovascular", "content": "No orthopnea."},
		{"blockId": "cardio_d", "label": "Cardio D", "category": "cardiovascular", "content": "No syncope."},
		{"blockId": "vitals", "label": "Vitals", "category": "exam", "content": "HR 112, SpO2 89% on room air."},
		{"blockId": "ecg_critical", "label": "ECG", "category": "cardiovascular", "content": "S1Q3T3 pattern.", "prerequisites": ["vitals"], "isCritical": true},
		{"blockId": "ecg_note", "label": "ECG note", "category": "cardiovascular", "content": "Old tracing on file unremarkable."}
	],
	"intents": [
		{"intentId": "ask_fever", "description": "asks about fever", "category": "infectious", "contexts": ["anamnesis"]},
		{"intentId": "ask_chest_pain", "description": "asks about chest pain", "category": "cardiovascular", "contexts": ["anamnesis"]},
		{"intentId": "ask_palpitations", "description": "asks about palpitations", "category": "cardiovascular", "contexts": ["anamnesis"]},
		{"intentId": "ask_edema", "description": "asks about leg swelling", "category": "cardiovascular", "contexts": ["anamnesis"]},
		{"intentId": "ask_orthopnea", "description": "asks about orthopnea", "category": "cardiovascular", "contexts": ["anamnesis"]},
		{"intentId": "ask_syncope", "description": "asks about fainting", "category": "cardiovascular", "contexts": ["anamnesis"]},
		{"intentId": "check_vitals", "description": "checks vital signs", "category": "exam", "contexts": ["exam"]},
		{"intentId": "order_ecg", "description": "orders an ECG", "category": "cardiovascular", "contexts": ["labs"]},
		{"intentId": "state_assessment", "description": "states a working diagnosis", "category": "assessment", "contexts": ["anamnesis"]}
	],
	"intentBlockMappings": {
		"ask_fever": ["grp_fever"],
		"ask_chest_pain": ["chest_pain_absent"],
		"ask_palpitations": ["cardio_a"],
		"ask_edema": ["cardio_b"],
		"ask_orthopnea": ["cardio_c"],
		"ask_syncope": ["cardio_d"],
		"check_vitals": ["vitals"],
		"order_ecg": ["ecg_note", "ecg_critical"]
	},
	"groundTruth": {"finalDiagnosis": "pulmonary embolism", "criticalFindingIds": ["ecg_critical"]}
}`

func newTestEngine(t *testing.T, clf IntentClassifier) *Engine {
	t.Helper()
	cs, err := casefile.ParseJSON([]byte(engineCase))
	require.NoError(t, err)

	personas := persona.NewRegistry(
		persona.NewAnamnesisSon(nil, 0, nil, nil),
		persona.NewExamObjective(),
		persona.NewLabsResident(nil, 0, nil, nil),
	)
	detector := bias.NewDetector(cs, bias.DefaultThresholds())
	events := NewEventLogger(logging.New("error"))

	return New(cs, session.NewStore(), clf, personas, detector, nil, events, nil, logging.New("error"))
}

func defaultClassifier() *mapClassifier {
	return &mapClassifier{intents: map[string]string{
		"Any fever?":          "ask_fever",
		"Any chest pain?":     "ask_chest_pain",
		"Palpitations?":       "ask_palpitations",
		"Leg swelling?":       "ask_edema",
		"Trouble lying flat?": "ask_orthopnea",
		"Any fainting?":       "ask_syncope",
		"Check her vitals":    "check_vitals",
		"Get an ECG":          "order_ecg",
		"I think this is heart failure": "state_assessment",
	}}
}

func TestProcessQueryRevealsAndLogs(t *testing.T) {
	e := newTestEngine(t, defaultClassifier())
	s := e.StartSession(context.Background())

	got := e.ProcessQuery(context.Background(), s.ID, casefile.ContextAnamnesis, "Any fever?")
	require.True(t, got.Success)
	assert.Equal(t, OutcomeRevealed, got.Outcome)
	assert.Equal(t, TriggerEscalate, got.TriggerType)
	assert.Equal(t, "matched fixture table", got.Explanation)
	require.Len(t, got.Response.Discoveries, 1)
	assert.Equal(t, "fever_l1", got.Response.Discoveries[0].BlockID)
	assert.True(t, got.Response.HasDiscoveries)
	assert.Equal(t, "No fever at home.", got.Response.Text)

	got = e.ProcessQuery(context.Background(), s.ID, casefile.ContextAnamnesis, "Any chest pain?")
	require.True(t, got.Success)
	assert.Equal(t, TriggerDirect, got.TriggerType)
	assert.Equal(t, "chest_pain_absent", got.Response.Discoveries[0].BlockID)

	assert.Equal(t, 2, s.InteractionCount())
	assert.Equal(t, 2, s.RevealedCount())
}

func TestEscalationWalksLevelsThenExhausts(t *testing.T) {
	e := newTestEngine(t, defaultClassifier())
	s := e.StartSession(context.Background())
	ctx := context.Background()

	want := []string{"fever_l1", "fever_l2", "fever_l3"}
	for _, id := range want {
		got := e.ProcessQuery(ctx, s.ID, casefile.ContextAnamnesis, "Any fever?")
		require.Equal(t, OutcomeRevealed, got.Outcome)
		assert.Equal(t, id, got.Response.Discoveries[0].BlockID)
		assert.Equal(t, TriggerEscalate, got.TriggerType)
	}

	// Group is exhausted: further asks disclose nothing, repeatedly.
	for i := 0; i < 2; i++ {
		got := e.ProcessQuery(ctx, s.ID, casefile.ContextAnamnesis, "Any fever?")
		assert.Equal(t, OutcomeNoMatch, got.Outcome)
		assert.False(t, got.Response.HasDiscoveries)
		assert.Equal(t, "I'm not sure I have information about that specifically.", got.Response.Text)
	}
	assert.Equal(t, 3, s.RevealedCount())
}

func TestPrerequisiteGatesCriticalBlock(t *testing.T) {
	e := newTestEngine(t, defaultClassifier())
	s := e.StartSession(context.Background())
	ctx := context.Background()

	// The critical ECG needs vitals first, so the intent resolves to the
	// unremarkable note instead.
	got := e.ProcessQuery(ctx, s.ID, casefile.ContextLabs, "Get an ECG")
	require.Equal(t, OutcomeRevealed, got.Outcome)
	assert.Equal(t, "ecg_note", got.Response.Discoveries[0].BlockID)

	got = e.ProcessQuery(ctx, s.ID, casefile.ContextExam, "Check her vitals")
	require.Equal(t, OutcomeRevealed, got.Outcome)

	// With vitals revealed the critical block is eligible and preferred.
	got = e.ProcessQuery(ctx, s.ID, casefile.ContextLabs, "Get an ECG")
	require.Equal(t, OutcomeRevealed, got.Outcome)
	assert.Equal(t, "ecg_critical", got.Response.Discoveries[0].BlockID)
}

func TestCriticalBlockWinsWhenEligible(t *testing.T) {
	e := newTestEngine(t, defaultClassifier())
	s := e.StartSession(context.Background())
	ctx := context.Background()

	e.ProcessQuery(ctx, s.ID, casefile.ContextExam, "Check her vitals")

	got := e.ProcessQuery(ctx, s.ID, casefile.ContextLabs, "Get an ECG")
	require.Equal(t, OutcomeRevealed, got.Outcome)
	assert.Equal(t, "ecg_critical", got.Response.Discoveries[0].BlockID,
		"critical blocks outrank earlier-declared candidates")
}

func TestUnrecognizedQueryAsksForClarification(t *testing.T) {
	e := newTestEngine(t, defaultClassifier())
	s := e.StartSession(context.Background())

	got := e.ProcessQuery(context.Background(), s.ID, casefile.ContextAnamnesis, "wibble wobble")
	require.True(t, got.Success)
	assert.Equal(t, OutcomeUnrecognized, got.Outcome)
	assert.False(t, got.Recognized)
	assert.Zero(t, got.Confidence)
	assert.Equal(t, "I'm not sure I can answer that particular question, I didn't understand.", got.Response.Text)
	assert.Equal(t, 1, s.InteractionCount())
	assert.Zero(t, s.RevealedCount())
}

func TestContextMismatchRedirects(t *testing.T) {
	clf := &mapClassifier{intents: map[string]string{"Get an ECG": "order_ecg"}}
	e := newTestEngine(t, clf)
	s := e.StartSession(context.Background())

	got := e.ProcessQuery(context.Background(), s.ID, casefile.ContextExam, "Get an ECG")
	require.True(t, got.Success)
	assert.Equal(t, OutcomeContextMismatch, got.Outcome)
	assert.Contains(t, got.Response.Text, "physical examination")
	assert.Zero(t, s.RevealedCount())
}

func TestUnknownSessionFails(t *testing.T) {
	e := newTestEngine(t, defaultClassifier())

	got := e.ProcessQuery(context.Background(), "nope", casefile.ContextAnamnesis, "Any fever?")
	assert.False(t, got.Success)
	assert.Equal(t, "session not found", got.Error)
	assert.ErrorIs(t, got.Err, session.ErrSessionNotFound)
}

func TestQueryAfterEndRejected(t *testing.T) {
	e := newTestEngine(t, defaultClassifier())
	s := e.StartSession(context.Background())

	_, err := e.EndSession(context.Background(), s.ID, "pulmonary embolism")
	require.NoError(t, err)

	got := e.ProcessQuery(context.Background(), s.ID, casefile.ContextAnamnesis, "Any fever?")
	assert.False(t, got.Success)
	assert.Equal(t, "session has ended", got.Error)
	assert.ErrorIs(t, got.Err, session.ErrEnded)
}

func TestAnchoringWarningOnCardioFixation(t *testing.T) {
	e := newTestEngine(t, defaultClassifier())
	s := e.StartSession(context.Background())
	ctx := context.Background()

	queries := []string{"Any chest pain?", "Palpitations?", "Leg swelling?", "Trouble lying flat?", "Any fainting?"}
	var warned []bias.Warning
	for _, q := range queries {
		got := e.ProcessQuery(ctx, s.ID, casefile.ContextAnamnesis, q)
		warned = append(warned, got.BiasWarnings...)
	}

	require.NotEmpty(t, warned, "sustained cardiovascular questioning should trigger anchoring")
	assert.Equal(t, bias.TypeAnchoring, warned[0].Type)

	// The same warning type is not repeated on later turns.
	got := e.ProcessQuery(ctx, s.ID, casefile.ContextAnamnesis, "Any fainting?")
	for _, w := range got.BiasWarnings {
		assert.NotEqual(t, bias.TypeAnchoring, w.Type)
	}

	// The live summary records the reported bias types.
	summary, err := e.Summary(s.ID)
	require.NoError(t, err)
	assert.Contains(t, summary.BiasSummary, bias.TypeAnchoring)
}

func TestAssessmentQueryFlagsPrematureClosure(t *testing.T) {
	e := newTestEngine(t, defaultClassifier())
	s := e.StartSession(context.Background())
	ctx := context.Background()

	e.ProcessQuery(ctx, s.ID, casefile.ContextAnamnesis, "Any fever?")
	e.ProcessQuery(ctx, s.ID, casefile.ContextAnamnesis, "Any chest pain?")

	// A conclusion voiced in the query stream after two questions is a
	// commitment point with a thin workup behind it.
	got := e.ProcessQuery(ctx, s.ID, casefile.ContextAnamnesis, "I think this is heart failure")
	require.True(t, got.Success)

	types := make([]string, 0, len(got.BiasWarnings))
	for _, w := range got.BiasWarnings {
		types = append(types, w.Type)
	}
	assert.Contains(t, types, bias.TypePrematureClosure)
}

func TestSubmitHypothesisFlagsPrematureClosure(t *testing.T) {
	e := newTestEngine(t, defaultClassifier())
	s := e.StartSession(context.Background())
	ctx := context.Background()

	e.ProcessQuery(ctx, s.ID, casefile.ContextAnamnesis, "Any fever?")

	got := e.SubmitHypothesis(ctx, s.ID, "viral illness")
	require.True(t, got.Success)
	assert.Equal(t, []string{"viral illness"}, got.Hypotheses)
	require.NotNil(t, got.BiasWarning)
	assert.Equal(t, bias.TypePrematureClosure, got.BiasWarning.Type)

	// Warned once, not again.
	got = e.SubmitHypothesis(ctx, s.ID, "pneumonia")
	require.True(t, got.Success)
	assert.Nil(t, got.BiasWarning)
}

func TestEndSessionSummary(t *testing.T) {
	e := newTestEngine(t, defaultClassifier())
	s := e.StartSession(context.Background())
	ctx := context.Background()

	e.ProcessQuery(ctx, s.ID, casefile.ContextExam, "Check her vitals")
	e.ProcessQuery(ctx, s.ID, casefile.ContextLabs, "Get an ECG")

	summary, err := e.EndSession(ctx, s.ID, "pulmonary embolism")
	require.NoError(t, err)

	assert.True(t, summary.Ended)
	assert.Equal(t, "pulmonary embolism", summary.FinalDiagnosis)
	assert.Equal(t, 2, summary.InteractionCount)
	assert.Equal(t, 2, summary.RevealedCount)
	assert.Equal(t, 1, summary.CriticalFound)
	assert.Equal(t, 1, summary.CriticalTotal)
	require.Len(t, summary.Discoveries, 2)
	assert.Equal(t, "vitals", summary.Discoveries[0].BlockID, "discoveries are in reveal order")

	_, err = e.EndSession(ctx, s.ID, "again")
	assert.ErrorIs(t, err, session.ErrEnded)
}

func TestDiscoveriesEndpointData(t *testing.T) {
	e := newTestEngine(t, defaultClassifier())
	s := e.StartSession(context.Background())
	ctx := context.Background()

	e.ProcessQuery(ctx, s.ID, casefile.ContextAnamnesis, "Any fever?")

	views, err := e.Discoveries(s.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "fever_l1", views[0].BlockID)
	assert.Equal(t, "No fever at home.", views[0].Content)

	require.NoError(t, e.DeleteSession(s.ID))
	_, err = e.Discoveries(s.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}
