package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsim/clinsim/internal/bias"
	"github.com/clinsim/clinsim/internal/casefile"
	"github.com/clinsim/clinsim/internal/engine"
	"github.com/clinsim/clinsim/internal/http/handlers"
	"github.com/clinsim/clinsim/internal/intent"
	"github.com/clinsim/clinsim/internal/persona"
	"github.com/clinsim/clinsim/internal/session"
	"github.com/clinsim/clinsim/pkg/logging"
)

type fixedClassifier struct {
	table map[string]string
}

func (f *fixedClassifier) Classify(_ context.Context, query string, _ casefile.Context) intent.Classification {
	if id, ok := f.table[query]; ok {
		return intent.Classification{IntentID: id, Confidence: 0.9, Recognized: true, Query: query}
	}
	return intent.Classification{IntentID: intent.FallbackIntentID, Recognized: false, Query: query}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cs, err := casefile.ParseJSON([]byte(`{
		"caseId": "case_http",
		"title": "Dyspnea",
		"informationBlocks": [
			{"blockId": "hpi_onset", "label": "Onset", "category": "history", "content": "Started two days ago."}
		],
		"intents": [
			{"intentId": "ask_onset", "description": "asks about onset", "category": "history", "contexts": ["anamnesis"]}
		],
		"intentBlockMappings": {"ask_onset": ["hpi_onset"]}
	}`))
	require.NoError(t, err)

	logger := logging.New("error")
	personas := persona.NewRegistry(
		persona.NewAnamnesisSon(nil, 0, nil, nil),
		persona.NewExamObjective(),
		persona.NewLabsResident(nil, 0, nil, nil),
	)
	eng := engine.New(
		cs,
		session.NewStore(),
		&fixedClassifier{table: map[string]string{"When did it start?": "ask_onset"}},
		personas,
		bias.NewDetector(cs, bias.DefaultThresholds()),
		nil,
		engine.NewEventLogger(logger),
		nil,
		logger,
	)

	handler := New(&Config{
		Logger:         logger,
		SessionHandler: handlers.NewSessionHandler(eng, logger),
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createSession(t *testing.T, srv *httptest.Server) string {
	resp := postJSON(t, srv.URL+"/api/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	return body["sessionId"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "case_http", body["case"])
}

func TestSessionQueryFlow(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	resp := postJSON(t, srv.URL+"/api/sessions/"+id+"/query", map[string]string{
		"query":   "When did it start?",
		"context": "anamnesis",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[engine.QueryResult](t, resp)

	assert.True(t, result.Success)
	assert.Equal(t, engine.OutcomeRevealed, result.Outcome)
	require.Len(t, result.Response.Discoveries, 1)
	assert.Equal(t, "hpi_onset", result.Response.Discoveries[0].BlockID)

	// Same question again discloses nothing.
	resp = postJSON(t, srv.URL+"/api/sessions/"+id+"/query", map[string]string{
		"query":   "When did it start?",
		"context": "anamnesis",
	})
	result = decode[engine.QueryResult](t, resp)
	assert.Equal(t, engine.OutcomeNoMatch, result.Outcome)
	assert.False(t, result.Response.HasDiscoveries)
}

func TestQueryValidation(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	resp := postJSON(t, srv.URL+"/api/sessions/"+id+"/query", map[string]string{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/sessions/"+id+"/query", map[string]string{
		"query":   "hello",
		"context": "surgery",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/sessions/unknown/query", map[string]string{
		"query":   "hello",
		"context": "anamnesis",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestDiagnosisAndSummaryFlow(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	postJSON(t, srv.URL+"/api/sessions/"+id+"/query", map[string]string{
		"query":   "When did it start?",
		"context": "anamnesis",
	}).Body.Close()

	resp := postJSON(t, srv.URL+"/api/sessions/"+id+"/diagnosis", map[string]any{
		"diagnosis": "pneumonia",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	hyp := decode[engine.HypothesisResult](t, resp)
	assert.Equal(t, []string{"pneumonia"}, hyp.Hypotheses)

	resp = postJSON(t, srv.URL+"/api/sessions/"+id+"/diagnosis", map[string]any{
		"diagnosis": "pulmonary embolism",
		"final":     true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[engine.SessionSummary](t, resp)
	assert.True(t, summary.Ended)
	assert.Equal(t, "pulmonary embolism", summary.FinalDiagnosis)
	assert.Equal(t, 1, summary.RevealedCount)

	// Ending twice conflicts.
	resp = postJSON(t, srv.URL+"/api/sessions/"+id+"/diagnosis", map[string]any{
		"diagnosis": "again",
		"final":     true,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// So does querying the ended session.
	resp = postJSON(t, srv.URL+"/api/sessions/"+id+"/query", map[string]string{
		"query":   "When did it start?",
		"context": "anamnesis",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestDiscoveriesAndDelete(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	postJSON(t, srv.URL+"/api/sessions/"+id+"/query", map[string]string{
		"query":   "When did it start?",
		"context": "anamnesis",
	}).Body.Close()

	resp, err := http.Get(srv.URL + "/api/sessions/" + id + "/discoveries")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.EqualValues(t, 1, body["count"])

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+id+"/", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
	delResp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/sessions/" + id + "/summary")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
