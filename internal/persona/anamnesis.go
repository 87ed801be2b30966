package persona

import (
	"context"
	"log/slog"
	"time"

	"github.com/clinsim/clinsim/internal/casefile"
	"github.com/clinsim/clinsim/internal/llm"
)

// AnamnesisSon voices the history-taking context as the patient's son. It
// uses an LLM to phrase revealed information conversationally and falls
// back to the raw block contents when generation fails.
type AnamnesisSon struct {
	client  llm.Client
	timeout time.Duration
	logger  *slog.Logger

	// onFallback, when set, is called whenever generation degrades to the
	// deterministic rendering.
	onFallback func()
}

// NewAnamnesisSon creates the anamnesis responder. client may be nil, in
// which case every turn uses the deterministic rendering.
func NewAnamnesisSon(client llm.Client, timeout time.Duration, logger *slog.Logger, onFallback func()) *AnamnesisSon {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AnamnesisSon{client: client, timeout: timeout, logger: logger, onFallback: onFallback}
}

// Render voices the revealed blocks as the patient's son.
func (r *AnamnesisSon) Render(ctx context.Context, query string, blocks []casefile.Block) string {
	if len(blocks) == 0 {
		return r.NoMatch(true)
	}
	if r.client == nil {
		return joinBlockContents(blocks)
	}

	callCtx, cancel := callContext(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Complete(callCtx, llm.Request{
		System:      anamnesisSystemPrompt,
		Prompt:      buildAnamnesisPrompt(query, blocks),
		Temperature: 0.3,
		TopP:        0.9,
		MaxTokens:   300,
	})
	if err != nil {
		r.fallback("render", err)
		return joinBlockContents(blocks)
	}

	text := cleanResponse(resp.Text)
	if text == "" {
		r.fallback("render_empty", nil)
		return joinBlockContents(blocks)
	}
	return text
}

// NoMatch produces the son's reply for a turn that disclosed nothing.
func (r *AnamnesisSon) NoMatch(recognized bool) string {
	if recognized {
		return "I'm not sure I have information about that specifically."
	}
	return "I'm not sure I can answer that particular question, I didn't understand."
}

// NoMatchConversational phrases a no-match turn through the LLM, keeping
// the deterministic wording as fallback.
func (r *AnamnesisSon) NoMatchConversational(ctx context.Context, query string, recognized bool) string {
	if r.client == nil {
		return r.NoMatch(recognized)
	}

	callCtx, cancel := callContext(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Complete(callCtx, llm.Request{
		System:      anamnesisSystemPrompt,
		Prompt:      buildAnamnesisNoMatchPrompt(query, recognized),
		Temperature: 0.3,
		TopP:        0.9,
		MaxTokens:   150,
	})
	if err != nil {
		r.fallback("no_match", err)
		return r.NoMatch(recognized)
	}
	text := cleanResponse(resp.Text)
	if text == "" {
		return r.NoMatch(recognized)
	}
	return text
}

func (r *AnamnesisSon) fallback(stage string, err error) {
	if err != nil {
		r.logger.Warn("anamnesis generation failed, using deterministic rendering",
			"stage", stage, "error", err.Error())
	} else {
		r.logger.Warn("anamnesis generation returned empty text", "stage", stage)
	}
	if r.onFallback != nil {
		r.onFallback()
	}
}
