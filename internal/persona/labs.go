package persona

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/clinsim/clinsim/internal/casefile"
	"github.com/clinsim/clinsim/internal/llm"
)

// LabsResident voices laboratory and imaging results as the on-call
// resident reporting to the attending. It phrases results through an LLM
// and falls back to reading them back as written when generation fails.
type LabsResident struct {
	client     llm.Client
	timeout    time.Duration
	logger     *slog.Logger
	onFallback func()
}

// NewLabsResident creates the labs responder. client may be nil, in which
// case results are always reported as written.
func NewLabsResident(client llm.Client, timeout time.Duration, logger *slog.Logger, onFallback func()) *LabsResident {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LabsResident{client: client, timeout: timeout, logger: logger, onFallback: onFallback}
}

// Render voices the results as the resident.
func (r *LabsResident) Render(ctx context.Context, query string, blocks []casefile.Block) string {
	if len(blocks) == 0 {
		return r.NoMatch(true)
	}
	if r.client == nil {
		return reportResults(blocks)
	}

	callCtx, cancel := callContext(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Complete(callCtx, llm.Request{
		System:      residentSystemPrompt,
		Prompt:      buildResidentPrompt(query, blocks),
		Temperature: 0.3,
		TopP:        0.9,
		MaxTokens:   300,
	})
	if err != nil {
		r.fallback(err)
		return reportResults(blocks)
	}

	text := cleanResponse(resp.Text)
	if text == "" {
		r.fallback(nil)
		return reportResults(blocks)
	}
	return text
}

// NoMatch states that the requested study has no result in this case.
func (r *LabsResident) NoMatch(recognized bool) string {
	if recognized {
		return "That test hasn't been performed at this time."
	}
	return "Which laboratory tests or imaging studies would you like to order or review?"
}

func (r *LabsResident) fallback(err error) {
	if err != nil {
		r.logger.Warn("resident generation failed, reporting results as written", "error", err.Error())
	} else {
		r.logger.Warn("resident generation returned empty text")
	}
	if r.onFallback != nil {
		r.onFallback()
	}
}

// reportResults returns the raw result contents in reveal order.
func reportResults(blocks []casefile.Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		content := strings.TrimSpace(b.Content)
		if content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n")
}

// MismatchReply answers a query whose intent belongs to another context.
func MismatchReply(current casefile.Context) string {
	switch current {
	case casefile.ContextAnamnesis:
		return "I can help you with information about my mother's history and symptoms. For examination findings or test results, you'll need to examine her or speak with the resident."
	case casefile.ContextExam:
		return "This is the physical examination. For history questions, please speak with the patient's son; for test results, consult the resident."
	case casefile.ContextLabs:
		return "I can review laboratory and imaging results here. For history, please speak with the patient's son."
	default:
		return "That question belongs to a different part of the encounter."
	}
}
