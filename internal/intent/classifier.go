package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/clinsim/clinsim/internal/casefile"
	"github.com/clinsim/clinsim/internal/llm"
)

// FallbackIntentID is reported when classification cannot produce a usable
// intent. It asks the trainee to rephrase instead of guessing.
const FallbackIntentID = "clarification"

// Classification is the outcome of classifying one trainee query.
// Recognized is false when the result is the degraded fallback, in which
// case Confidence is always zero.
type Classification struct {
	IntentID    string
	Confidence  float64
	Explanation string
	Recognized  bool
	Query       string
}

// Classifier maps free-text trainee queries onto the case's intent taxonomy
// using an LLM backend. Classification never returns an error: every failure
// mode degrades to the fallback intent so the interview can continue.
type Classifier struct {
	client llm.Client
	cs     *casefile.Case
	logger *slog.Logger

	failureLimit int
	cooldown     time.Duration
	timeout      time.Duration

	mu        sync.Mutex
	failures  int
	openUntil time.Time
}

// NewClassifier creates a classifier over the given case taxonomy. The
// breaker opens for cooldown after failureLimit consecutive backend errors.
// Each backend call is bounded by timeout; hitting it counts as a failure.
func NewClassifier(client llm.Client, cs *casefile.Case, failureLimit int, cooldown, timeout time.Duration, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if failureLimit <= 0 {
		failureLimit = 3
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Classifier{
		client:       client,
		cs:           cs,
		logger:       logger,
		failureLimit: failureLimit,
		cooldown:     cooldown,
		timeout:      timeout,
	}
}

type classifierOutput struct {
	IntentID    string  `json:"intent_id"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// Classify maps a query to one intent valid in the given context.
func (c *Classifier) Classify(ctx context.Context, query string, clinicalCtx casefile.Context) Classification {
	query = strings.TrimSpace(query)
	if query == "" {
		return c.fallback(query, "empty query")
	}

	candidates := c.cs.IntentsForContext(clinicalCtx)
	if len(candidates) == 0 {
		candidates = c.cs.Intents
	}
	if len(candidates) == 0 {
		return c.fallback(query, "case has no intents")
	}

	if c.breakerOpen() {
		c.logger.Warn("intent classifier breaker open, skipping llm call", "query_len", len(query))
		return c.fallback(query, "breaker open")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Complete(callCtx, llm.Request{
		System:      classifierSystemPrompt,
		Prompt:      buildClassifierPrompt(query, candidates),
		Temperature: 0.1,
		TopP:        0.9,
		MaxTokens:   300,
	})
	if err != nil {
		c.recordFailure(err)
		return c.fallback(query, "backend error")
	}
	c.recordSuccess()

	out, ok := parseClassifierOutput(resp.Text)
	if !ok {
		c.logger.Warn("intent classifier returned unparseable output", "output_len", len(resp.Text))
		return c.fallback(query, "unparseable output")
	}

	intentID := strings.TrimSpace(out.IntentID)
	if !candidateSetContains(candidates, intentID) {
		c.logger.Warn("intent classifier chose an out-of-taxonomy intent", "intent_id", intentID)
		return c.fallback(query, "intent not in taxonomy")
	}

	confidence := out.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Classification{
		IntentID:    intentID,
		Confidence:  confidence,
		Explanation: strings.TrimSpace(out.Explanation),
		Recognized:  true,
		Query:       query,
	}
}

func (c *Classifier) fallback(query, reason string) Classification {
	return Classification{
		IntentID:    FallbackIntentID,
		Confidence:  0,
		Explanation: reason,
		Recognized:  false,
		Query:       query,
	}
}

func (c *Classifier) breakerOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Before(c.openUntil)
}

func (c *Classifier) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	c.logger.Warn("intent classifier backend failed",
		"error", err.Error(),
		"consecutive_failures", c.failures,
	)
	if c.failures >= c.failureLimit {
		c.openUntil = time.Now().Add(c.cooldown)
		c.failures = 0
		c.logger.Error("intent classifier breaker opened", "cooldown", c.cooldown.String())
	}
}

func (c *Classifier) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
}

// parseClassifierOutput extracts the first JSON object from raw model
// output. Models often wrap JSON in markdown fences or prose.
func parseClassifierOutput(text string) (classifierOutput, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return classifierOutput{}, false
	}

	var out classifierOutput
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return classifierOutput{}, false
	}
	if strings.TrimSpace(out.IntentID) == "" {
		return classifierOutput{}, false
	}
	return out, true
}

func candidateSetContains(candidates []casefile.Intent, id string) bool {
	for _, in := range candidates {
		if in.ID == id {
			return true
		}
	}
	return false
}
