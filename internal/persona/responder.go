package persona

import (
	"context"
	"strings"
	"time"

	"github.com/clinsim/clinsim/internal/casefile"
)

// Responder renders revealed case information in a persona voice. Render
// never fails: personas that use an LLM fall back to a deterministic
// rendering of the block contents when the backend is unavailable.
type Responder interface {
	// Render voices the given blocks as an answer to the trainee's query.
	Render(ctx context.Context, query string, blocks []casefile.Block) string

	// NoMatch produces the reply for a turn that revealed nothing.
	// recognized distinguishes "understood but nothing to disclose" from
	// "could not understand the question".
	NoMatch(recognized bool) string
}

// Registry holds one responder per clinical context.
type Registry struct {
	responders map[casefile.Context]Responder
}

// NewRegistry builds the standard persona set: the patient's son for
// anamnesis, an objective examiner for the physical exam, and a lab
// resident for test results.
func NewRegistry(anamnesis, exam, labs Responder) *Registry {
	return &Registry{responders: map[casefile.Context]Responder{
		casefile.ContextAnamnesis: anamnesis,
		casefile.ContextExam:      exam,
		casefile.ContextLabs:      labs,
	}}
}

// For returns the responder serving a context.
func (r *Registry) For(ctx casefile.Context) (Responder, bool) {
	resp, ok := r.responders[ctx]
	return resp, ok
}

// callContext bounds one generation call so a hung backend degrades to
// the deterministic rendering instead of pinning the turn.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// cleanResponse strips wrapping quotes and whitespace that chat models
// tend to add around roleplay output.
func cleanResponse(text string) string {
	text = strings.TrimSpace(text)
	for len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			text = strings.TrimSpace(text[1 : len(text)-1])
			continue
		}
		break
	}
	return text
}

func joinBlockContents(blocks []casefile.Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		content := strings.TrimSpace(b.Content)
		if content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, " ")
}
