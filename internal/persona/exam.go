package persona

import (
	"context"
	"strings"

	"github.com/clinsim/clinsim/internal/casefile"
)

// ExamObjective reports physical examination findings verbatim. Exam
// findings are objective data; no generation is needed or wanted here.
type ExamObjective struct{}

// NewExamObjective creates the exam responder.
func NewExamObjective() *ExamObjective {
	return &ExamObjective{}
}

// Render returns the findings joined in reveal order.
func (r *ExamObjective) Render(_ context.Context, _ string, blocks []casefile.Block) string {
	if len(blocks) == 0 {
		return r.NoMatch(true)
	}
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		content := strings.TrimSpace(b.Content)
		if content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n")
}

// NoMatch states plainly that the requested finding does not exist.
func (r *ExamObjective) NoMatch(recognized bool) string {
	if recognized {
		return "That examination finding is not available in this case."
	}
	return "Please specify which aspect of the physical examination you would like to perform."
}
