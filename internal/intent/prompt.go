package intent

import (
	"fmt"
	"strings"

	"github.com/clinsim/clinsim/internal/casefile"
)

const classifierSystemPrompt = `You are an intent classifier for a clinical interview simulator. ` +
	`A medical trainee asks free-text questions and you map each question to exactly one intent ` +
	`from a fixed list. Respond with JSON only, no prose before or after.`

// buildClassifierPrompt renders the candidate taxonomy and the trainee query
// into a single classification prompt.
func buildClassifierPrompt(query string, candidates []casefile.Intent) string {
	var sb strings.Builder

	sb.WriteString("Available intents:\n")
	for _, in := range candidates {
		fmt.Fprintf(&sb, "- %s: %s\n", in.ID, in.Description)
		for _, ex := range in.Examples {
			fmt.Fprintf(&sb, "  example: %q\n", ex)
		}
	}

	sb.WriteString("\nTrainee question: ")
	sb.WriteString(strings.TrimSpace(query))
	sb.WriteString("\n\nRespond with a JSON object of this exact shape:\n")
	sb.WriteString(`{"intent_id": "<one id from the list>", "confidence": <0.0-1.0>, "explanation": "<one sentence>"}` + "\n")
	sb.WriteString("If no intent fits, use the closest one with a low confidence.")

	return sb.String()
}
