package persona

import (
	"fmt"
	"strings"

	"github.com/clinsim/clinsim/internal/casefile"
)

const anamnesisSystemPrompt = `You are the English-speaking son of an elderly Spanish-speaking woman ` +
	`in the emergency department. You are translating for your mother who only speaks Spanish. ` +
	`You are concerned but trying to be helpful. You are not a medical professional.`

// buildAnamnesisPrompt grounds the son persona on exactly the blocks
// revealed by the current turn. The invention prohibitions are load
// bearing: small models will otherwise fabricate histories.
func buildAnamnesisPrompt(query string, blocks []casefile.Block) string {
	var sb strings.Builder

	sb.WriteString("Clinical information you may share (just revealed to the doctor):\n")
	for _, b := range blocks {
		fmt.Fprintf(&sb, "- %s\n", strings.TrimSpace(b.Content))
	}

	fmt.Fprintf(&sb, "\nThe doctor just asked: %q\n", query)

	sb.WriteString(`
Respond naturally as the patient's son. CRITICAL RULES:
1. ONLY use the clinical information listed above, nothing else
2. Answer ONLY the specific question asked
3. Do NOT invent details, numbers, dates, symptoms, surgeries or medical events
4. Do NOT extrapolate from diagnoses
5. Keep it brief and conversational

Your response:`)

	return sb.String()
}

const residentSystemPrompt = `You are a medical resident working in the emergency department, ` +
	`reporting to the attending physician. You are professional, direct and factual. ` +
	`You present laboratory and imaging results objectively without adding fictional details, ` +
	`and you never refer to specific doctors by name.`

// buildResidentPrompt grounds the resident on exactly the results revealed
// by the current turn.
func buildResidentPrompt(query string, blocks []casefile.Block) string {
	var sb strings.Builder

	sb.WriteString("Test results available to report:\n")
	for _, b := range blocks {
		label := b.Label
		if label == "" {
			label = b.ID
		}
		fmt.Fprintf(&sb, "- %s: %s\n", label, strings.TrimSpace(b.Content))
	}

	fmt.Fprintf(&sb, "\nThe attending physician asked: %q\n", query)

	sb.WriteString(`
Report ONLY the results listed above. Do not invent values, studies or findings beyond them.

Your response (professional and direct):`)

	return sb.String()
}

// buildAnamnesisNoMatchPrompt voices a turn that disclosed nothing new.
func buildAnamnesisNoMatchPrompt(query string, recognized bool) string {
	guidance := `The doctor asked about something you have no information about. ` +
		`Say naturally that you are not sure you have information about that specifically.`
	if !recognized {
		guidance = `You did not understand the doctor's question. ` +
			`Say naturally that you are not sure you can answer that question because you did not understand it.`
	}

	return fmt.Sprintf(`The doctor just asked: %q

%s

Do not invent any medical information. Your response (one or two sentences):`, query, guidance)
}
