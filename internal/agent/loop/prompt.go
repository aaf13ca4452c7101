package loop

import (
	"fmt"
	"strings"

	"finbench/internal/agent/ports"
	"finbench/internal/config"
)

// systemPrompt pins the knowledge cutoff and the answer contract. Answers
// produced against data past the cutoff would not be reproducible.
var systemPrompt = fmt.Sprintf(`You are a financial research assistant. Your knowledge and all retrieved data end on %s; never rely on information after that date.

Answer the user's question using only the evidence provided. Reply in exactly this shape:

FINAL ANSWER: <concise answer with exact figures>
{"sources": [{"url": "<url>", "name": "<source name>"}]}

Cite only sources that appear in the evidence. If the evidence is insufficient, say so in the answer.`, config.KnowledgeCutoff)

// buildSynthesisPrompt renders the question and the accumulated evidence for
// the final oracle call.
func buildSynthesisPrompt(q ports.Question, evidence []ports.Evidence, toolOutputs []string) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(q.Text)
	b.WriteString("\n\nEvidence:\n")
	if len(evidence) == 0 {
		b.WriteString("(no evidence retrieved)\n")
	}
	for _, e := range evidence {
		fmt.Fprintf(&b, "- %s (%s)", e.Name, e.URL)
		if e.Snippet != "" {
			b.WriteString(": ")
			b.WriteString(e.Snippet)
		}
		b.WriteString("\n")
	}
	if len(toolOutputs) > 0 {
		b.WriteString("\nRetrieved findings:\n")
		for _, out := range toolOutputs {
			b.WriteString(out)
			b.WriteString("\n")
		}
	}
	return b.String()
}
