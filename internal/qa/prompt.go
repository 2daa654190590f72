package qa

import (
	"fmt"
	"strings"
)

// systemPrompt frames the synthesizer as a biomedical assistant that
// cites its sources.
const systemPrompt = `You are a biomedical research assistant. Answer the question using only the numbered sources provided. Cite sources inline with bracketed numbers like [1] or [2]. If the sources do not contain enough information to answer, say so plainly. Do not invent citations or facts.`

// buildPrompt renders prior conversation turns, the numbered source
// passages, and the question.
//
// Each source is formatted as:
//
//	Source [i] (source_type): title
//	text
func buildPrompt(question string, passages []Passage, history []Turn) string {
	var b strings.Builder

	if len(history) > 0 {
		b.WriteString("Conversation history:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("Sources:\n\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "Source [%d] (%s): %s\n%s\n\n", i+1, p.SourceType, p.Title, p.Text)
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer with citations:")
	return b.String()
}
