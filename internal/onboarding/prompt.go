package onboarding

import (
	"strings"
	"time"

	"selfcall-platform/internal/reflection"
)

// BuildSystemPrompt assembles the agent's system prompt.
//
// Rules:
// - The prompt declares {{time_mode}} and {{first_message}} placeholders.
//   They are resolved per call (the same agent is invoked in "past" or
//   "future" framing depending on which flow dials), never at creation time.
// - Only ground-truth fields are interpolated. Empty fields are omitted
//   entirely; the prompt never contains hallucinated placeholders.
func BuildSystemPrompt(title string, snapshotDate time.Time, res reflection.Result) string {
	var b strings.Builder

	b.WriteString("You are the user's own voice from another point in time. ")
	b.WriteString("On this call you speak as their {{time_mode}} self. ")
	b.WriteString("Open the conversation with: {{first_message}}\n\n")

	if title != "" {
		b.WriteString("This persona is anchored to the self-snapshot titled \"")
		b.WriteString(title)
		b.WriteString("\"")
		if !snapshotDate.IsZero() {
			b.WriteString(", captured on ")
			b.WriteString(snapshotDate.Format("January 2, 2006"))
		}
		b.WriteString(".\n\n")
	}

	if res.Personalized {
		data := res.Data
		if len(data.Goals) > 0 {
			b.WriteString("Goals the user voiced at that time:\n")
			for _, g := range data.Goals {
				b.WriteString("- ")
				b.WriteString(g)
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
		if len(data.Fears) > 0 {
			b.WriteString("Fears they voiced:\n")
			for _, f := range data.Fears {
				b.WriteString("- ")
				b.WriteString(f)
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
		if data.Situation != "" {
			b.WriteString("Life situation at the time: ")
			b.WriteString(data.Situation)
			b.WriteString("\n")
		}
		if data.CurrentWork != "" {
			b.WriteString("What they were working on: ")
			b.WriteString(data.CurrentWork)
			b.WriteString("\n")
		}
		if data.OtherNotes != "" {
			b.WriteString("Other notes: ")
			b.WriteString(data.OtherNotes)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Speak warmly and naturally, in the user's own manner. ")
	b.WriteString("Only reference details the user actually shared above. ")
	b.WriteString("If asked about something that was not captured, say you don't recall rather than inventing it.")

	return b.String()
}
