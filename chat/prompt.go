package chat

import (
	"fmt"
	"sort"
	"strings"
)

const sectionDelimiter = "\n\n---\n\n"

// PromptBuilder assembles the system instruction that constrains the
// generator to the retrieved context.
type PromptBuilder struct {
	institutionName string
	contactEmail    string
	contactPhone    string
	siteURL         string
	maxContextChars int
}

func NewPromptBuilder(institutionName, contactEmail, contactPhone, siteURL string, maxContextChars int) *PromptBuilder {
	if maxContextChars <= 0 {
		maxContextChars = 6000
	}
	return &PromptBuilder{
		institutionName: institutionName,
		contactEmail:    contactEmail,
		contactPhone:    contactPhone,
		siteURL:         siteURL,
		maxContextChars: maxContextChars,
	}
}

// BuildPrompt returns the system instruction for one request. Chunks are
// concatenated as labeled sections inside a bounded context block; the four
// soft intents replace grounded reasoning with a short direct directive.
func (b *PromptBuilder) BuildPrompt(chunks []RetrievedChunk, question string, intent Intent) string {
	if directive := b.intentDirective(intent); directive != "" {
		return directive
	}

	if len(chunks) == 0 {
		return fmt.Sprintf(
			"You are the virtual assistant of %s. No reference material is available for this question. "+
				"Answer generically about the institution in at most 100 words, in the language of the question, "+
				"and invite the visitor to write to %s or call %s for specifics. Do not invent facts, figures, or URLs.",
			b.institutionName, b.contactEmail, b.contactPhone,
		)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are the virtual assistant of %s. Answer using ONLY the context below.\n", b.institutionName))
	sb.WriteString("Rules:\n")
	sb.WriteString("- If the answer is not in the context, say you do not have that information and suggest contacting the institution at " + b.contactEmail + ".\n")
	sb.WriteString("- Reply in the language of the question, in at most 150 words.\n")
	sb.WriteString("- Never invent URLs; only cite URLs that appear in the context.\n")
	sb.WriteString("\nContext:\n")
	sb.WriteString(b.contextBlock(chunks))
	return sb.String()
}

// contextBlock renders "### <title>" sections within the character budget,
// dropping the lowest-similarity chunks first when over it.
func (b *PromptBuilder) contextBlock(chunks []RetrievedChunk) string {
	ordered := make([]RetrievedChunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Similarity > ordered[j].Similarity
	})

	var sb strings.Builder
	for _, chunk := range ordered {
		section := fmt.Sprintf("### %s\n%s", chunk.Title, strings.TrimSpace(chunk.Content))
		if chunk.URL != "" {
			section += "\nURL: " + chunk.URL
		}

		addition := len(section)
		if sb.Len() > 0 {
			addition += len(sectionDelimiter)
		}
		if sb.Len()+addition > b.maxContextChars {
			break
		}

		if sb.Len() > 0 {
			sb.WriteString(sectionDelimiter)
		}
		sb.WriteString(section)
	}
	return sb.String()
}

func (b *PromptBuilder) intentDirective(intent Intent) string {
	switch intent {
	case IntentGreeting:
		return fmt.Sprintf(
			"You are the virtual assistant of %s. The visitor sent a greeting. "+
				"Reply with a brief, warm greeting in the visitor's language, mention the institution by name, "+
				"and offer to answer questions about its services and research. Two sentences at most.",
			b.institutionName,
		)
	case IntentAcknowledgement:
		return fmt.Sprintf(
			"You are the virtual assistant of %s. The visitor thanked you or acknowledged your answer. "+
				"Reply briefly and warmly in the visitor's language and offer further help. One or two sentences.",
			b.institutionName,
		)
	case IntentNameMisspelling:
		return fmt.Sprintf(
			"You are the virtual assistant of %s. The visitor seems to have misspelled the institution's name. "+
				"Confirm politely that this is %s and offer to help, without correcting them explicitly. Two sentences at most.",
			b.institutionName, b.institutionName,
		)
	case IntentNavigation:
		return fmt.Sprintf(
			"You are the virtual assistant of %s. The visitor asked how to reach a section of the website. "+
				"Point them to the section they named on %s, briefly and in their language. Do not invent URLs beyond the site address.",
			b.institutionName, b.siteURL,
		)
	default:
		return ""
	}
}

// FormatQuestion wraps the standalone question as the user message.
func FormatQuestion(question string) string {
	return "Visitor question:\n" + question
}
