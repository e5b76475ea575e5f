package chat_test

import (
	"strings"
	"testing"

	"github.com/altamira-institute/assistant/chat"
)

func newBuilder(maxChars int) *chat.PromptBuilder {
	return chat.NewPromptBuilder(
		"Instituto de Investigación Altamira",
		"contacto@altamira.edu",
		"+51 1 555 0100",
		"https://altamira.edu",
		maxChars,
	)
}

func TestEmptyContextPromptHasNoSections(t *testing.T) {
	prompt := newBuilder(6000).BuildPrompt(nil, "¿Qué hacen?", chat.IntentGroundedQuestion)

	if strings.Contains(prompt, "###") {
		t.Fatalf("empty-context prompt must not contain section delimiters: %q", prompt)
	}
	if !strings.Contains(prompt, "contacto@altamira.edu") {
		t.Fatal("empty-context prompt must defer to contact channels")
	}
	if !strings.Contains(prompt, "100 words") {
		t.Fatal("empty-context prompt must cap output length")
	}
}

func TestGroundedPromptLabelsEachChunk(t *testing.T) {
	chunks := []chat.RetrievedChunk{
		{DocumentChunk: chat.DocumentChunk{Title: "Servicios", Content: "Asesoría técnica.", URL: "https://altamira.edu/servicios"}, Similarity: 0.9},
		{DocumentChunk: chat.DocumentChunk{Title: "Sucursales", Content: "Sede en Lima."}, Similarity: 0.8},
	}

	prompt := newBuilder(6000).BuildPrompt(chunks, "¿Qué servicios hay?", chat.IntentGroundedQuestion)

	if !strings.Contains(prompt, "### Servicios") || !strings.Contains(prompt, "### Sucursales") {
		t.Fatalf("each chunk must appear as a labeled section: %q", prompt)
	}
	if !strings.Contains(prompt, "ONLY the context") {
		t.Fatal("grounded prompt must restrict the generator to the context")
	}
	if !strings.Contains(prompt, "https://altamira.edu/servicios") {
		t.Fatal("chunk URLs must be available for citation")
	}
	if strings.Index(prompt, "### Servicios") > strings.Index(prompt, "### Sucursales") {
		t.Fatal("sections must be ordered by descending similarity")
	}
}

func TestContextBudgetDropsLowestSimilarityFirst(t *testing.T) {
	long := strings.Repeat("a", 120)
	chunks := []chat.RetrievedChunk{
		{DocumentChunk: chat.DocumentChunk{Title: "Low", Content: long}, Similarity: 0.4},
		{DocumentChunk: chat.DocumentChunk{Title: "High", Content: long}, Similarity: 0.9},
	}

	// Budget fits one section only.
	prompt := newBuilder(250).BuildPrompt(chunks, "pregunta", chat.IntentGroundedQuestion)

	if !strings.Contains(prompt, "### High") {
		t.Fatal("highest-similarity chunk must survive truncation")
	}
	if strings.Contains(prompt, "### Low") {
		t.Fatal("lowest-similarity chunk must be dropped first")
	}
}

func TestIntentDirectivesBypassContext(t *testing.T) {
	chunks := []chat.RetrievedChunk{
		{DocumentChunk: chat.DocumentChunk{Title: "Servicios", Content: "Asesoría."}, Similarity: 0.9},
	}

	cases := map[chat.Intent]string{
		chat.IntentGreeting:        "greeting",
		chat.IntentAcknowledgement: "thanked you or acknowledged",
		chat.IntentNameMisspelling: "misspelled",
		chat.IntentNavigation:      "section of the website",
	}

	for intent, marker := range cases {
		prompt := newBuilder(6000).BuildPrompt(chunks, "hola", intent)
		if !strings.Contains(prompt, marker) {
			t.Fatalf("intent %s: directive marker %q missing from %q", intent, marker, prompt)
		}
		if strings.Contains(prompt, "###") {
			t.Fatalf("intent %s: directives must not include context sections", intent)
		}
	}
}
