package chat

import (
	"fmt"
	"strings"
)

const fallbackSnippetChars = 400

// FallbackResponder produces deterministic canned answers when the
// generation backend is unreachable or over quota. It is pure and makes no
// external calls, so it can never fail.
type FallbackResponder struct {
	institutionName string
	contactEmail    string
	contactPhone    string
}

func NewFallbackResponder(institutionName, contactEmail, contactPhone string) *FallbackResponder {
	return &FallbackResponder{
		institutionName: institutionName,
		contactEmail:    contactEmail,
		contactPhone:    contactPhone,
	}
}

// Respond prefers an excerpt of the best retrieved chunk, then keyword-matched
// canned intents, then a generic institutional description. Every branch ends
// with the contact suffix so the visitor always has a next step.
func (f *FallbackResponder) Respond(question string, chunks []RetrievedChunk) string {
	if len(chunks) > 0 {
		return excerpt(chunks[0].Content, fallbackSnippetChars) + "\n\n" + f.contactSuffix()
	}

	normalized := normalizeText(question)
	switch {
	case containsAnyKeyword(normalized, greetingWords):
		return fmt.Sprintf("¡Hola! Soy el asistente virtual de %s. ¿En qué puedo ayudarte?", f.institutionName)
	case containsAnyKeyword(normalized, []string{"contacto", "contactar", "telefono", "correo", "email", "direccion", "contact", "phone"}):
		return fmt.Sprintf("Puedes comunicarte con %s escribiendo a %s o llamando al %s.", f.institutionName, f.contactEmail, f.contactPhone)
	case containsAnyKeyword(normalized, []string{"investigacion", "proyecto", "estudio", "research"}):
		return fmt.Sprintf("En %s desarrollamos proyectos de investigación en varias áreas. %s", f.institutionName, f.contactSuffix())
	default:
		return fmt.Sprintf("%s es una institución dedicada a la investigación y a los servicios para la comunidad. %s", f.institutionName, f.contactSuffix())
	}
}

func (f *FallbackResponder) contactSuffix() string {
	return fmt.Sprintf("Para más información, contáctanos en %s o al %s.", f.contactEmail, f.contactPhone)
}

// excerpt trims text to maxRunes runes, appending an ellipsis when it cuts.
// Slicing runes keeps accented content intact at the boundary.
func excerpt(text string, maxRunes int) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "..."
}

func containsAnyKeyword(normalized string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(normalized, keyword) {
			return true
		}
	}
	return false
}
