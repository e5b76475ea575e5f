package chat

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Intent tags the small set of inputs that get a direct answer instead of
// retrieval-grounded reasoning.
type Intent int

const (
	IntentGroundedQuestion Intent = iota
	IntentGreeting
	IntentAcknowledgement
	IntentNameMisspelling
	IntentNavigation
)

func (i Intent) String() string {
	switch i {
	case IntentGreeting:
		return "greeting"
	case IntentAcknowledgement:
		return "acknowledgement"
	case IntentNameMisspelling:
		return "name_misspelling"
	case IntentNavigation:
		return "navigation"
	default:
		return "grounded_question"
	}
}

var greetingWords = []string{
	"hola", "buenas", "buenos dias", "buenas tardes", "buenas noches",
	"hello", "hi", "hey", "saludos",
}

var acknowledgementWords = []string{
	"gracias", "muchas gracias", "perfecto", "entendido", "genial",
	"thanks", "thank you", "ok", "vale", "listo", "excelente",
}

var navigationVerbs = []string{
	"llevame a", "ir a", "quiero ver", "donde esta la pagina", "donde encuentro",
	"muestrame", "como llego a", "take me to", "go to", "show me",
}

// IntentClassifier decides whether a message needs the full grounded-QA path
// or one of the short direct responses. Rules live here, not inside the
// prompt, so they can be tested.
type IntentClassifier struct {
	shortName    string
	destinations []string
}

func NewIntentClassifier(institutionShortName string, navDestinations []string) *IntentClassifier {
	return &IntentClassifier{
		shortName:    normalizeText(institutionShortName),
		destinations: normalizeAll(navDestinations),
	}
}

func (c *IntentClassifier) Classify(message string) Intent {
	normalized := normalizeText(message)
	if normalized == "" {
		return IntentGroundedQuestion
	}

	words := strings.Fields(normalized)

	// Pure greetings and acknowledgements only: a greeting followed by a real
	// question must still reach retrieval.
	if len(words) <= 3 {
		if matchesAny(normalized, greetingWords) {
			return IntentGreeting
		}
		if matchesAny(normalized, acknowledgementWords) {
			return IntentAcknowledgement
		}
	}

	for _, verb := range navigationVerbs {
		if strings.Contains(normalized, verb) {
			for _, dest := range c.destinations {
				if strings.Contains(normalized, dest) {
					return IntentNavigation
				}
			}
		}
	}

	if c.shortName != "" && len(words) <= 4 {
		for _, word := range words {
			if word != c.shortName && levenshtein(word, c.shortName) <= misspellingDistance(c.shortName) {
				return IntentNameMisspelling
			}
		}
	}

	return IntentGroundedQuestion
}

func matchesAny(normalized string, candidates []string) bool {
	for _, candidate := range candidates {
		if normalized == candidate {
			return true
		}
		if strings.HasPrefix(normalized, candidate+" ") || strings.HasSuffix(normalized, " "+candidate) {
			return true
		}
	}
	return false
}

// misspellingDistance scales tolerance with name length so short names do not
// swallow unrelated words. Length is counted in runes; accented names must not
// widen the tolerance.
func misspellingDistance(name string) int {
	if utf8.RuneCountInString(name) <= 4 {
		return 1
	}
	return 2
}

func normalizeAll(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		if normalized := normalizeText(v); normalized != "" {
			result = append(result, normalized)
		}
	}
	return result
}

// normalizeText lowercases, strips accents common in Spanish input, and
// drops punctuation so "¡Hola!" and "hola" classify the same.
func normalizeText(text string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		switch r {
		case 'á':
			r = 'a'
		case 'é':
			r = 'e'
		case 'í':
			r = 'i'
		case 'ó':
			r = 'o'
		case 'ú', 'ü':
			r = 'u'
		case 'ñ':
			r = 'n'
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
