package chat_test

import (
	"testing"

	"github.com/altamira-institute/assistant/chat"
)

func TestIntentClassification(t *testing.T) {
	classifier := chat.NewIntentClassifier("Altamira", []string{"servicios", "sucursales", "contacto", "investigación"})

	cases := []struct {
		message string
		want    chat.Intent
	}{
		{"Hola", chat.IntentGreeting},
		{"¡Hola!", chat.IntentGreeting},
		{"buenos días", chat.IntentGreeting},
		{"hello", chat.IntentGreeting},
		{"gracias", chat.IntentAcknowledgement},
		{"muchas gracias!", chat.IntentAcknowledgement},
		{"ok perfecto", chat.IntentAcknowledgement},
		{"altamara?", chat.IntentNameMisspelling},
		{"es Altamyra?", chat.IntentNameMisspelling},
		{"llévame a servicios", chat.IntentNavigation},
		{"quiero ver la página de sucursales", chat.IntentNavigation},
		{"go to contacto", chat.IntentNavigation},
		{"¿Cuál es la dirección de la sede?", chat.IntentGroundedQuestion},
		{"hola, ¿qué becas de investigación ofrecen este año?", chat.IntentGroundedQuestion},
		{"¿Qué proyectos tiene Altamira?", chat.IntentGroundedQuestion},
		{"", chat.IntentGroundedQuestion},
	}

	for _, tc := range cases {
		if got := classifier.Classify(tc.message); got != tc.want {
			t.Fatalf("Classify(%q) = %s, want %s", tc.message, got, tc.want)
		}
	}
}

func TestShortAccentedNameKeepsTightMisspellingTolerance(t *testing.T) {
	// "Côte" is 4 runes (5 bytes); the tolerance for names up to 4 runes is
	// distance 1, regardless of encoding width.
	classifier := chat.NewIntentClassifier("Côte", nil)

	if got := classifier.Classify("cote"); got != chat.IntentNameMisspelling {
		t.Fatalf("Classify(%q) = %s, want %s", "cote", got, chat.IntentNameMisspelling)
	}
	if got := classifier.Classify("cota"); got != chat.IntentGroundedQuestion {
		t.Fatalf("Classify(%q) = %s, want %s: distance 2 exceeds the short-name tolerance", "cota", got, chat.IntentGroundedQuestion)
	}
}

func TestExactNameIsNotAMisspelling(t *testing.T) {
	classifier := chat.NewIntentClassifier("Altamira", nil)
	if got := classifier.Classify("Altamira"); got == chat.IntentNameMisspelling {
		t.Fatal("the correctly spelled name must not classify as a misspelling")
	}
}
