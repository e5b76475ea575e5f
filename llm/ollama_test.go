package llm_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/altamira-institute/assistant/llm"
)

func TestOllamaGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"Hola, ¿en qué ayudo?"},"done":true}`))
	}))
	defer server.Close()

	client := llm.NewOllamaClient(llm.Options{OllamaHost: server.URL, Model: "test"})

	answer, err := client.Generate(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "Hola"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "Hola, ¿en qué ayudo?" {
		t.Fatalf("unexpected answer: %q", answer)
	}
}

func TestOllamaGenerateStreamEmitsTokensInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":"Hola"},"done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"message":{"content":" mundo"},"done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"message":{"content":""},"done":true}` + "\n"))
	}))
	defer server.Close()

	client := llm.NewOllamaClient(llm.Options{OllamaHost: server.URL, Model: "test"})

	var tokens []string
	err := client.GenerateStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "Hola"}}, func(token string) error {
		tokens = append(tokens, token)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(tokens, "") != "Hola mundo" {
		t.Fatalf("unexpected tokens: %v", tokens)
	}
}

func TestOllamaMapsTooManyRequestsToQuotaSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := llm.NewOllamaClient(llm.Options{OllamaHost: server.URL, Model: "test"})

	_, err := client.Generate(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "Hola"}})
	if !errors.Is(err, llm.ErrQuotaExceeded) {
		t.Fatalf("expected quota sentinel, got %v", err)
	}
}

func TestOllamaStreamCallbackErrorStopsStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":"a"},"done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"message":{"content":"b"},"done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"message":{"content":""},"done":true}` + "\n"))
	}))
	defer server.Close()

	client := llm.NewOllamaClient(llm.Options{OllamaHost: server.URL, Model: "test"})

	stop := errors.New("client gone")
	err := client.GenerateStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}}, func(string) error {
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("callback error must propagate, got %v", err)
	}
}
