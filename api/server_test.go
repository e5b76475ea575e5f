package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/altamira-institute/assistant/api"
	"github.com/altamira-institute/assistant/chat"
)

type stubChatService struct {
	resp     chat.Response
	err      error
	lastMsg  string
	lastHist []chat.Turn
}

func (s *stubChatService) ChatStream(ctx context.Context, message string, history []chat.Turn, metaFn func([]chat.Source, int) error, streamFn func(string) error) (chat.Response, error) {
	s.lastMsg = message
	s.lastHist = history
	if s.err != nil {
		return chat.Response{}, s.err
	}
	if metaFn != nil {
		if err := metaFn(s.resp.Sources, s.resp.TurnIndex); err != nil {
			return chat.Response{}, err
		}
	}
	if streamFn != nil {
		for _, token := range strings.SplitAfter(s.resp.Answer, " ") {
			if err := streamFn(token); err != nil {
				return chat.Response{}, err
			}
		}
	}
	return s.resp, nil
}

var _ api.ChatService = (*stubChatService)(nil)

func newTestServer(svc api.ChatService) *api.Server {
	return api.New(svc, log.New(io.Discard, "", 0))
}

func TestChatStreamsAnswerWithSourcesHeader(t *testing.T) {
	svc := &stubChatService{resp: chat.Response{
		Answer: "La dirección es Calle Los Cedros 450.",
		Sources: []chat.Source{
			{Title: "Contacto", URL: "https://altamira.edu/contacto", Snippet: "Nuestra dirección...", Similarity: 0.91},
		},
		TurnIndex: 1,
	}}

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"¿Cuál es la dirección?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	newTestServer(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("expected text/plain body, got %q", got)
	}
	if rec.Body.String() != "La dirección es Calle Los Cedros 450." {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
	if rec.Header().Get("X-Chat-Turn") != "1" {
		t.Fatalf("unexpected turn header: %q", rec.Header().Get("X-Chat-Turn"))
	}

	var sources []map[string]any
	if err := json.Unmarshal([]byte(rec.Header().Get("X-Chat-Sources")), &sources); err != nil {
		t.Fatalf("sources header must be JSON: %v", err)
	}
	if len(sources) != 1 || sources[0]["title"] != "Contacto" {
		t.Fatalf("unexpected sources header: %v", sources)
	}
}

func TestChatRejectsMissingMessage(t *testing.T) {
	svc := &stubChatService{}

	for _, body := range []string{`{}`, `{"message":"   "}`, `{"messages":[]}`} {
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
		rec := httptest.NewRecorder()

		newTestServer(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
		if svc.lastMsg != "" {
			t.Fatalf("body %s: service must not be called", body)
		}
	}
}

func TestChatRejectsEmptyMessageFromService(t *testing.T) {
	svc := &stubChatService{err: chat.ErrEmptyMessage}

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"x"}`))
	rec := httptest.NewRecorder()

	newTestServer(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChatMultiTurnVariant(t *testing.T) {
	svc := &stubChatService{resp: chat.Response{Answer: "ok", TurnIndex: 2}}

	body := `{"messages":[
		{"role":"user","content":"Hola"},
		{"role":"assistant","content":"¡Hola!"},
		{"role":"user","content":"¿Qué becas hay?"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()

	newTestServer(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastMsg != "¿Qué becas hay?" {
		t.Fatalf("last user message must become the question, got %q", svc.lastMsg)
	}
	if len(svc.lastHist) != 2 {
		t.Fatalf("expected 2 history turns, got %d", len(svc.lastHist))
	}
	if svc.lastHist[0].Sender != chat.SenderUser || svc.lastHist[1].Sender != chat.SenderAssistant {
		t.Fatalf("history senders wrong: %+v", svc.lastHist)
	}
	if !svc.lastHist[0].Timestamp.Before(svc.lastHist[1].Timestamp) {
		t.Fatal("history timestamps must be ordered")
	}
}

func TestChatMultiTurnRequiresTrailingUserMessage(t *testing.T) {
	svc := &stubChatService{}

	body := `{"messages":[{"role":"assistant","content":"¡Hola!"}]}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()

	newTestServer(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPreflightCarriesCORSHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	rec := httptest.NewRecorder()

	newTestServer(&stubChatService{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("preflight must have no body, got %q", rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing allow-origin header")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Fatal("missing allow-methods header")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Content-Type") {
		t.Fatal("missing allow-headers header")
	}
}

func TestChatResponsesCarryCORSHeaders(t *testing.T) {
	svc := &stubChatService{resp: chat.Response{Answer: "hola", TurnIndex: 1}}

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hola"}`))
	rec := httptest.NewRecorder()

	newTestServer(svc).ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("chat responses must carry CORS headers")
	}
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	newTestServer(&stubChatService{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestInternalErrorBeforeStreamIsPlainText(t *testing.T) {
	svc := &stubChatService{err: io.ErrUnexpectedEOF}

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hola"}`))
	rec := httptest.NewRecorder()

	newTestServer(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal error") {
		t.Fatalf("expected plain-text error body, got %q", rec.Body.String())
	}
}
