package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/altamira-institute/assistant/chat"
)

// ChatService is the slice of the orchestrator the transport needs.
type ChatService interface {
	ChatStream(ctx context.Context, message string, history []chat.Turn, metaFn func(sources []chat.Source, turnIndex int) error, streamFn func(string) error) (chat.Response, error)
}

// Server exposes the conversational assistant over HTTP.
type Server struct {
	svc     ChatService
	logger  *log.Logger
	handler http.Handler
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest accepts the single-turn and multi-turn body variants.
type chatRequest struct {
	Message  string        `json:"message"`
	Messages []chatMessage `json:"messages"`
}

type sourceHeaderEntry struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Snippet    string  `json:"snippet"`
	Similarity float64 `json:"similarity"`
}

func New(svc ChatService, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{svc: svc, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/openapi.yaml", s.handleOpenAPI).Methods(http.MethodGet)
	router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	router.HandleFunc("/chat", s.handlePreflight).Methods(http.MethodOptions)
	router.Use(corsMiddleware)
	return router
}

// corsMiddleware allows the public widget to call the endpoint from any
// origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "X-Chat-Sources, X-Chat-Turn")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	message, history, err := normalizeRequest(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	flusher, _ := w.(http.Flusher)

	// Provenance must land in headers before the first body byte, so it is
	// delivered through the meta callback rather than the final response.
	headersSent := false
	metaFn := func(sources []chat.Source, turnIndex int) error {
		headersSent = true
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if encoded := encodeSources(sources); encoded != "" {
			w.Header().Set("X-Chat-Sources", encoded)
		}
		w.Header().Set("X-Chat-Turn", fmt.Sprintf("%d", turnIndex))
		w.WriteHeader(http.StatusOK)
		return nil
	}

	_, err = s.svc.ChatStream(r.Context(), message, history, metaFn, func(token string) error {
		if _, writeErr := io.WriteString(w, token); writeErr != nil {
			return writeErr
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		if headersSent {
			// Stream already started; the orchestrator closed it.
			s.logger.Printf("chat stream ended with error: %v", err)
			return
		}
		if errors.Is(err, chat.ErrEmptyMessage) {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.logger.Printf("chat failed: %v", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "internal error")
		return
	}

	if flusher != nil {
		flusher.Flush()
	}
}

// normalizeRequest reduces both body variants to a message plus prior turns.
func normalizeRequest(req chatRequest) (string, []chat.Turn, error) {
	if len(req.Messages) == 0 {
		if strings.TrimSpace(req.Message) == "" {
			return "", nil, fmt.Errorf("message is required")
		}
		return req.Message, nil, nil
	}

	last := req.Messages[len(req.Messages)-1]
	if last.Role != chat.SenderUser || strings.TrimSpace(last.Content) == "" {
		return "", nil, fmt.Errorf("last message must be a non-empty user message")
	}

	history := make([]chat.Turn, 0, len(req.Messages)-1)
	base := time.Now().Add(-time.Duration(len(req.Messages)) * time.Second)
	for i, msg := range req.Messages[:len(req.Messages)-1] {
		sender := chat.SenderUser
		if msg.Role == chat.SenderAssistant {
			sender = chat.SenderAssistant
		}
		history = append(history, chat.Turn{
			ID:        uuid.NewString(),
			Sender:    sender,
			Message:   msg.Content,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}
	return last.Content, history, nil
}

func encodeSources(sources []chat.Source) string {
	if len(sources) == 0 {
		return ""
	}

	entries := make([]sourceHeaderEntry, len(sources))
	for i, source := range sources {
		entries[i] = sourceHeaderEntry{
			Title:      source.Title,
			URL:        source.URL,
			Snippet:    headerSafe(source.Snippet),
			Similarity: source.Similarity,
		}
	}

	encoded, err := json.Marshal(entries)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// headerSafe strips newlines so the serialized list stays a legal header
// value.
func headerSafe(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return value
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
