package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/altamira-institute/assistant/config"
	"github.com/altamira-institute/assistant/embeddings"
	"github.com/altamira-institute/assistant/llm"
)

// ErrEmptyMessage is the only failure surfaced to the transport as an error;
// every other failure mode degrades to a still-useful response body.
var ErrEmptyMessage = errors.New("message cannot be empty")

const apologyMessage = "Lo siento, ocurrió un problema al procesar tu consulta. Por favor, inténtalo de nuevo en unos minutos."

const sourceSnippetChars = 200

// Service sequences one chat request: condense, retrieve, assemble,
// generate/stream. It holds no cross-request state; history arrives from the
// caller on every call.
type Service struct {
	retriever  *Retriever
	condenser  Condenser
	intents    *IntentClassifier
	prompts    *PromptBuilder
	fallback   *FallbackResponder
	llm        llm.Client
	graph      PageGraph
	genTimeout time.Duration
	logger     *log.Logger
}

func NewService(
	retriever *Retriever,
	condenser Condenser,
	intents *IntentClassifier,
	prompts *PromptBuilder,
	fallback *FallbackResponder,
	llmClient llm.Client,
	graph PageGraph,
	logger *log.Logger,
) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		retriever: retriever,
		condenser: condenser,
		intents:   intents,
		prompts:   prompts,
		fallback:  fallback,
		llm:       llmClient,
		graph:     graph,
		logger:    logger,
	}
}

// WithGenerationTimeout caps the generation stage; past the deadline the
// pipeline degrades the same way it does for any other model failure.
func (s *Service) WithGenerationTimeout(timeout time.Duration) *Service {
	s.genTimeout = timeout
	return s
}

// NewServiceFromConfig wires the default pipeline for a given store and
// model clients.
func NewServiceFromConfig(cfg config.Assistant, store ChunkStore, embedder embeddings.Embedder, llmClient llm.Client, graph PageGraph, logger *log.Logger) *Service {
	retriever := NewRetriever(embedder, store, RetrievalConfig{
		TopK:          cfg.TopK,
		MinSimilarity: cfg.MinSimilarity,
		Timeout:       cfg.RetrievalTimeout,
	}, logger)

	var condenser Condenser = NopCondenser{}
	if llmClient != nil {
		condenser = NewLLMCondenser(llmClient)
	}

	return NewService(
		retriever,
		condenser,
		NewIntentClassifier(cfg.InstitutionShort, cfg.NavDestinations),
		NewPromptBuilder(cfg.InstitutionName, cfg.ContactEmail, cfg.ContactPhone, cfg.SiteURL, cfg.MaxContextChars),
		NewFallbackResponder(cfg.InstitutionName, cfg.ContactEmail, cfg.ContactPhone),
		llmClient,
		graph,
		logger,
	).WithGenerationTimeout(cfg.GenerationTimeout)
}

// Chat runs the pipeline without incremental delivery.
func (s *Service) Chat(ctx context.Context, message string, history []Turn) (Response, error) {
	return s.ChatStream(ctx, message, history, nil, nil)
}

// ChatStream runs the pipeline. metaFn, when set, receives the provenance of
// the retrieved chunks and the turn index after retrieval but before the
// first token, so a transport can emit them out of band. streamFn receives
// tokens as they are produced; its synchronous write is the backpressure (the
// producer blocks until the consumer accepts each token) and ctx cancellation
// aborts the in-flight generation. Whatever fails mid-request, the callback
// sequence terminates and the returned Response carries the full answer.
func (s *Service) ChatStream(ctx context.Context, message string, history []Turn, metaFn func(sources []Source, turnIndex int) error, streamFn func(string) error) (Response, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Response{}, ErrEmptyMessage
	}

	turnIndex := countUserTurns(history) + 1

	intent := IntentGroundedQuestion
	if s.intents != nil {
		intent = s.intents.Classify(message)
	}

	question := s.condense(ctx, history, message)

	// Soft intents get a direct instruction; retrieval would only add noise.
	var chunks []RetrievedChunk
	if intent == IntentGroundedQuestion {
		retrieved, err := s.retriever.Retrieve(ctx, question)
		if err != nil {
			s.logger.Printf("retrieval error: %v", err)
		} else {
			chunks = retrieved
		}
	}

	sources := s.buildSources(ctx, chunks)
	if metaFn != nil {
		if err := metaFn(sources, turnIndex); err != nil {
			return Response{}, err
		}
	}

	prompt := s.prompts.BuildPrompt(chunks, question, intent)

	answer, err := s.generate(ctx, prompt, question, chunks, streamFn)
	if err != nil {
		return Response{}, err
	}

	return Response{
		Answer:    answer,
		Sources:   sources,
		TurnIndex: turnIndex,
	}, nil
}

func (s *Service) condense(ctx context.Context, history []Turn, message string) string {
	if s.condenser == nil || len(history) == 0 {
		return message
	}

	question, err := s.condenser.Condense(ctx, history, message)
	if err != nil {
		s.logger.Printf("condense failed, using raw message: %v", err)
		return message
	}
	if strings.TrimSpace(question) == "" {
		return message
	}
	return question
}

// generate streams the model answer, splicing in the fallback responder when
// the backend is over quota and an apology on anything else. It returns an
// error only when the caller's streamFn rejects a token (client gone).
func (s *Service) generate(ctx context.Context, prompt, question string, chunks []RetrievedChunk, streamFn func(string) error) (string, error) {
	emit := func(token string) error {
		if streamFn == nil || token == "" {
			return nil
		}
		return streamFn(token)
	}

	if s.llm == nil {
		answer := s.fallback.Respond(question, chunks)
		return answer, emit(answer)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: prompt},
		{Role: llm.RoleUser, Content: FormatQuestion(question)},
	}

	genCtx := ctx
	if s.genTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.genTimeout)
		defer cancel()
	}

	var builder strings.Builder
	var genErr error

	if streamClient, ok := s.llm.(llm.StreamClient); ok && streamFn != nil {
		genErr = streamClient.GenerateStream(genCtx, messages, func(token string) error {
			builder.WriteString(token)
			return emit(token)
		})
	} else {
		var generated string
		generated, genErr = s.llm.Generate(genCtx, messages)
		if genErr == nil {
			builder.WriteString(generated)
			if err := emit(generated); err != nil {
				return "", err
			}
		}
	}

	if genErr == nil {
		return strings.TrimSpace(builder.String()), nil
	}

	if ctx.Err() != nil {
		// Caller is gone; nothing left to deliver.
		return strings.TrimSpace(builder.String()), nil
	}

	if errors.Is(genErr, llm.ErrQuotaExceeded) {
		s.logger.Printf("generation quota exceeded, using canned response: %v", genErr)
		canned := s.fallback.Respond(question, chunks)
		remainder := canned
		if builder.Len() > 0 {
			remainder = "\n\n" + canned
		}
		builder.WriteString(remainder)
		return strings.TrimSpace(builder.String()), emit(remainder)
	}

	s.logger.Printf("generation failed: %v", genErr)
	remainder := apologyMessage
	if builder.Len() > 0 {
		remainder = "\n\n" + apologyMessage
	}
	builder.WriteString(remainder)
	return strings.TrimSpace(builder.String()), emit(remainder)
}

func (s *Service) buildSources(ctx context.Context, chunks []RetrievedChunk) []Source {
	if len(chunks) == 0 {
		return nil
	}

	related := map[string][]RelatedPage{}
	if s.graph != nil {
		docIDs := make([]string, 0, len(chunks))
		seen := make(map[string]struct{}, len(chunks))
		for _, chunk := range chunks {
			if _, ok := seen[chunk.DocumentID]; ok {
				continue
			}
			seen[chunk.DocumentID] = struct{}{}
			docIDs = append(docIDs, chunk.DocumentID)
		}

		pages, err := s.graph.RelatedPages(ctx, docIDs)
		if err != nil {
			s.logger.Printf("related pages lookup failed: %v", err)
		} else {
			related = pages
		}
	}

	sources := make([]Source, 0, len(chunks))
	for _, chunk := range chunks {
		sources = append(sources, Source{
			Title:      chunk.Title,
			URL:        chunk.URL,
			Snippet:    excerpt(chunk.Content, sourceSnippetChars),
			Similarity: chunk.Similarity,
			Related:    related[chunk.DocumentID],
		})
	}
	return sources
}

func countUserTurns(history []Turn) int {
	count := 0
	for _, turn := range history {
		if turn.Sender == SenderUser {
			count++
		}
	}
	return count
}
