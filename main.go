package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/altamira-institute/assistant/api"
	"github.com/altamira-institute/assistant/chat"
	"github.com/altamira-institute/assistant/config"
	"github.com/altamira-institute/assistant/database"
	"github.com/altamira-institute/assistant/embeddings"
	"github.com/altamira-institute/assistant/llm"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "ask":
		askCmd(cfg, logger, os.Args[2:])
	case "load":
		loadCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.HTTPAddr, "listen address for the HTTP API")
	memory := flags.Bool("memory", false, "use an in-memory chunk store instead of Postgres")
	seed := flags.String("seed", "", "JSON snapshot to seed the in-memory store with")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		logger.Fatalf("llm setup: %v", err)
	}

	var store chat.ChunkStore
	var graph chat.PageGraph

	if *memory {
		memStore := chat.NewMemoryChunkStore()
		if *seed != "" {
			chunks, seedErr := chat.ReadSnapshot(*seed)
			if seedErr != nil {
				logger.Fatalf("read seed snapshot: %v", seedErr)
			}
			if seedErr := embedMissing(ctx, embedder, chunks); seedErr != nil {
				logger.Fatalf("embed seed snapshot: %v", seedErr)
			}
			memStore.Load(chunks)
			logger.Printf("seeded in-memory store with %d chunks from %s", len(chunks), *seed)
		}
		store = memStore
	} else {
		pgPool, pgErr := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if pgErr != nil {
			logger.Fatalf("postgres connection: %v", pgErr)
		}
		defer pgPool.Close()
		store = chat.NewPostgresChunkStore(pgPool)

		if cfg.Neo4jURI != "" {
			driver, neoErr := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
			if neoErr != nil {
				logger.Fatalf("neo4j connection: %v", neoErr)
			}
			defer driver.Close(ctx)
			graph = chat.NewNeo4jPageGraph(driver)
		}
	}

	svc := chat.NewServiceFromConfig(cfg.Assistant, store, embedder, llmClient, graph, logger)
	server := &http.Server{
		Addr:    *addr,
		Handler: api.New(svc, logger).Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("server shutdown: %v", err)
		}
	}()

	logger.Printf("assistant listening on %s", *addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server: %v", err)
	}
}

func askCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	question := flags.String("question", "", "question to ask the assistant")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ask flags: %v", err)
	}

	if strings.TrimSpace(*question) == "" {
		fmt.Print("Enter your question: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			*question = scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logger.Fatalf("read question: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		logger.Fatalf("llm setup: %v", err)
	}

	var graph chat.PageGraph
	if cfg.Neo4jURI != "" {
		driver, neoErr := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if neoErr != nil {
			logger.Fatalf("neo4j connection: %v", neoErr)
		}
		defer driver.Close(ctx)
		graph = chat.NewNeo4jPageGraph(driver)
	}

	svc := chat.NewServiceFromConfig(cfg.Assistant, chat.NewPostgresChunkStore(pgPool), embedder, llmClient, graph, logger)

	resp, err := svc.ChatStream(ctx, *question, nil, nil, func(token string) error {
		fmt.Print(token)
		return nil
	})
	if err != nil {
		logger.Fatalf("chat failed: %v", err)
	}
	fmt.Println()

	if len(resp.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for idx, source := range resp.Sources {
			fmt.Printf("%d. %s", idx+1, source.Title)
			if source.URL != "" {
				fmt.Printf(" (%s)", source.URL)
			}
			fmt.Printf(" [similarity %.2f]\n", source.Similarity)
			for _, related := range source.Related {
				fmt.Printf("   Related: %s (%s)\n", related.Title, related.URL)
			}
		}
	}
}

func loadCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("load", flag.ExitOnError)
	file := flags.String("file", "", "path to the JSON snapshot of pre-chunked documents")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse load flags: %v", err)
	}
	if strings.TrimSpace(*file) == "" {
		logger.Fatal("load requires --file")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	chunks, err := chat.ReadSnapshot(*file)
	if err != nil {
		logger.Fatalf("read snapshot: %v", err)
	}
	if len(chunks) == 0 {
		logger.Println("snapshot contains no chunks")
		return
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}
	if err := embedMissing(ctx, embedder, chunks); err != nil {
		logger.Fatalf("embed chunks: %v", err)
	}

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	if err := database.EnsureKnowledgeSchema(ctx, pgPool, cfg.Embeddings.Dimension); err != nil {
		logger.Fatalf("ensure schema: %v", err)
	}

	store := chat.NewPostgresChunkStore(pgPool)
	if err := store.InsertChunks(ctx, chunks); err != nil {
		logger.Fatalf("insert chunks: %v", err)
	}

	logger.Printf("loaded %d chunks from %s", len(chunks), *file)
}

// embedMissing fills in vectors for snapshot chunks that ship without one.
func embedMissing(ctx context.Context, embedder embeddings.Embedder, chunks []chat.DocumentChunk) error {
	for i := range chunks {
		if len(chunks[i].Embedding) > 0 {
			continue
		}
		vector, err := embedder.Embed(ctx, chunks[i].Content)
		if err != nil {
			return fmt.Errorf("embed chunk %s: %w", chunks[i].ID, err)
		}
		chunks[i].Embedding = vector
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: assistant <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Start the HTTP chat API (use --memory --seed file.json for a single-binary setup)")
	fmt.Println("  ask      Ask a one-shot question from the terminal")
	fmt.Println("  load     Import a JSON snapshot of pre-chunked documents into Postgres")
}
