package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type ModelConfig struct {
	Provider  string
	Model     string
	Dimension int
}

// Assistant groups the knobs that shape conversational behaviour: the
// identity used in canned answers, retrieval bounds, and stage timeouts.
type Assistant struct {
	InstitutionName  string
	InstitutionShort string
	ContactEmail     string
	ContactPhone     string
	SiteURL          string
	NavDestinations  []string

	TopK             int
	MinSimilarity    float64
	MaxContextChars  int
	RetrievalTimeout time.Duration

	Temperature       float32
	MaxOutputTokens   int
	GenerationTimeout time.Duration
	MaxEmbedChars     int
}

type Config struct {
	PostgresDSN string
	Neo4jURI    string
	Neo4jUser   string
	Neo4jPass   string

	HTTPAddr string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	Embeddings ModelConfig
	LLM        ModelConfig

	Assistant Assistant
}

func Load() Config {
	return Config{
		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/assistant?sslmode=disable"),
		Neo4jURI:    getEnv("NEO4J_URI", ""),
		Neo4jUser:   getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:   getEnv("NEO4J_PASSWORD", "password"),

		HTTPAddr: getEnv("HTTP_ADDR", ":8085"),

		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		Embeddings: ModelConfig{
			Provider:  getEnv("EMBEDDING_PROVIDER", getEnv("PROVIDER", ProviderOpenAI)),
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: getEnvInt("EMBEDDING_DIMENSION", 1536),
		},
		LLM: ModelConfig{
			Provider: getEnv("LLM_PROVIDER", getEnv("PROVIDER", ProviderOpenAI)),
			Model:    getEnv("LLM_MODEL", "gpt-4o-mini"),
		},

		Assistant: Assistant{
			InstitutionName:  getEnv("INSTITUTION_NAME", "Instituto de Investigación Altamira"),
			InstitutionShort: getEnv("INSTITUTION_SHORT_NAME", "Altamira"),
			ContactEmail:     getEnv("CONTACT_EMAIL", "contacto@altamira.edu"),
			ContactPhone:     getEnv("CONTACT_PHONE", "+51 1 555 0100"),
			SiteURL:          getEnv("SITE_URL", "https://altamira.edu"),
			NavDestinations:  getEnvList("NAV_DESTINATIONS", []string{"inicio", "servicios", "sucursales", "investigación", "promociones", "galería", "contacto"}),

			TopK:             getEnvInt("RETRIEVAL_TOP_K", 5),
			MinSimilarity:    getEnvFloat("MIN_SIMILARITY", 0.35),
			MaxContextChars:  getEnvInt("MAX_CONTEXT_CHARS", 6000),
			RetrievalTimeout: getEnvDuration("RETRIEVAL_TIMEOUT", 5*time.Second),

			Temperature:       float32(getEnvFloat("TEMPERATURE", 0.2)),
			MaxOutputTokens:   getEnvInt("MAX_OUTPUT_TOKENS", 300),
			GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT", 60*time.Second),
			MaxEmbedChars:     getEnvInt("MAX_EMBED_INPUT_CHARS", 8000),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
