// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/usecases"
)

// Query expansion modes.
const (
	ExpansionLLM   = "llm"
	ExpansionTerms = "terms"
	ExpansionOff   = "off"
)

// Config contains all runtime settings for the answer engine.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	LogLevel         string
	LogFormat        string
	MetricsNamespace string

	// Retrieval
	MaxSearchResults      int
	MaxContextLength      int
	RelevanceThreshold    float64
	QueryExpansion        string
	ExpansionHistoryTurns int
	DomainKeywords        []string

	// Memory
	HistoryWindow      int
	SessionIdleTimeout time.Duration

	// Completion
	MaxTokens   int
	Temperature float64

	EmbedTimeout      time.Duration
	SearchTimeout     time.Duration
	ExpansionTimeout  time.Duration
	CompletionTimeout time.Duration

	LLMProvider          string
	EmbeddingProvider    string
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIChatModel      string
	OpenAIEmbeddingModel string
	AnthropicAPIKey      string
	AnthropicModel       string
	OllamaURL            string
	OllamaChatModel      string
	OllamaEmbedModel     string

	VectorBackend string
	DataDir       string
	DatabaseURL   string
	ChunkSize     int
	ChunkOverlap  int

	DocumentsDir    string
	WatchExtensions []string
	PDFServiceURL   string
	LoadExampleData bool
}

// Load reads environment variables, applies defaults and validates ranges.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:             envOrDefault("APP_BIND_ADDR", ":8080"),
		LogLevel:             envOrDefault("LOG_LEVEL", "info"),
		LogFormat:            envOrDefault("LOG_FORMAT", "json"),
		MetricsNamespace:     envOrDefault("METRICS_NAMESPACE", "hybridrag"),
		QueryExpansion:       strings.ToLower(envOrDefault("QUERY_EXPANSION", ExpansionLLM)),
		DomainKeywords:       listFromEnv("DOMAIN_KEYWORDS"),
		LLMProvider:          strings.ToLower(envOrDefault("LLM_PROVIDER", "openai")),
		EmbeddingProvider:    strings.ToLower(envOrDefault("EMBEDDING_PROVIDER", "openai")),
		OpenAIAPIKey:         envTrimmed("OPENAI_API_KEY"),
		OpenAIBaseURL:        envTrimmed("OPENAI_BASE_URL"),
		OpenAIChatModel:      envOrDefault("OPENAI_CHAT_MODEL", "gpt-3.5-turbo"),
		OpenAIEmbeddingModel: envOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		AnthropicAPIKey:      envTrimmed("ANTHROPIC_API_KEY"),
		AnthropicModel:       envOrDefault("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		OllamaURL:            envOrDefault("OLLAMA_URL", "http://localhost:11434"),
		OllamaChatModel:      envOrDefault("OLLAMA_CHAT_MODEL", "llama3.2"),
		OllamaEmbedModel:     envOrDefault("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		VectorBackend:        strings.ToLower(envOrDefault("VECTOR_BACKEND", "sqlite")),
		DataDir:              envOrDefault("DATA_DIR", "./data"),
		DatabaseURL:          envTrimmed("DATABASE_URL"),
		DocumentsDir:         envTrimmed("DOCUMENTS_DIR"),
		WatchExtensions:      listFromEnv("WATCH_EXTENSIONS"),
		PDFServiceURL:        envOrDefault("PDF_SERVICE_URL", "http://localhost:8081"),

		ShutdownTimeout:       15 * time.Second,
		MaxSearchResults:      5,
		MaxContextLength:      4000,
		RelevanceThreshold:    0.3,
		ExpansionHistoryTurns: 4,
		HistoryWindow:         5,
		SessionIdleTimeout:    30 * time.Minute,
		MaxTokens:             500,
		Temperature:           0.3,
		EmbedTimeout:          10 * time.Second,
		SearchTimeout:         10 * time.Second,
		ExpansionTimeout:      10 * time.Second,
		CompletionTimeout:     60 * time.Second,
		ChunkSize:             500,
		ChunkOverlap:          50,
	}
	if len(cfg.WatchExtensions) == 0 {
		cfg.WatchExtensions = []string{".txt", ".md", ".pdf"}
	}

	var err error
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"SESSION_IDLE_TIMEOUT", &cfg.SessionIdleTimeout},
		{"EMBED_TIMEOUT", &cfg.EmbedTimeout},
		{"SEARCH_TIMEOUT", &cfg.SearchTimeout},
		{"EXPANSION_TIMEOUT", &cfg.ExpansionTimeout},
		{"COMPLETION_TIMEOUT", &cfg.CompletionTimeout},
	} {
		if *d.dst, err = durationFromEnv(d.key, *d.dst); err != nil {
			return Config{}, err
		}
	}
	for _, i := range []struct {
		key string
		dst *int
	}{
		{"MAX_SEARCH_RESULTS", &cfg.MaxSearchResults},
		{"MAX_CONTEXT_LENGTH", &cfg.MaxContextLength},
		{"EXPANSION_HISTORY_TURNS", &cfg.ExpansionHistoryTurns},
		{"HISTORY_WINDOW", &cfg.HistoryWindow},
		{"MAX_TOKENS_RESPONSE", &cfg.MaxTokens},
		{"CHUNK_SIZE", &cfg.ChunkSize},
		{"CHUNK_OVERLAP", &cfg.ChunkOverlap},
	} {
		if *i.dst, err = intFromEnv(i.key, *i.dst); err != nil {
			return Config{}, err
		}
	}
	cfg.RelevanceThreshold, err = floatFromEnv("RELEVANCE_THRESHOLD", cfg.RelevanceThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.Temperature, err = floatFromEnv("TEMPERATURE", cfg.Temperature)
	if err != nil {
		return Config{}, err
	}
	cfg.LoadExampleData, err = boolFromEnv("LOAD_EXAMPLE_DATA", false)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects out-of-range or unknown settings.
func (c Config) Validate() error {
	if c.MaxSearchResults < 1 {
		return fmt.Errorf("MAX_SEARCH_RESULTS must be at least 1")
	}
	if c.MaxContextLength < 1 {
		return fmt.Errorf("MAX_CONTEXT_LENGTH must be at least 1")
	}
	if c.RelevanceThreshold < -1 || c.RelevanceThreshold > 1 {
		return fmt.Errorf("RELEVANCE_THRESHOLD must be within [-1, 1]")
	}
	if c.ExpansionHistoryTurns < 0 {
		return fmt.Errorf("EXPANSION_HISTORY_TURNS must be >= 0")
	}
	if c.HistoryWindow < 1 {
		return fmt.Errorf("HISTORY_WINDOW must be at least 1")
	}
	if c.SessionIdleTimeout < time.Minute {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be at least 1m")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("MAX_TOKENS_RESPONSE must be at least 1")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("TEMPERATURE must be within [0, 2]")
	}
	if c.EmbedTimeout <= 0 || c.SearchTimeout <= 0 || c.ExpansionTimeout <= 0 || c.CompletionTimeout <= 0 {
		return fmt.Errorf("EMBED_TIMEOUT, SEARCH_TIMEOUT, EXPANSION_TIMEOUT and COMPLETION_TIMEOUT must be positive")
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("CHUNK_SIZE must be at least 1")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be within [0, CHUNK_SIZE)")
	}

	switch c.QueryExpansion {
	case ExpansionLLM, ExpansionTerms, ExpansionOff:
	default:
		return fmt.Errorf("invalid QUERY_EXPANSION: %q (expected llm|terms|off)", c.QueryExpansion)
	}
	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
			return fmt.Errorf("LLM_PROVIDER=openai requires OPENAI_API_KEY or OPENAI_BASE_URL")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("LLM_PROVIDER=anthropic requires ANTHROPIC_API_KEY")
		}
	case "ollama":
	default:
		return fmt.Errorf("invalid LLM_PROVIDER: %q (expected openai|anthropic|ollama)", c.LLMProvider)
	}
	switch c.EmbeddingProvider {
	case "openai":
		if c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
			return fmt.Errorf("EMBEDDING_PROVIDER=openai requires OPENAI_API_KEY or OPENAI_BASE_URL")
		}
	case "ollama":
	default:
		return fmt.Errorf("invalid EMBEDDING_PROVIDER: %q (expected openai|ollama)", c.EmbeddingProvider)
	}
	switch c.VectorBackend {
	case "sqlite", "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("VECTOR_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("invalid VECTOR_BACKEND: %q (expected sqlite|postgres|memory)", c.VectorBackend)
	}
	return nil
}

// RetrievalOptions maps the retrieval settings onto the orchestrator's options.
func (c Config) RetrievalOptions() usecases.RetrievalOptions {
	return usecases.RetrievalOptions{
		MaxChunks:          c.MaxSearchResults,
		ContextBudget:      c.MaxContextLength,
		RelevanceThreshold: c.RelevanceThreshold,
		EmbedTimeout:       c.EmbedTimeout,
		SearchTimeout:      c.SearchTimeout,
		ExpansionTimeout:   c.ExpansionTimeout,
	}
}

// SynthesisOptions maps the completion settings onto the synthesizer's options.
func (c Config) SynthesisOptions() usecases.SynthesisOptions {
	return usecases.SynthesisOptions{
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Timeout:     c.CompletionTimeout,
	}
}

func envOrDefault(key, fallback string) string {
	v := envTrimmed(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string) []string {
	v := envTrimmed(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
