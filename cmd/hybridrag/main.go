// Command hybridrag serves the hybrid retrieval-augmented answer engine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/0xcro3dile/hybridrag-go/internal/adapters/embedding"
	"github.com/0xcro3dile/hybridrag-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/hybridrag-go/internal/adapters/llm"
	"github.com/0xcro3dile/hybridrag-go/internal/adapters/loader"
	"github.com/0xcro3dile/hybridrag-go/internal/adapters/parser"
	"github.com/0xcro3dile/hybridrag-go/internal/adapters/sessionstore"
	"github.com/0xcro3dile/hybridrag-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/usecases"
	"github.com/0xcro3dile/hybridrag-go/internal/infrastructure/config"
	httpserver "github.com/0xcro3dile/hybridrag-go/internal/infrastructure/http"
	"github.com/0xcro3dile/hybridrag-go/internal/infrastructure/logging"
	"github.com/0xcro3dile/hybridrag-go/internal/infrastructure/metrics"
)

// store is what every vector backend provides.
type store interface {
	ports.VectorStore
	ports.DocumentStore
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(cfg.MetricsNamespace, reg)

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	embedder := newEmbedder(cfg, logger)
	completion := newCompletion(cfg, logger)

	var expander usecases.QueryExpander
	switch cfg.QueryExpansion {
	case config.ExpansionLLM:
		expander = usecases.NewCompletionExpander(completion, cfg.ExpansionHistoryTurns)
	case config.ExpansionTerms:
		expander = usecases.NewTermExpander(cfg.ExpansionHistoryTurns)
	}

	retrievalOpts := cfg.RetrievalOptions()
	retrievalOpts.Logger = logger.With("component", "retrieval")
	retrievalOpts.Observer = m
	retriever := usecases.NewRetrievalOrchestrator(embedder, st, expander, retrievalOpts)

	synthOpts := cfg.SynthesisOptions()
	synthOpts.Logger = logger.With("component", "synthesis")
	synthOpts.Observer = m
	synthesizer := usecases.NewAnswerSynthesizer(completion, synthOpts)

	sessions := sessionstore.NewMemoryStore(cfg.HistoryWindow, cfg.SessionIdleTimeout)
	sessions.SetEvictHook(func(id string) {
		logger.Debug("session expired", "session_id", id)
		m.SetActiveSessions(sessions.Count())
	})
	sessions.StartJanitor(ctx, time.Minute)

	assembler := usecases.NewResponseAssembler(
		usecases.NewQueryRouter(cfg.DomainKeywords),
		retriever,
		synthesizer,
		sessions,
		st,
		logger.With("component", "assembler"),
		m,
	)

	ingest := usecases.NewIngestUseCase(embedder, st, st, cfg.ChunkSize, cfg.ChunkOverlap, logger.With("component", "ingest"))

	if cfg.LoadExampleData {
		n, err := ingest.SeedIfEmpty(ctx, exampleDocuments())
		if err != nil {
			logger.Warn("loading example data failed", "error", err)
		} else if n > 0 {
			logger.Info("example data loaded", "documents", n)
		}
	}

	if cfg.DocumentsDir != "" {
		if err := startDirectorySync(ctx, cfg, ingest, st, logger); err != nil {
			return err
		}
	}

	server := httpserver.New(httpserver.Deps{
		Chat:      assembler,
		Ingest:    ingest,
		Search:    retriever,
		Documents: st,
		Sessions:  sessions,
		Metrics:   m,
		Logger:    logger,
	})
	if err := server.Start(ctx, cfg.BindAddr, cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (store, func(), error) {
	switch cfg.VectorBackend {
	case "postgres":
		pg, err := vectordb.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		return pg, func() { _ = pg.Close() }, nil
	case "memory":
		return vectordb.NewInMemoryStore(), func() {}, nil
	default:
		sq, err := vectordb.NewSQLiteStore(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		return sq, func() { _ = sq.Close() }, nil
	}
}

func newEmbedder(cfg config.Config, logger *slog.Logger) ports.Embedder {
	if cfg.EmbeddingProvider == "ollama" {
		return embedding.NewOllamaAdapter(cfg.OllamaURL, cfg.OllamaEmbedModel, logger)
	}
	return embedding.NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIEmbeddingModel, logger)
}

func newCompletion(cfg config.Config, logger *slog.Logger) ports.Completion {
	switch cfg.LLMProvider {
	case "anthropic":
		return llm.NewAnthropicCompletion(cfg.AnthropicAPIKey, "", cfg.AnthropicModel, logger)
	case "ollama":
		return llm.NewOllamaLLMAdapter(cfg.OllamaURL, cfg.OllamaChatModel, logger)
	default:
		return llm.NewOpenAICompletion(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIChatModel, logger)
	}
}

func startDirectorySync(ctx context.Context, cfg config.Config, ingest *usecases.IngestUseCase, st store, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.DocumentsDir, 0o755); err != nil {
		return fmt.Errorf("creating documents dir: %w", err)
	}

	pdfParser := parser.NewPythonPDFParser(cfg.PDFServiceURL, logger)
	if !pdfParser.IsServiceHealthy(ctx) {
		logger.Warn("pdf service unreachable, pdf files will be skipped until it is up", "url", cfg.PDFServiceURL)
	}

	watcher, err := filewatcher.NewFSNotifyWatcher(cfg.WatchExtensions, logger)
	if err != nil {
		return fmt.Errorf("file watcher init failed: %w", err)
	}

	dirSync := usecases.NewDirectorySync(ingest, st, watcher, []ports.DocumentLoader{
		loader.NewTextLoader(),
		loader.NewPDFLoader(pdfParser, logger),
	}, logger.With("component", "dirsync"))

	n, err := dirSync.Scan(ctx, cfg.DocumentsDir)
	if err != nil {
		logger.Warn("initial scan incomplete", "dir", cfg.DocumentsDir, "error", err)
	}
	logger.Info("documents folder scanned", "dir", cfg.DocumentsDir, "ingested", n)

	go func() {
		if err := dirSync.Run(ctx, cfg.DocumentsDir); err != nil {
			logger.Error("directory sync stopped", "error", err)
		}
	}()
	return nil
}
