// Package main implements the chunkforge API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/chunkforge/chunkforge/engine/domain"
	"github.com/chunkforge/chunkforge/engine/extract"
	"github.com/chunkforge/chunkforge/engine/ingest"
	"github.com/chunkforge/chunkforge/engine/search"
	"github.com/chunkforge/chunkforge/engine/semantic"
	"github.com/chunkforge/chunkforge/engine/store"
	"github.com/chunkforge/chunkforge/engine/vectorize"
	"github.com/chunkforge/chunkforge/pkg/metrics"
	"github.com/chunkforge/chunkforge/pkg/mid"
	"github.com/chunkforge/chunkforge/pkg/mistral"
	"github.com/chunkforge/chunkforge/pkg/openai"
)

// Config holds all environment-based configuration.
type Config struct {
	Port           string
	DBPath         string
	OpenAIKey      string
	OpenAIBaseURL  string
	MistralKey     string
	MistralBaseURL string
	QdrantURL      string
	Collection     string
	NATSURL        string
	CORSOrigin     string
	APITokens      string
}

func loadConfig() Config {
	return Config{
		Port:           envOr("PORT", "8080"),
		DBPath:         envOr("DB_PATH", "chunkforge.db"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		MistralKey:     os.Getenv("MISTRAL_API_KEY"),
		MistralBaseURL: os.Getenv("MISTRAL_BASE_URL"),
		QdrantURL:      os.Getenv("QDRANT_URL"),
		Collection:     envOr("QDRANT_COLLECTION", "chunks"),
		NATSURL:        os.Getenv("NATS_URL"),
		CORSOrigin:     envOr("CORS_ORIGIN", "*"),
		APITokens:      os.Getenv("API_TOKENS"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// Missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	embedder := openai.NewClient(openai.Config{
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIKey,
	})
	ocrClient := mistral.NewClient(mistral.Config{
		BaseURL: cfg.MistralBaseURL,
		APIKey:  cfg.MistralKey,
	})

	// --- Optional Qdrant mirror ---
	var vectorStore *semantic.VectorStore
	var vecIndex vectorize.Index
	var searchIndex search.Index
	if cfg.QdrantURL != "" {
		vectorStore, err = semantic.New(cfg.QdrantURL, cfg.Collection)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer vectorStore.Close()
		if err := vectorStore.EnsureCollection(ctx, domain.ModelTextEmbedding3Small.Dimensions()); err != nil {
			logger.Warn("qdrant collection setup failed, mirror disabled", "err", err)
			vectorStore = nil
		} else {
			vecIndex = vectorStore
			searchIndex = vectorStore
		}
	}

	// --- Optional NATS event mirror ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("chunkforge-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
	}

	reg := metrics.New()
	extractor := extract.New()
	api := &apiServer{
		store:     db,
		extractor: extractor,
		writer:    ingest.NewWriter(db, logger),
		preparer:  &ingest.Preparer{Extractor: extractor, OCR: ocrClient, Log: logger},
		pipeline:  vectorize.New(db, embedder, vecIndex, logger),
		searcher:  search.New(db, embedder, searchIndex, logger),
		vectors:   vectorStore,
		nats:      nc,
		metrics:   reg,
		log:       logger,
	}

	auth := newAuthenticator(cfg.APITokens)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("GET /metrics", reg.Handler())
	mux.Handle("GET /api/projects", auth.wrap(api.handleListProjects))
	mux.Handle("POST /api/projects", auth.wrap(api.handleCreateProject))
	mux.Handle("GET /api/projects/{id}", auth.wrap(api.handleGetProject))
	mux.Handle("DELETE /api/projects/{id}", auth.wrap(api.handleDeleteProject))
	mux.Handle("POST /api/projects/{id}/vectorize", auth.wrap(api.handleVectorize))
	mux.Handle("POST /api/search", auth.wrap(api.handleSearch))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("chunkforge-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
