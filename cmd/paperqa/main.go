package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"paperqa/internal/config"
	"paperqa/internal/domain"
	"paperqa/internal/embedding"
	"paperqa/internal/llm"
	"paperqa/internal/pdf"
	"paperqa/internal/pipeline"
	"paperqa/internal/server"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./paperqa.yaml if not provided)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if cfgPath == "" {
		cfg, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to open log destination: %v", err)
	}
	defer closeLog()

	// Text generation is mandatory; without it every request would fail.
	gen, err := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKeyEnv:   cfg.LLM.APIKeyEnv,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})
	if err != nil {
		log.Fatalf("llm client init failed: %v", err)
	}

	// Embeddings are optional; without them retrieval degrades to unranked
	// fixed-size chunks.
	var embedder domain.Embedder
	if embClient, err := embedding.NewClient(embedding.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKeyEnv:  cfg.Embedding.APIKeyEnv,
		Model:      cfg.Embedding.Model,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Embedding.MaxRetries,
	}); err != nil {
		logger.Warn("embedding client unavailable, retrieval degrades to fixed chunks", "err", err)
	} else {
		embedder = embClient
	}

	controller := pipeline.NewController(gen, embedder, pdf.NewParser(gen, logger), pipeline.Config{
		ParseTimeout:      time.Duration(cfg.Pipeline.ParseTimeoutSecs) * time.Second,
		AnalyzeTimeout:    time.Duration(cfg.Pipeline.AnalyzeTimeoutSecs) * time.Second,
		RetrieveTimeout:   time.Duration(cfg.Pipeline.RetrieveTimeoutSecs) * time.Second,
		FilterTimeout:     time.Duration(cfg.Pipeline.FilterTimeoutSecs) * time.Second,
		GenerateTimeout:   time.Duration(cfg.Pipeline.GenerateTimeoutSecs) * time.Second,
		HeartbeatInterval: time.Duration(cfg.Pipeline.HeartbeatSecs) * time.Second,
		RequestTimeout:    time.Duration(cfg.Pipeline.RequestTimeoutSecs) * time.Second,
		ChunkSize:         cfg.Retrieval.ChunkSize,
		ChunkOverlap:      cfg.Retrieval.ChunkOverlap,
		TopK:              cfg.Retrieval.TopK,
		StreamChunkRunes:  cfg.Pipeline.StreamChunkRunes,
	}, logger)

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: server.New(controller, cfg.Server.AllowedOrigins, logger).Routes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", "addr", srv.Addr, "model", cfg.LLM.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "err", err)
	}
}

// newLogger builds the JSON logger from config; an empty file means stdout.
func newLogger(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	out := os.Stdout
	closer := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = f
		closer = func() { _ = f.Close() }
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), closer, nil
}
