// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command rosterquery starts the roster query API server.
//
// The server answers natural-language questions about a student roster CSV,
// scoped to the asking user's role (grade and class). Questions are turned
// into structured conditions by a language model when one is configured,
// with a keyword rule fallback that keeps the service answering offline.
//
// Usage:
//
//	go run ./cmd/rosterquery
//	go run ./cmd/rosterquery -port 9090 -data data/students.csv
//
// With Gemini:
//
//	GEMINI_API_KEY=... go run ./cmd/rosterquery
//
// With Ollama:
//
//	OLLAMA_BASE_URL=http://localhost:11434 OLLAMA_MODEL=llama3 go run ./cmd/rosterquery
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8000/v1/health
//
//	# Ask a question as a grade 8 teacher
//	curl -X POST http://localhost:8000/v1/query \
//	  -H "Content-Type: application/json" \
//	  -d '{"query": "who is the topper in class A?", "role": {"grade": 8, "class_name": "A"}, "sessionId": "demo"}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	"github.com/dumroo-ai/rosterquery/services/llm"
	"github.com/dumroo-ai/rosterquery/services/query"
	"github.com/dumroo-ai/rosterquery/services/query/config"
	"github.com/dumroo-ai/rosterquery/services/roster"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	dataPath := flag.String("data", "", "Path to roster CSV (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
		slog.SetLogLoggerLevel(slog.LevelDebug)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dataPath != "" {
		cfg.DataPath = *dataPath
	}

	// W3C TraceContext propagation so inbound traceparent headers flow
	// through otelgin into the query pipeline spans.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ds, err := roster.Load(cfg.DataPath)
	if err != nil {
		slog.Error("Failed to load roster data",
			slog.String("path", cfg.DataPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	store := roster.NewStore(ds)
	slog.Info("Roster data loaded",
		slog.String("path", cfg.DataPath),
		slog.Int("records", ds.Len()),
	)

	client := buildCompletionClient(cfg)

	cache := query.NewConditionCache(cfg.CacheSize)
	if cfg.CacheDir != "" {
		// Graceful degradation: a broken cache directory costs persistence,
		// not availability.
		if err := cache.OpenPersistence(cfg.CacheDir); err != nil {
			slog.Warn("Condition cache persistence unavailable, continuing in-memory only",
				slog.String("dir", cfg.CacheDir),
				slog.String("error", err.Error()),
			)
		} else {
			slog.Info("Condition cache persistence opened", slog.String("dir", cfg.CacheDir))
		}
	}

	rules, err := query.NewRuleInterpreter()
	if err != nil {
		slog.Error("Failed to load rule vocabulary", slog.String("error", err.Error()))
		os.Exit(1)
	}

	interp := &query.ModelInterpreter{
		Client:  client,
		Rules:   rules,
		Cache:   cache,
		Timeout: time.Duration(cfg.CompletionTimeoutSeconds) * time.Second,
	}
	svc := query.NewService(store, interp)
	svc.Sessions = query.NewSessionStore(cfg.MaxSessionHistory)
	handlers := query.NewHandlers(svc, cache, version, *debug)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("rosterquery"))
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:       12 * time.Hour,
	}))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	query.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	printBanner(cfg.Port, client != nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting rosterquery server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		// Hot-reloads the roster when the CSV changes on disk. Returns on
		// context cancellation; a broken watcher degrades to no reloads.
		if err := store.Watch(ctx, cfg.DataPath); err != nil {
			slog.Warn("Roster file watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down rosterquery server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Server shutdown was not clean", slog.String("error", err.Error()))
		}

		if err := cache.Close(); err != nil {
			slog.Warn("Failed to close condition cache", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// buildCompletionClient picks the completion provider from configuration.
//
// Gemini wins when an API key is present, Ollama when a base URL is set,
// and nil otherwise. A nil client means the rule interpreter answers alone.
func buildCompletionClient(cfg *config.Config) llm.CompletionClient {
	if cfg.GeminiAPIKey != "" {
		client := llm.NewGeminiClientWithConfig(cfg.GeminiAPIKey, cfg.GeminiModel, "")
		slog.Info("Completion provider connected",
			slog.String("provider", "gemini"),
			slog.String("model", client.Model()),
		)
		return client
	}
	if cfg.OllamaBaseURL != "" && cfg.OllamaModel != "" {
		client := llm.NewOllamaClientWithConfig(cfg.OllamaBaseURL, cfg.OllamaModel)
		slog.Info("Completion provider connected",
			slog.String("provider", "ollama"),
			slog.String("model", cfg.OllamaModel),
		)
		return client
	}
	slog.Info("No completion provider configured, answering with rule interpreter only")
	return nil
}

func printBanner(port int, modelEnabled bool) {
	modelStatus := "DISABLED (set GEMINI_API_KEY or OLLAMA_BASE_URL to enable)"
	if modelEnabled {
		modelStatus = "ENABLED"
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                       ROSTERQUERY SERVER                          ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Natural-language questions over role-scoped student records.     ║
║  Model interpreter: %-45s ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/health                        │  ║
║  │                                                             │  ║
║  │ # Ask a question                                            │  ║
║  │ curl -X POST http://localhost:%d/v1/query \               │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"query": "who got the highest quiz score?",          │  ║
║  │        "role": {"grade": 8}, "sessionId": "demo"}'          │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints: /v1/query, /v1/stats, /v1/health, /v1/ready,          ║
║             /v1/info, /metrics                                    ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, modelStatus, port, port)
}
