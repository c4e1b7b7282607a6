// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator assembles the question-answering service.
//
// This package owns startup order and teardown order. The working parts
// (classification, retrieval, generation, persistence) live in the
// subpackages and are wired here:
//
//   - stats: read-only SQLite statistics store behind the text-to-SQL path
//   - conversation: SQLite conversation store plus the retention sweeper
//   - index: in-memory vector index, optionally hot-reloaded from disk
//   - embedding: provider-backed query embedder with optional disk cache
//   - pipeline: the per-request fallback state machine
//   - routes/handlers: the HTTP surface
//
// # Usage
//
//	settings, err := config.Load(os.Getenv("SPORTSEE_CONFIG"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := orchestrator.New(settings)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/shah-data-scientist/Sports-See-sub000/services/embedding"
	"github.com/shah-data-scientist/Sports-See-sub000/services/llm"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/config"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/conversation"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/index"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/observability"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/pipeline"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/prompt"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/routes"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/sqlgen"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/stats"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the orchestrator lifecycle contract.
//
// # Description
//
// Run blocks serving HTTP until the server stops. Router exposes the
// configured engine for integration tests. Shutdown releases every
// resource the constructor acquired and is safe to call more than once.
//
// # Thread Safety
//
// Implementations are safe for concurrent use. Run is called at most
// once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until it stops.
	Run() error

	// Router returns the configured gin engine for testing.
	Router() *gin.Engine

	// Shutdown stops background work and closes the stores.
	Shutdown(ctx context.Context) error
}

// =============================================================================
// Implementation
// =============================================================================

// service is the production Service implementation.
//
// # Fields
//
//   - settings: Validated configuration, read-only after New.
//   - router: Gin engine with the full route table.
//   - registry: Private metrics registry served at /metrics.
//   - statsStore / convStore: The two SQLite stores.
//   - retention: Background conversation sweeper; nil when disabled.
//   - watcher: Index hot-reloader; nil when disabled.
//   - embedCache: On-disk embedding cache; nil when disabled.
//   - tracerCleanup: Flushes the span exporter; nil when tracing is off.
//
// All fields are set during New and never mutated afterwards; Shutdown
// only releases them.
type service struct {
	settings config.Settings
	router   *gin.Engine
	registry *prometheus.Registry

	statsStore *stats.Store
	convStore  *conversation.Store
	retention  *conversation.Retention
	provider   *index.Provider
	watcher    *index.Watcher
	embedCache *embedding.Cache

	tracerCleanup func(context.Context)

	shutdownOnce sync.Once
	shutdownErr  error
}

// =============================================================================
// Constructor
// =============================================================================

// New wires every component from validated settings.
//
// # Description
//
// Initialization order follows the dependency graph: tracing and metrics
// first (everything else reports through them), then the stores, the
// index, the providers, the pipeline, and finally the router.
// Any failure releases whatever was already acquired before returning.
//
// # Inputs
//
//   - settings: A record that already passed config validation.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: The first initialization failure, with prior acquisitions
//     released.
func New(settings config.Settings) (Service, error) {
	s := &service{settings: settings}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var metrics *observability.Metrics
	if settings.MetricsEnabled {
		metrics = observability.NewMetrics(s.registry)
	}

	s.statsStore, err = stats.Open(stats.Config{
		Path:     settings.StatsDBPath,
		MaxConns: settings.SQLMaxConns,
		Timeout:  time.Duration(settings.SQLTimeoutMS) * time.Millisecond,
		RowCap:   settings.SQLRowCap,
	})
	if err != nil {
		s.release()
		return nil, fmt.Errorf("open statistics store: %w", err)
	}

	s.convStore, err = conversation.Open(conversation.Config{
		Path:         settings.ConversationDBPath,
		HistoryTurns: settings.ConversationHistoryTurns,
	})
	if err != nil {
		s.release()
		return nil, fmt.Errorf("open conversation store: %w", err)
	}

	if err := s.initRetention(); err != nil {
		s.release()
		return nil, fmt.Errorf("start retention sweeper: %w", err)
	}

	if err := s.initIndex(); err != nil {
		s.release()
		return nil, fmt.Errorf("load vector index: %w", err)
	}

	embedder, err := s.initEmbedder(metrics)
	if err != nil {
		s.release()
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}

	chat, err := llm.NewOpenAIClient(settings.OpenAIAPIKey,
		settings.OpenAIBaseURL, settings.ChatModel)
	if err != nil {
		s.release()
		return nil, fmt.Errorf("initialize chat client: %w", err)
	}

	pipe, err := pipeline.New(pipeline.Config{
		SQL:          sqlgen.New(chat, s.statsStore, nil),
		Index:        s.provider,
		Embedder:     embedder,
		Chat:         chat,
		Reader:       s.convStore,
		Writer:       s.convStore,
		Assembler:    prompt.New(settings.AppName),
		Metrics:      metrics,
		Temperature:  settings.ChatTemperature,
		HistoryTurns: settings.ConversationHistoryTurns,
	})
	if err != nil {
		s.release()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	s.initRouter(pipe)
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until it stops. Resources are
// released when it returns.
func (s *service) Run() error {
	defer func() {
		if err := s.Shutdown(context.Background()); err != nil {
			slog.Warn("shutdown finished with errors", "error", err)
		}
	}()

	addr := fmt.Sprintf(":%d", s.settings.Port)
	slog.Info("starting orchestrator server", "addr", addr)
	return s.router.Run(addr)
}

// Router returns the configured gin engine.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Shutdown stops background work and closes the stores. Safe to call
// multiple times; later calls return the first result.
func (s *service) Shutdown(_ context.Context) error {
	s.shutdownOnce.Do(func() {
		if s.watcher != nil {
			s.watcher.Stop()
		}
		if s.retention != nil {
			s.retention.Stop()
		}

		var errs []error
		if s.embedCache != nil {
			if err := s.embedCache.Close(); err != nil {
				errs = append(errs, fmt.Errorf("embed cache: %w", err))
			}
		}
		if s.convStore != nil {
			if err := s.convStore.Close(); err != nil {
				errs = append(errs, fmt.Errorf("conversation store: %w", err))
			}
		}
		if s.statsStore != nil {
			if err := s.statsStore.Close(); err != nil {
				errs = append(errs, fmt.Errorf("statistics store: %w", err))
			}
		}
		if s.tracerCleanup != nil {
			s.tracerCleanup(context.Background())
		}

		if len(errs) > 0 {
			s.shutdownErr = fmt.Errorf("shutdown: %v", errs)
		}
		slog.Info("orchestrator shut down")
	})
	return s.shutdownErr
}

// release is the constructor's failure path; it reuses Shutdown so a
// half-built service never leaks a store handle.
func (s *service) release() {
	_ = s.Shutdown(context.Background())
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer configures the global tracer provider.
//
// # Description
//
// Three modes keyed off the configured endpoint: empty leaves the no-op
// global in place (tracing off), the literal "stdout" pretty-prints
// spans for local debugging, anything else is treated as an OTLP/gRPC
// collector address.
//
// # Outputs
//
//   - func(context.Context): Exporter flush, nil when tracing is off.
//   - error: Exporter construction failure.
func (s *service) initTracer() (func(context.Context), error) {
	endpoint := s.settings.OTelEndpoint
	if endpoint == "" {
		slog.Info("tracing disabled, no collector endpoint configured")
		return nil, nil
	}

	ctx := context.Background()
	var exporter sdktrace.SpanExporter
	var err error

	if endpoint == "stdout" {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
	} else {
		conn, dialErr := grpc.NewClient(endpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			return nil, fmt.Errorf("create gRPC connection: %w", dialErr)
		}
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("sportsee-orchestrator")))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := exporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shut down trace exporter", "error", err)
		}
	}, nil
}

// initRetention starts the conversation retention sweeper when enabled.
func (s *service) initRetention() error {
	if !s.settings.RetentionEnabled {
		return nil
	}

	s.retention = conversation.NewRetention(s.convStore, conversation.RetentionConfig{
		Interval: time.Duration(s.settings.RetentionIntervalMin) * time.Minute,
		MaxIdle:  time.Duration(s.settings.RetentionMaxIdleHours) * time.Hour,
	})
	if err := s.retention.Start(context.Background()); err != nil {
		return err
	}
	slog.Info("conversation retention sweeper started",
		"interval_min", s.settings.RetentionIntervalMin,
		"max_idle_hours", s.settings.RetentionMaxIdleHours)
	return nil
}

// initIndex loads the vector index from disk and optionally starts the
// hot-reload watcher.
func (s *service) initIndex() error {
	opts := index.Options{
		QualityThreshold: s.settings.QualityThreshold,
		Oversample:       s.settings.RetrievalOversample,
	}

	idx, err := index.Load(s.settings.IndexMatrixPath, s.settings.IndexChunksPath, opts)
	if err != nil {
		return err
	}
	s.provider = index.NewProvider(idx)
	slog.Info("vector index loaded",
		"version", idx.VersionTag(), "chunks", idx.Size(), "dim", idx.Dim())

	if !s.settings.IndexWatch {
		return nil
	}
	s.watcher, err = index.NewWatcher(s.provider,
		s.settings.IndexMatrixPath, s.settings.IndexChunksPath, opts)
	if err != nil {
		return err
	}
	if err := s.watcher.Start(); err != nil {
		return err
	}
	slog.Info("index hot-reload watcher started")
	return nil
}

// initEmbedder builds the provider-backed embedder, with the on-disk
// cache in front when a cache directory is configured.
func (s *service) initEmbedder(metrics *observability.Metrics) (embedding.Embedder, error) {
	var cache *embedding.Cache
	if dir := s.settings.EmbedCacheDir; dir != "" {
		var err error
		cache, err = embedding.NewCache(dir)
		if err != nil {
			return nil, fmt.Errorf("open embedding cache: %w", err)
		}
		s.embedCache = cache
		metrics.WatchEmbedCache(cache.Stats)
		slog.Info("embedding cache enabled", "dir", dir)
	}

	return embedding.NewClient(embedding.Config{
		APIKey:    s.settings.OpenAIAPIKey,
		BaseURL:   s.settings.OpenAIBaseURL,
		Model:     s.settings.EmbeddingModel,
		Dim:       s.settings.EmbeddingDim,
		RateLimit: s.settings.EmbedRateLimit,
		Cache:     cache,
	})
}

// initRouter assembles the gin engine and registers the route table.
func (s *service) initRouter(pipe *pipeline.Pipeline) {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("sportsee-orchestrator"))

	routes.SetupRoutes(s.router, pipe, s.convStore, s.statsStore, s.provider,
		s.registry, time.Duration(s.settings.RequestDeadlineMS)*time.Millisecond)
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
