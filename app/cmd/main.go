package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docgen/app/config"
	"docgen/app/usecase"
	"docgen/internal/domain/entity"
	"docgen/internal/domain/repository"
	"docgen/internal/infrastructure/llm"
	"docgen/internal/infrastructure/store/filesystem"
	"docgen/internal/infrastructure/store/memory"
	mongorepo "docgen/internal/infrastructure/store/mongodb"
	"docgen/internal/infrastructure/store/redisstore"
	"docgen/internal/infrastructure/transport"
	"docgen/internal/infrastructure/validator"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to an HCL config file")
	flag.Parse()

	// load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories
	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store failed", "backend", cfg.Store.Backend, "err", err)
		os.Exit(1)
	}
	defer stores.close()

	var genOpts []usecase.GenerationOption
	if cfg.Generation.ArchiveDir != "" {
		archive, err := filesystem.NewContentArchive(cfg.Generation.ArchiveDir)
		if err != nil {
			logger.Error("init content archive failed", "dir", cfg.Generation.ArchiveDir, "err", err)
			os.Exit(1)
		}
		genOpts = append(genOpts, usecase.WithArchive(archive))
	}

	// LLM client
	backend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("init llm backend failed", "backend", cfg.LLM.Backend, "err", err)
		os.Exit(1)
	}
	llmClient := llm.NewClient(backend, llm.ClientConfig{
		Model:         cfg.LLM.Model,
		Timeout:       cfg.LLM.Timeout,
		MaxRetries:    cfg.LLM.MaxRetries,
		BaseDelay:     cfg.LLM.BaseDelay,
		MaxConcurrent: cfg.LLM.MaxConcurrent,
		Params: llm.GenerationParams{
			Temperature:     cfg.LLM.Temperature,
			TopP:            cfg.LLM.TopP,
			TopK:            cfg.LLM.TopK,
			MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		},
	}, logger)

	var validatorOpts []validator.Option
	if cfg.Generation.StrictValidation {
		validatorOpts = append(validatorOpts, validator.WithStrictCounts(entity.MinSectionItems, entity.MaxSectionItems))
	}

	// Usecases / services
	generationSvc := usecase.NewGenerationService(
		stores.generations,
		stores.targets,
		llmClient,
		usecase.NewExplainerPromptAssembler(),
		validator.NewContentValidator(validatorOpts...),
		logger,
		usecase.GenerationConfig{
			MaxRetries: cfg.Generation.MaxRetries,
			BaseDelay:  cfg.Generation.BaseDelay,
			MaxDelay:   cfg.Generation.MaxDelay,
		},
		genOpts...,
	)

	dispatcher := usecase.NewDispatcher(generationSvc, cfg.Dispatcher.Workers, cfg.Dispatcher.QueueSize, logger)
	dispatcherCtx, dispatcherCancel := context.WithCancel(context.Background())
	defer dispatcherCancel()
	dispatcher.Start(dispatcherCtx) // background workers

	logger.Info("generation configured",
		"llm_backend", backend.Name(),
		"model", cfg.LLM.Model,
		"store", cfg.Store.Backend,
		"strict_validation", cfg.Generation.StrictValidation,
		"worst_case_duration", cfg.WorstCaseDuration().String(),
	)

	// Transport (HTTP handlers)
	handler := transport.NewGenerationHandler(
		dispatcher,
		generationSvc,
		logger,
		transport.WithHealthCheck(cfg.Store.Backend, stores.ping),
	)

	// Router and server
	r := mux.NewRouter()
	handler.RegisterRoutes(r)
	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(corsHandler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start HTTP server
	go func() {
		logger.Info("starting HTTP server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "err", err)
			cancel()
		}
	}()

	// OS signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	// Shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}

	logger.Info("stopping dispatcher")
	stopped := make(chan struct{})
	go func() {
		dispatcher.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		// running generations are cancelled and persist themselves as failed
		logger.Warn("dispatcher did not drain in time, cancelling running generations")
		dispatcherCancel()
		<-stopped
	}

	logger.Info("service stopped")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llm.Backend, error) {
	switch cfg.LLM.Backend {
	case config.BackendGemini:
		return llm.NewGeminiBackend(ctx, cfg.LLM.GeminiAPIKey)
	case config.BackendOpenAICompat:
		return llm.NewOpenAICompatBackend(cfg.LLM.APIKey, cfg.LLM.BaseURL, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.LLM.Backend)
	}
}

type storeSet struct {
	generations repository.GenerationRepository
	targets     repository.TargetRepository
	ping        transport.HealthCheck
	close       func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storeSet, error) {
	switch cfg.Store.Backend {
	case config.StoreMongo:
		// Connect to MongoDB
		mongoCtx, mongoCancel := context.WithTimeout(ctx, 30*time.Second)
		defer mongoCancel()
		mongoClient, err := mongo.Connect(mongoCtx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := mongoClient.Ping(mongoCtx, nil); err != nil {
			return nil, fmt.Errorf("mongo ping: %w", err)
		}
		logger.Info("connected to mongo", "uri", cfg.Mongo.URI, "db", cfg.Mongo.Database)
		db := mongoClient.Database(cfg.Mongo.Database)

		return &storeSet{
			generations: mongorepo.NewMongoGenerationRepo(db),
			targets:     mongorepo.NewMongoTargetRepo(db, cfg.Mongo.TargetsCollection),
			ping:        func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
			close: func() {
				disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				logger.Info("disconnecting mongo")
				if err := mongoClient.Disconnect(disconnectCtx); err != nil {
					logger.Error("mongo disconnect error", "err", err)
				}
			},
		}, nil

	case config.StoreRedis:
		store, err := redisstore.NewStore(redisstore.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		for _, id := range cfg.Store.SeedTargets {
			if err := store.AddTarget(ctx, id); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("seed redis target %s: %w", id, err)
			}
		}
		logger.Info("connected to redis", "addr", cfg.Redis.Addr, "seeded_targets", len(cfg.Store.SeedTargets))

		return &storeSet{
			generations: store,
			targets:     store,
			ping:        store.Ping,
			close: func() {
				if err := store.Close(); err != nil {
					logger.Error("redis close error", "err", err)
				}
			},
		}, nil

	case config.StoreMemory:
		store := memory.NewStore()
		for _, id := range cfg.Store.SeedTargets {
			store.AddTarget(id)
		}
		logger.Warn("using in-memory store, records are lost on restart", "seeded_targets", len(cfg.Store.SeedTargets))

		return &storeSet{
			generations: store,
			targets:     store,
			ping:        func(context.Context) error { return nil },
			close:       func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
