package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/logger"
	"github.com/kart-io/version"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/onboard/internal/apiserver/handler"
	"github.com/kart-io/onboard/internal/apiserver/router"
	"github.com/kart-io/onboard/internal/customer"
	"github.com/kart-io/onboard/internal/kb"
	"github.com/kart-io/onboard/internal/kb/store"
	"github.com/kart-io/onboard/internal/onboarding"
	"github.com/kart-io/onboard/pkg/llm"
	kbopts "github.com/kart-io/onboard/pkg/options/kb"
	sessionopts "github.com/kart-io/onboard/pkg/options/session"

	// Register embedding providers.
	_ "github.com/kart-io/onboard/pkg/llm/ollama"
)

// Run assembles the serving stack from the options and blocks until the
// process receives a termination signal.
func Run(opts *Options) error {
	opts.Log.AddInitialField("service.name", "onboard-apiserver")
	opts.Log.AddInitialField("service.version", version.Get().GitVersion)
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting onboarding API server...")

	ctx := context.Background()

	embedProvider, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, map[string]any{
		"base_url":    opts.Embedding.BaseURL,
		"embed_model": opts.Embedding.Model,
		"timeout":     opts.Embedding.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("embedding provider initialized", "provider", embedProvider.Name())

	vectorStore, err := newVectorStore(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = vectorStore.Close(ctx) }()

	retriever := kb.NewRetriever(vectorStore, embedProvider, &kb.RetrieverConfig{
		TopK:      opts.KB.TopK,
		Threshold: float32(opts.KB.Threshold),
	})
	resolver := onboarding.NewBranchResolver(retriever)

	registry, err := onboarding.NewRegistry()
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	customerStore, err := customer.NewStore(opts.SQLite.Path, opts.SQLite.MaxOpenConns)
	if err != nil {
		return fmt.Errorf("failed to open customer store: %w", err)
	}
	defer func() { _ = customerStore.Close() }()
	customers := customer.NewService(customerStore)

	sessions, err := newSessionStore(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = sessions.Close() }()

	engine := onboarding.NewEngine(registry, customers, retriever, resolver, sessions)
	tools := onboarding.NewToolset(registry, customers, retriever)

	h := handler.New(engine, tools, retriever)
	srv := &http.Server{
		Addr:         opts.HTTP.Addr,
		Handler:      router.New(h),
		ReadTimeout:  opts.HTTP.ReadTimeout,
		WriteTimeout: opts.HTTP.WriteTimeout,
		IdleTimeout:  opts.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("http server listening", "addr", opts.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-quit:
		logger.Infow("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, opts.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newVectorStore opens the configured knowledge base backend. A missing
// flat index is not fatal: retrieval degrades to "index not loaded" until
// an ingestion run produces the artifacts.
func newVectorStore(ctx context.Context, opts *Options) (store.VectorStore, error) {
	switch opts.KB.Backend {
	case kbopts.BackendMilvus:
		ms, err := store.NewMilvusStore(&store.MilvusConfig{
			Address:    opts.Milvus.Address,
			Username:   opts.Milvus.Username,
			Password:   opts.Milvus.Password,
			Database:   opts.Milvus.Database,
			Collection: opts.Milvus.Collection,
			Dimension:  opts.KB.EmbeddingDim,
			Timeout:    opts.Milvus.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to milvus: %w", err)
		}
		logger.Infow("milvus vector store initialized", "address", opts.Milvus.Address, "collection", opts.Milvus.Collection)
		return ms, nil

	case kbopts.BackendFlat:
		fs := store.NewFlatStore(opts.KB.IndexPath, opts.KB.MetadataPath)
		if err := fs.Load(ctx); err != nil {
			logger.Warnw("knowledge base index not loaded, retrieval disabled until ingestion runs",
				"index_path", opts.KB.IndexPath, "error", err)
		} else {
			count, _ := fs.Count(ctx)
			logger.Infow("flat vector store loaded", "rows", count)
		}
		return fs, nil

	default:
		return nil, fmt.Errorf("unknown kb backend %q", opts.KB.Backend)
	}
}

// newSessionStore opens the configured session backend.
func newSessionStore(ctx context.Context, opts *Options) (onboarding.SessionStore, error) {
	switch opts.Session.Backend {
	case sessionopts.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:         opts.Redis.Addr(),
			Password:     opts.Redis.Password,
			DB:           opts.Redis.Database,
			PoolSize:     opts.Redis.PoolSize,
			DialTimeout:  opts.Redis.DialTimeout,
			ReadTimeout:  opts.Redis.ReadTimeout,
			WriteTimeout: opts.Redis.WriteTimeout,
		})
		rs, err := onboarding.NewRedisSessionStore(ctx, client, opts.Session.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Infow("redis session store initialized", "addr", opts.Redis.Addr(), "ttl", opts.Session.TTL)
		return rs, nil

	case sessionopts.BackendMemory:
		logger.Infow("memory session store initialized", "ttl", opts.Session.TTL)
		return onboarding.NewMemorySessionStore(opts.Session.TTL), nil

	default:
		return nil, fmt.Errorf("unknown session backend %q", opts.Session.Backend)
	}
}
