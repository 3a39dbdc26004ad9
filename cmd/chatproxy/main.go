// Package main is the entry point for the chat proxy.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/howard-nolan/chatproxy/internal/config"
	"github.com/howard-nolan/chatproxy/internal/logging"
	"github.com/howard-nolan/chatproxy/internal/metrics"
	"github.com/howard-nolan/chatproxy/internal/provider"
	"github.com/howard-nolan/chatproxy/internal/server"
	"github.com/howard-nolan/chatproxy/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("chatproxy stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	m := metrics.New()

	requestLog, err := logging.OpenRequestLog(cfg.Logging.RequestLog)
	if err != nil {
		return fmt.Errorf("opening request log: %w", err)
	}
	defer requestLog.Close()

	// Upstream calls use the default client: no timeout beyond the
	// request context.
	selector := buildSelector(cfg)
	invoker := provider.NewInvoker(http.DefaultClient,
		provider.WithLogger(logger.Named("provider")),
		provider.WithMetrics(m),
	)

	// The store starts unavailable. The connection is made in the
	// background so the proxy serves chat even if the database is down;
	// store endpoints answer 503 until it is attached.
	//
	// Deferred calls run last-in first-out: stopConnect aborts a dial that
	// is still in flight, then st.Close shuts the store so a connect that
	// completes anyway is dropped instead of attached.
	st := store.New(store.WithLogger(logger.Named("store")), store.WithMetrics(m))
	defer func() { _ = st.Close(context.Background()) }()

	connectCtx, stopConnect := context.WithTimeout(context.Background(), cfg.Store.ConnectTimeout)
	defer stopConnect()
	go func() { _ = st.Connect(connectCtx, connector(cfg.Store)) }()

	srv := server.New(cfg, selector, invoker, st,
		server.WithLogger(logger.Named("http")),
		server.WithMetrics(m),
		server.WithRequestLog(requestLog),
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chatproxy listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("static_dir", cfg.Server.StaticDir),
			zap.String("store_backend", cfg.Store.Backend),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}

// buildSelector creates one adapter per provider. A provider missing from
// the config still gets an adapter with its default endpoint and an empty
// key, so its calls fail upstream like any other API error.
func buildSelector(cfg *config.Config) *provider.Selector {
	gemini := cfg.Providers[config.ProviderGemini]
	openRouter := cfg.Providers[config.ProviderOpenRouter]
	deepSeek := cfg.Providers[config.ProviderDeepSeek]
	groq := cfg.Providers[config.ProviderGroq]

	return provider.NewSelector(
		provider.NewGeminiAdapter(gemini.APIKey, gemini.BaseURL),
		provider.NewOpenRouterAdapter(openRouter.APIKey, openRouter.BaseURL, openRouter.Referer, openRouter.Title),
		provider.NewDeepSeekAdapter(deepSeek.APIKey, deepSeek.BaseURL),
		provider.NewGroqAdapter(groq.APIKey, groq.BaseURL),
	)
}

// connector picks the backend named in the config.
func connector(cfg config.StoreConfig) store.Connector {
	if cfg.Backend == config.BackendRedis {
		return func(ctx context.Context) (store.Backend, error) {
			return store.DialRedis(ctx, &redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
		}
	}
	return func(ctx context.Context) (store.Backend, error) {
		return store.DialMongo(ctx, cfg.MongoURI, cfg.Database)
	}
}
