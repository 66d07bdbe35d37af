package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/other-side/backend/internal/config"
	"github.com/zhouzirui/other-side/backend/internal/handler"
	"github.com/zhouzirui/other-side/backend/internal/logging"
	"github.com/zhouzirui/other-side/backend/internal/secrets"
	"github.com/zhouzirui/other-side/backend/internal/service/ai"
	"github.com/zhouzirui/other-side/backend/internal/service/dialogue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Debug("no .env file loaded, continuing with system environment variables only", zap.Error(envErr))
	}

	// The model is built on the first request, so a bad credential surfaces as a 500 there.
	var factory ai.ModelFactory
	if cfg.AI.Enabled() {
		factory = ai.NewArkFactory(cfg.AI, secretsProvider(cfg.Secrets))
		logger.Info("AI gateway configured",
			zap.String("model", cfg.AI.Model),
			zap.Bool("stream", cfg.AI.StreamResponse),
			zap.Duration("timeout", cfg.AI.RequestTimeout))
	} else {
		logger.Warn("Ark 凭证未配置，所有对话请求将返回 500 - 请检查 Model/ARK_MODEL 与 ARK_API_KEY")
	}

	aiService := ai.NewService(factory, ai.Options{
		Timeout:   cfg.AI.RequestTimeout,
		Streaming: cfg.AI.StreamResponse,
	})
	dialogueService := dialogue.NewService(aiService, dialogue.GenerationsFrom(cfg.AI))

	router := handler.NewRouter(dialogueService, aiService, logger, cfg.Server.AllowedOrigin)

	startServer(ctx, logger, cfg.Server, router)
}

// secretsProvider consults the optional secrets file before the environment.
func secretsProvider(cfg config.SecretsConfig) secrets.Provider {
	chain := secrets.Chain{}
	if cfg.File != "" {
		chain = append(chain, secrets.FileProvider{Path: cfg.File})
	}
	chain = append(chain, secrets.EnvProvider{})
	return secrets.NewCache(chain)
}

func startServer(ctx context.Context, logger *zap.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("Other Side backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
