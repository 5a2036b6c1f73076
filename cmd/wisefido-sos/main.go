package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	logpkg "wisefido-sos/internal/common/logger"
	"wisefido-sos/internal/config"
	"wisefido-sos/internal/service"
)

func main() {
	seedFile := flag.String("seed", "", "phrase seed file (YAML); overrides SEED_PHRASES_FILE")
	seedOnly := flag.Bool("seed-only", false, "import the seed file and exit")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if *seedFile != "" {
		cfg.Detection.SeedFile = *seedFile
	}

	// 初始化Logger
	logger, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-sos")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting wisefido-sos service",
		zap.String("app_env", cfg.AppEnv),
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.Int("debounce_minutes", cfg.Detection.DebounceMinutes),
		zap.Int("max_alerts_per_hour", cfg.Detection.MaxAlertsPerHour),
	)

	app, err := service.NewApp(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create detection service", zap.Error(err))
	}
	defer app.Stop()

	if cfg.Detection.SeedFile != "" {
		seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
		_, err := app.SeedPhrases(seedCtx, cfg.Detection.SeedFile)
		seedCancel()
		if err != nil {
			logger.Fatal("Failed to seed phrase corpus", zap.String("path", cfg.Detection.SeedFile), zap.Error(err))
		}
	}
	if *seedOnly {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start(ctx)
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		if err := <-errCh; err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("Service error", zap.Error(err))
		}
	}

	logger.Info("Service stopped")
}
