package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "github.com/frostwillmott/applybot/configs"
	"github.com/frostwillmott/applybot/pkg/api"
	"github.com/frostwillmott/applybot/pkg/apply"
	"github.com/frostwillmott/applybot/pkg/autoreply"
	"github.com/frostwillmott/applybot/pkg/hh"
	"github.com/frostwillmott/applybot/pkg/llm"
	"github.com/frostwillmott/applybot/pkg/logger"
	"github.com/frostwillmott/applybot/pkg/scheduler"
	"github.com/frostwillmott/applybot/pkg/storage"
	"github.com/frostwillmott/applybot/pkg/storage/postgres"
	redisstore "github.com/frostwillmott/applybot/pkg/storage/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is not up yet.
		panic(err)
	}

	log, err := logger.Init(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
		Service:  "applybot",
	})
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("starting up")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Durable store: schema-ensure happens inside.
	store, err := postgres.NewStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer store.Close()
	log.Info("postgres connected, schema ensured")

	// Redis: processed-vacancy cache + OAuth state.
	cache, err := redisstore.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal("failed to initialize redis", zap.Error(err))
	}
	defer cache.Close()
	log.Info("redis connected")

	board := hh.NewClient(hh.Config{
		ClientID:     cfg.HHClientID,
		ClientSecret: cfg.HHClientSecret,
		RedirectURI:  cfg.HHRedirectURI,
	}, store, log)

	provider, err := llm.New(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize llm provider", zap.Error(err))
	}

	letters := buildLetterStore(cfg, log)

	applySvc := apply.NewService(board, provider, store, cache, letters, log)

	sched := scheduler.NewService(cfg, store, store, applySvc, log)
	if cfg.SchedulerEnabled {
		if err := sched.Start(ctx); err != nil {
			log.Fatal("failed to start scheduler", zap.Error(err))
		}
	}

	autoReply := autoreply.NewService(cfg, store, board, provider, log)
	if cfg.SchedulerEnabled {
		if err := autoReply.Start(ctx); err != nil {
			log.Error("failed to start auto-reply scheduler", zap.Error(err))
		}
	}

	server := api.NewServer(api.Config{
		AppConfig: cfg,
		Scheduler: sched,
		Apply:     applySvc,
		AutoReply: autoReply,
		Board:     board,
		States:    cache,
		Logger:    log,
	})

	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", zap.Error(err))
		}
	}()
	log.Info("server started", zap.String("port", cfg.Port))

	sig := <-sigChan
	log.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Triggers go down first; in-flight pipelines observe cancellation at
	// their next checkpoint.
	sched.Stop()
	autoReply.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	cancel()
	log.Info("shutdown complete")
}

// buildLetterStore picks the archive backend from config; nil disables
// archiving.
func buildLetterStore(cfg *config.Config, log *zap.Logger) storage.LetterStore {
	if cfg.LettersBucket != "" {
		letters, err := storage.NewS3LetterStore(storage.S3LetterStoreConfig{
			Bucket:          cfg.LettersBucket,
			Prefix:          cfg.LettersPrefix,
			Region:          cfg.LettersRegion,
			Endpoint:        cfg.LettersEndpoint,
			AccessKeyID:     cfg.LettersAccessKey,
			SecretAccessKey: cfg.LettersSecretKey,
		})
		if err != nil {
			log.Error("failed to initialize S3 letter store", zap.Error(err))
			return nil
		}
		log.Info("letter archive enabled", zap.String("bucket", cfg.LettersBucket))
		return letters
	}
	if cfg.LettersDir != "" {
		letters, err := storage.NewLocalLetterStore(cfg.LettersDir)
		if err != nil {
			log.Error("failed to initialize local letter store", zap.Error(err))
			return nil
		}
		log.Info("letter archive enabled", zap.String("dir", cfg.LettersDir))
		return letters
	}
	return nil
}
