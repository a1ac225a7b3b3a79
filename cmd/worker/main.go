package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feichai0017/document-chunker/config"
	"github.com/feichai0017/document-chunker/internal/service/document"
	"github.com/feichai0017/document-chunker/pkg/logger"
	"github.com/feichai0017/document-chunker/pkg/worker"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHUNKER_CONFIG"), "path to config.yaml")
	cleanupEvery := flag.Duration("cleanup-interval", time.Hour, "how often expired uploads and results are removed, 0 disables")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(
		logger.WithConfig(cfg.Log),
		logger.WithInitialFields(map[string]interface{}{"service": "chunker-worker"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := document.GetService(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create document service", logger.Error(err))
		os.Exit(1)
	}
	defer components.Close()

	documentWorker, err := worker.NewDocumentWorker(&worker.Config{
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Redis.Concurrency,
		Queues:        cfg.Redis.Queues,
	}, components.Service, log)
	if err != nil {
		log.Error("Failed to create document worker", logger.Error(err))
		os.Exit(1)
	}

	if err := documentWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	if *cleanupEvery > 0 {
		go func() {
			ticker := time.NewTicker(*cleanupEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := components.Service.CleanupTasks(ctx); err != nil {
						log.Warn("Cleanup failed", logger.Error(err))
					}
				}
			}
		}()
	}

	<-ctx.Done()
	log.Info("Shutting down worker...")
	_ = documentWorker.Stop()
	log.Info("Worker stopped")
}
