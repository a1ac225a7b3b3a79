package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-chunker/api/handlers"
	"github.com/feichai0017/document-chunker/api/routes"
	"github.com/feichai0017/document-chunker/config"
	"github.com/feichai0017/document-chunker/internal/service/document"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHUNKER_CONFIG"), "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(
		logger.WithConfig(cfg.Log),
		logger.WithInitialFields(map[string]interface{}{"service": "chunker-api"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := document.GetService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to get document service", logger.Error(err))
	}
	defer components.Close()

	h := handlers.NewHandlers(components.Service, components.Pipeline, cfg.Options(), cfg.Server.MaxUploadSize, log)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = cfg.Server.MaxUploadSize
	routes.SetupRoutes(r, h, log)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
