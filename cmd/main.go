package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aina-notebook/internal/config"
	"aina-notebook/internal/export"
	"aina-notebook/internal/generator"
	"aina-notebook/internal/handler"
	"aina-notebook/internal/model"
	"aina-notebook/internal/retry"
	"aina-notebook/internal/service"
	"aina-notebook/internal/storage"
	"aina-notebook/pkg/logger"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 2 * time.Minute

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx := context.Background()

	store, err := storage.New(cfg)
	if err != nil {
		logger.Fatalf("Failed to create history store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		logger.Fatalf("Failed to init history store: %v", err)
	}
	logger.Infof("History store: %s", cfg.StorageType())

	chatModel, err := model.NewChatModel(ctx, cfg.AI)
	if err != nil {
		logger.Fatalf("Failed to create chat model: %v", err)
	}
	content, err := generator.NewContentGenerator(ctx, chatModel)
	if err != nil {
		logger.Fatalf("Failed to build content generator: %v", err)
	}
	images, err := generator.NewImageGenerator(cfg.AI.Image)
	if err != nil {
		logger.Fatalf("Failed to create image generator: %v", err)
	}

	defaultLang := model.ParseLanguage(cfg.Generation.DefaultLanguage)
	generation := service.NewGenerationService(content, images, store, service.Options{
		ImagePolicy: retry.Policy{
			MaxAttempts: cfg.Generation.ImageAttempts,
			Delay:       cfg.Generation.RetryDelay,
			Backoff:     retry.BackoffFixed,
			Retryable:   generator.Retryable,
		},
		DefaultLanguage: defaultLang,
		DefaultAgeBand:  cfg.Generation.DefaultAgeBand,
	})

	presentations := handler.NewPresentationHandler(generation, store, export.NewPDFExporter(), defaultLang)
	gate := handler.NewAccessGate(cfg.Access, defaultLang)
	if !gate.Enabled() {
		logger.Warn("Access password is empty, the API is open")
	}

	var spa *handler.SPA
	if s := handler.NewSPA(cfg.Server.StaticDir); s.Available() {
		spa = s
	} else {
		logger.Warnf("No frontend build in %s, serving the API only", cfg.Server.StaticDir)
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(cfg, presentations, gate, spa)

	// Cancelled on shutdown so long-lived history streams let go of their connections.
	baseCtx, stopStreams := context.WithCancel(ctx)
	defer stopStreams()

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return baseCtx },
	}

	go func() {
		logger.Infof("Server listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	stopStreams()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	// A run in progress still gets its result saved.
	if err := generation.Wait(shutdownCtx); err != nil {
		logger.Warnf("Generation still running at shutdown: %v", err)
	}
	if err := store.Close(); err != nil {
		logger.Errorf("Failed to close history store: %v", err)
	}
	logger.Info("Server stopped")
}
