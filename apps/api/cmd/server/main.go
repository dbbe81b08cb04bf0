// Package main contains the slidecast HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"slidecast/packages/backend/config"
	"slidecast/packages/backend/di"
	"slidecast/packages/backend/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(config.NewViper(), *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	container, err := di.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatalw("failed to build dependencies", "error", err)
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Errorw("failed to close dependencies", "error", err)
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	api := newServer(container, cfg.Output.Dir, logger)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Infow("server listening", "addr", cfg.Server.Addr, "speechProvider", cfg.Speech.Provider, "cache", cfg.Cache.Backend)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("server failed", "error", err)
		}
	}()

	<-shutdown
	logger.Infow("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorw("graceful shutdown failed", "error", err)
		if closeErr := server.Close(); closeErr != nil {
			logger.Errorw("forced close failed", "error", closeErr)
		}
	}

	// Narration clips live for the lifetime of the session.
	if err := container.ReleaseCache(ctx); err != nil {
		logger.Warnw("failed to clear narration cache", "error", err)
	}
}

func requestLogger(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infow("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
