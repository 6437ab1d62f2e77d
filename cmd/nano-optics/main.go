// Command nano-optics serves ONT optics readings from a Nokia 7360 OLT over
// HTTP.
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

	optics "github.com/nanoncore/nano-optics"
	"github.com/nanoncore/nano-optics/api"
	"github.com/nanoncore/nano-optics/config"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if warnings := cfg.Validate(); len(warnings) > 0 {
		logger.Warn("Configuration validation warnings", zap.Strings("warnings", warnings))
	}

	cache := optics.NewConnectionCache()
	service := optics.NewService(cfg.Service(), cache, optics.WithLogger(logger.Named("olt")))

	router := api.NewRouter(service, api.RouterConfig{
		AuthToken:               cfg.APIAuthToken,
		RequestLogging:          cfg.RequestLogging,
		FrontendOrigin:          cfg.FrontendOrigin,
		AllowRequestCredentials: cfg.AllowRequestCredentials,
	}, logger.Named("http"))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("nano-optics server listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Environment),
			zap.String("protocol", string(service.Protocol())),
			zap.String("frontendOrigin", cfg.FrontendOrigin),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
