package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/adapters/api"
	"github.com/inboxkit/newsletter-detector/internal/config"
	"github.com/inboxkit/newsletter-detector/internal/di"
	"github.com/inboxkit/newsletter-detector/internal/factory"
	"github.com/inboxkit/newsletter-detector/internal/ports"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	emailFilter ports.EmailFilter,
	apiServer *api.Server,
	stores *factory.Stores,
) error {
	defer logger.Sync()

	// Start the SMTP filter
	if err := emailFilter.Start(); err != nil {
		logger.Fatal("Failed to start filter", zap.Error(err))
		return err
	}

	// Start the HTTP API if enabled
	if cfg.GetAPI().Enabled {
		if err := apiServer.Start(); err != nil {
			logger.Fatal("Failed to start HTTP API", zap.Error(err))
			return err
		}
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	// Stop the filter
	if err := emailFilter.Stop(); err != nil {
		logger.Error("Failed to stop filter", zap.Error(err))
	}

	// Stop the HTTP API
	if cfg.GetAPI().Enabled {
		if err := apiServer.Stop(); err != nil {
			logger.Error("Failed to stop HTTP API", zap.Error(err))
		}
	}

	// Close the store backend if it holds external resources
	if closer, ok := stores.Reputation.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close store", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}
