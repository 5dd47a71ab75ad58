package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/config"
	"github.com/mikey/email-gateway/internal/core"
	"github.com/mikey/email-gateway/internal/di"
	"github.com/mikey/email-gateway/internal/metrics"
	"github.com/mikey/email-gateway/internal/ports"
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
	frontend ports.EmailFrontend,
	detector core.ThreatDetector,
	emailStore core.EmailStore,
	linkStore core.LinkStore,
	mtr *metrics.Metrics,
) error {
	defer logger.Sync()

	// Start the frontend
	if err := frontend.Start(); err != nil {
		logger.Fatal("Failed to start frontend", zap.Error(err))
		return err
	}

	// Expose metrics
	metricsCfg := cfg.GetMetrics()
	var metricsServer *http.Server
	if metricsCfg.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", mtr.Handler())
		metricsServer = &http.Server{Addr: metricsCfg.ListenAddress, Handler: mux}
		go func() {
			logger.Info("Metrics endpoint starting", zap.String("address", metricsCfg.ListenAddress))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	// Stop the frontend
	if err := frontend.Stop(); err != nil {
		logger.Error("Failed to stop frontend", zap.Error(err))
	}

	if metricsServer != nil {
		if err := metricsServer.Close(); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
	}

	// Close any resources that need closing
	if closer, ok := detector.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close threat detector", zap.Error(err))
		}
	}
	if stopper, ok := linkStore.(interface{ Stop() }); ok {
		stopper.Stop()
	}
	if closer, ok := emailStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close email store", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}
