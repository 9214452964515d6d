package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pogonboskrupa/sumarija-sub000/internal/metrics"
)

// statsProvider is implemented by stores that can report occupancy.
type statsProvider interface {
	Stats() (capacityBytes int64, entries int64)
}

// reportStoreStats exports store occupancy gauges every interval until the
// context is cancelled.
func reportStoreStats(ctx context.Context, root *CompositionRoot, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if st, ok := root.ProxyStore.(statsProvider); ok {
				capacity, entries := st.Stats()
				metrics.UpdateStoreStats("proxy", capacity, entries)
			}
			if st, ok := root.GatewayStore.(statsProvider); ok {
				capacity, entries := st.Stats()
				metrics.UpdateStoreStats("gateway", capacity, entries)
			}
		case <-ctx.Done():
			return
		}
	}
}

func main() {
	// Initialize composition root with all dependencies
	root, err := NewCompositionRoot()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// Ensure cleanup on exit
	defer func() {
		if err := root.Cleanup(); err != nil {
			root.Logger.Error("Failed to cleanup resources", zap.Error(err))
		}
	}()

	// Run the proxy lifecycle before taking traffic: precache assets,
	// then retire entries from previous cache generations.
	installCtx, cancelInstall := context.WithTimeout(context.Background(), 60*time.Second)
	root.Proxy.Install(installCtx)
	cancelInstall()
	root.Proxy.Activate()

	statsCtx, cancelStats := context.WithCancel(context.Background())
	defer cancelStats()
	go reportStoreStats(statsCtx, root, 30*time.Second)

	root.Logger.Info("Starting server", zap.String("addr", root.Config.Listen))
	go func() {
		if err := root.HTTPServer.Start(root.Config.Listen); err != nil {
			root.Logger.Error("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	root.Logger.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := root.HTTPServer.Stop(ctx); err != nil {
		root.Logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	root.Logger.Info("Server exited")
}
