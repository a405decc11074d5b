package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/ssechat/internal/hub"
	"github.com/Tyrowin/ssechat/internal/metrics"
	"github.com/Tyrowin/ssechat/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to an optional YAML config file")
	flag.Parse()

	os.Exit(run(*configPath))
}

func run(configPath string) int {
	loaded, err := server.LoadConfig(configPath)
	if err != nil {
		slog.Error("startup: load config", "err", err)
		return 1
	}
	server.SetConfig(loaded)
	config := server.CurrentConfig()

	slog.SetDefault(server.NewLogger(os.Stdout, config.Log.Format))
	slog.Info("Starting SSE chat server", "addr", config.Addr(), "config_file", configPath)

	broadcast := hub.New()
	collector := metrics.New(broadcast)
	httpServer := server.CreateServer(config.Addr(), server.SetupRoutes(broadcast, collector))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		go func() {
			if err := server.WatchConfig(ctx, configPath); err != nil {
				slog.Error("config: watcher stopped", "err", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer)
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http: server failed", "err", err)
			return 1
		}
		return 0
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	timeout := server.CurrentConfig().ShutdownTimeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := broadcast.Shutdown(shutdownCtx); err != nil {
		slog.Warn("hub: streams still open at shutdown deadline", "err", err, "subscribers", broadcast.Len())
	}

	if err := server.ShutdownServer(httpServer, timeout); err != nil {
		return 1
	}

	slog.Info("Server stopped")
	return 0
}
