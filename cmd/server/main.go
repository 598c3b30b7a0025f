// Command server is the process entrypoint: it loads configuration, wires
// the five core components in their dependency order (spec.md §2: E -> B
// -> D -> C -> A), starts the HTTP/WebSocket listener, and shuts down
// cleanly on SIGINT/SIGTERM (spec.md §6 "CLI / environment").
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signalrelay/internal/config"
	"signalrelay/internal/gateway"
	"signalrelay/internal/httpapi"
	"signalrelay/internal/media"
	"signalrelay/internal/room"
	"signalrelay/internal/signaling"
	"signalrelay/internal/turn"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	slog.Info("starting signaling core",
		"ws_port", cfg.WS.Port, "stun_server", cfg.STUN.Server, "turn_server", cfg.TURN.Server)

	// E -> B -> D -> C -> A, per spec.md §2's dependency order.
	issuer := turn.NewIssuer(cfg.TURN.Password, cfg.TURN.TTL, cfg.TURN.Server, cfg.TURN.Port, cfg.STUN.Server, cfg.STUN.Port)

	registry := room.NewRegistry()

	mediaManager, err := media.NewManager(media.Config{
		STUNServer: cfg.STUN.Server,
		STUNPort:   cfg.STUN.Port,
	}, registry)
	if err != nil {
		slog.Error("failed to initialize media session manager", "error", err)
		return 1
	}

	fsm := signaling.New(registry, mediaManager)

	gw := gateway.New(registry, fsm)
	mediaManager.OnEscalation(gw.HandleMediaEscalation)

	httpServer, err := httpapi.NewServer(issuer, gw, nil)
	if err != nil {
		slog.Error("failed to initialize http server", "error", err)
		return 1
	}

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: httpServer,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		slog.Error("server failed to bind", "error", err)
		return 2
	case <-sigChan:
		slog.Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("http server shutdown error", "error", err)
	}

	slog.Info("server stopped")
	return 0
}
