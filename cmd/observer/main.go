// cmd/observer/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/go-rts/pkg/config"
	"github.com/opd-ai/go-rts/pkg/engine"
	"github.com/opd-ai/go-rts/pkg/event"
	"github.com/opd-ai/go-rts/pkg/logging"
	"github.com/opd-ai/go-rts/pkg/network"
	"github.com/opd-ai/go-rts/pkg/render"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to configuration file")
	serverAddr := flag.String("server", "", "Server address (overrides config)")
	width := flag.Int("width", 80, "View width in characters")
	height := flag.Int("height", 40, "View height in characters")
	flag.Parse()

	env, err := config.LoadConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment configuration: %v\n", err)
		os.Exit(1)
	}
	// Frames own stdout.
	logger := logging.NewLoggerWithWriter(os.Stderr, logging.ParseLevel(env.LogLevel))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := *serverAddr
	if addr == "" {
		cfg := config.DefaultConfig()
		if _, err := os.Stat(*configPath); err == nil {
			if cfg, err = config.LoadConfig(*configPath); err != nil {
				logger.Error(ctx, "Failed to load configuration", err, "config_path", *configPath)
				os.Exit(1)
			}
		}
		addr = cfg.NetworkConfig.ServerAddress
	}

	bus := event.NewEventBus()
	bus.Subscribe(network.ObserverConnected, func(event.Event) {
		logger.Info(ctx, "Connected to server", "address", addr)
	})
	bus.Subscribe(network.ObserverDisconnected, func(event.Event) {
		logger.Warn(ctx, "Disconnected from server", "address", addr)
	})

	wsURL := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	obs := network.NewObserver(wsURL.String(), env, bus, logger)

	terrain, err := fetchMap(ctx, obs.Service(), addr)
	if err != nil {
		logger.Warn(ctx, "Map unavailable, drawing without terrain", "error", err.Error())
	}

	view := render.NewTerminalRenderer(os.Stdout, *width, *height, 1)
	done := make(chan error, 1)
	go func() { done <- obs.Run(ctx) }()

	fitted := false
	for {
		select {
		case err := <-done:
			if err != nil {
				logger.Error(ctx, "Observer stopped", err)
				os.Exit(1)
			}
			return
		case state := <-obs.States():
			if !fitted {
				view.FitWorld(state.World)
				fitted = true
			}
			view.DrawState(state, terrain)
			view.Present()
		}
	}
}

// fetchMap reads the static terrain once; the snapshot stream omits it
func fetchMap(ctx context.Context, service *network.NetworkService, addr string) (*engine.MapState, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	mapURL := url.URL{Scheme: "http", Host: addr, Path: "/api/map"}

	var m engine.MapState
	err := service.ExecuteWithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, mapURL.String(), nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("GET %s: status %d", mapURL.Path, resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&m)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch map: %w", err)
	}
	return &m, nil
}
