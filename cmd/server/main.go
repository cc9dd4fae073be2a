package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"

	"github.com/afk-console/backend/internal/config"
	"github.com/afk-console/backend/internal/frontend"
	"github.com/afk-console/backend/internal/logging"
	"github.com/afk-console/backend/internal/mc"
	"github.com/afk-console/backend/internal/mock"
	"github.com/afk-console/backend/internal/monitor"
	"github.com/afk-console/backend/internal/session"
	"github.com/afk-console/backend/internal/ws"
)

const shutdownGrace = 5 * time.Second

func main() {
	mockMode := pflag.Bool("mock", false, "Use a simulated game server instead of real connections")
	mockPattern := pflag.String("mock-pattern", mock.PatternSteady, "Simulated connection behaviour: steady, kick or flaky")
	devMode := pflag.Bool("dev", false, "Development mode (serve frontend from filesystem)")
	configPath := pflag.String("config", "config.yaml", "Path to config file")
	port := pflag.Int("port", 0, "Override server port")
	logLevel := pflag.String("log-level", "", "Override log level (debug, info, warn, error)")
	pflag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	cfg.ApplyEnv(os.Getenv)
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, err := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Color)
	if err != nil {
		slog.Error("invalid log level", "error", err)
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()
	hub := ws.NewHub(cfg.Server.MaxConnections, logger)

	var dialer session.Dialer = &mc.Dialer{Logger: logger}
	if *mockMode {
		logger.Info("starting in mock mode", "pattern", *mockPattern)
		dialer = &mock.Dialer{Clock: clock, Pattern: *mockPattern}
	}

	store := session.NewStore(session.Config{
		Dialer:    dialer,
		Publisher: hub,
		Clock:     clock,
		Timing: session.Timing{
			ReconnectDelay: cfg.Timing.ReconnectDelay,
			IdleMin:        cfg.Timing.IdleMin,
			IdleMax:        cfg.Timing.IdleMax,
			JumpHold:       cfg.Timing.JumpHold,
			EatCooldown:    cfg.Timing.EatCooldown,
		},
		Defaults: session.Options{
			Host:    cfg.Bot.Host,
			Port:    cfg.Bot.Port,
			Version: cfg.Bot.Version,
			Auth:    cfg.Bot.Auth,
		},
		UsernamePrefix: cfg.Bot.UsernamePrefix,
		History:        cfg.Log.History,
		Logger:         logger,
		Privacy:        &session.PrivacyFilter{MaskSessionIDs: cfg.Log.MaskSessionIDs},
	})
	gateway := ws.NewGateway(store, hub, clock, logger)

	frontendDir := ""
	if *devMode {
		exe, _ := os.Executable()
		frontendDir = filepath.Join(filepath.Dir(exe), "..", "..", "internal", "frontend", "static")
		// go run builds into a temp dir; fall back to the working directory.
		if _, err := os.Stat(frontendDir); os.IsNotExist(err) {
			cwd, _ := os.Getwd()
			frontendDir = filepath.Join(cwd, "internal", "frontend", "static")
		}
	}

	server := ws.NewServer(hub, gateway, frontendDir, *devMode, frontend.Handler(), frontend.Index(), cfg.Server.AllowedOrigins, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Stats.Interval > 0 {
		mon, err := monitor.NewMonitor(store, hub, cfg.Stats.Interval, logger)
		if err != nil {
			logger.Warn("process monitor disabled", "error", err)
		} else {
			go mon.Start(ctx)
		}
	}

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	err = ws.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, server.Handler(mux), shutdownGrace, logger)

	logger.Info("shutting down")
	store.Shutdown()
	hub.Close()

	if err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
