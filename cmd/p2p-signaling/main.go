package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/demendet/Stunserver/internal/config"
	"github.com/demendet/Stunserver/internal/httpserver"
	"github.com/demendet/Stunserver/internal/metrics"
	"github.com/demendet/Stunserver/internal/origin"
	"github.com/demendet/Stunserver/internal/signaling"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting p2p-signaling",
		"listen_addr", cfg.ListenAddr(),
		"config_file", cfg.ConfigFile,
		"mode", cfg.Mode,
		"session_sweep_interval", cfg.SessionSweepInterval,
		"session_max_age", cfg.SessionMaxAge,
		"outbound_queue_limit", cfg.OutboundQueueLimit,
		"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
		"signaling_ws_ping_interval", cfg.SignalingWSPingInterval,
		"signaling_ws_idle_timeout", cfg.SignalingWSIdleTimeout,
		"allowed_origins", cfg.AllowedOrigins,
		"ice_servers", len(cfg.ICEServers),
	)
	logStartupWarnings(logger, cfg)

	allowedOrigins, err := origin.NewAllowList(cfg.AllowedOrigins)
	if err != nil {
		logger.Error("invalid allowed origins", "err", err)
		os.Exit(2)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	m := metrics.New()
	hub := signaling.NewHub(signaling.Config{
		Logger:               logger,
		Metrics:              m,
		OutboundQueueLimit:   cfg.OutboundQueueLimit,
		SessionSweepInterval: cfg.SessionSweepInterval,
		SessionMaxAge:        cfg.SessionMaxAge,
	})

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built}, newExporter(m, hub))

	ws := signaling.NewWebSocketServer(hub, signaling.WebSocketConfig{
		Logger:          logger,
		MaxMessageBytes: cfg.MaxSignalingMessageBytes,
		PingInterval:    cfg.SignalingWSPingInterval,
		IdleTimeout:     cfg.SignalingWSIdleTimeout,
		AllowedOrigins:  allowedOrigins,
	})
	ws.RegisterRoutes(srv.Mux())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		hub.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}
	closed := make(chan struct{})
	go func() {
		hub.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-shutdownCtx.Done():
		logger.Warn("signaling hub did not close before shutdown timeout", "timeout", cfg.ShutdownTimeout)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// newExporter exposes the hub's event counters and live registry sizes.
func newExporter(m *metrics.Metrics, hub *signaling.Hub) *metrics.Exporter {
	e := metrics.NewExporter(m)
	e.RegisterGauge("active_clients", "Connected signaling clients.", func() float64 {
		return float64(hub.Stats().Clients)
	})
	e.RegisterGauge("active_sessions", "Open pairing sessions.", func() float64 {
		return float64(hub.Stats().Sessions)
	})
	return e
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
