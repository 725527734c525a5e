package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/sitecheck/api"
	"github.com/use-agent/sitecheck/api/handler"
	"github.com/use-agent/sitecheck/api/middleware"
	"github.com/use-agent/sitecheck/config"
	"github.com/use-agent/sitecheck/crawler"
	"github.com/use-agent/sitecheck/metrics"
	"github.com/use-agent/sitecheck/prober"
	"github.com/use-agent/sitecheck/store"
	"github.com/use-agent/sitecheck/webhook"
)

func main() {
	configPath := flag.String("config", "", "YAML config file overlaying SITECHECK_* env settings")
	flag.Parse()

	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.LoadFile(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("sitecheck server starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxSessions", cfg.Server.MaxSessions,
	)
	if cfg.Auth.Enabled && len(cfg.Auth.APIKeys) == 0 {
		slog.Warn("auth enabled without API keys, the API is open")
	}

	// ── 3. Shared collaborators ─────────────────────────────────────
	m := metrics.New()
	httpProber := prober.NewHTTP(cfg.Prober)
	defer httpProber.Close()

	st := store.New(cfg.Store.MaxEntries, cfg.Store.TTL)
	defer st.Close()

	limiter := middleware.NewLimiter(cfg.RateLimit)
	defer limiter.Close()

	sessions := handler.NewSessions(cfg, st, crawler.RodLauncher(cfg.Browser), httpProber, m, webhook.NewSender(nil))

	// ── 4. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(cfg, sessions, limiter, m, time.Now())

	// ── 5. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 6. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Cancel running crawls; each closes its own browser.
	sessions.Shutdown()
	slog.Info("sitecheck server stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
