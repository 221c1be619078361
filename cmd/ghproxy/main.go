// Package main is the entry point for the GitHub mediation proxy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"ghproxy/config"
	"ghproxy/internal/auditlog"
	"ghproxy/internal/contents"
	"ghproxy/internal/observability"
	"ghproxy/internal/server"
	"ghproxy/internal/upstream"
	"ghproxy/internal/version"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Structured logging: pretty output on a terminal, JSON otherwise.
	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = tint.NewHandler(os.Stdout, &tint.Options{TimeFormat: time.TimeOnly})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("starting ghproxy",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var hooks *observability.PrometheusHooks
	if cfg.Metrics.Enabled {
		hooks = observability.NewPrometheusHooks()
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	upstreamCfg := upstream.Config{
		BaseURL: cfg.Upstream.BaseURL,
		Token:   cfg.Upstream.Token,
	}
	if hooks != nil {
		upstreamCfg.Hooks = hooks
	}
	client, err := upstream.New(upstreamCfg)
	if err != nil {
		slog.Error("failed to initialize upstream adapter", "error", err)
		os.Exit(1)
	}

	reader := contents.NewReader(client)

	// LogPath is relative to the audit repository's working tree: the
	// writer appends to the file on disk while the publisher stages the
	// same path worktree-relative.
	logFile := filepath.Join(cfg.Audit.RepoPath, cfg.Audit.LogPath)
	writer, err := auditlog.NewWriter(auditlog.WriterConfig{
		Path:          logFile,
		BufferSize:    cfg.Audit.BufferSize,
		FlushInterval: cfg.Audit.FlushInterval,
	})
	if err != nil {
		slog.Error("failed to open audit log", "error", err, "path", logFile)
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("failed to close audit log", "error", err)
		}
	}()

	vcs, err := auditlog.OpenRepository(cfg.Audit.RepoPath, cfg.Audit.Remote, cfg.Audit.Author, cfg.Audit.Email)
	if err != nil {
		slog.Error("failed to open audit repository", "error", err, "path", cfg.Audit.RepoPath)
		os.Exit(1)
	}
	publisher := auditlog.NewPublisher(vcs, writer, cfg.Audit.LogPath, cfg.Audit.Branch)
	if hooks != nil {
		publisher.SetHooks(hooks)
	}

	if cfg.Server.MasterKey == "" {
		slog.Warn("GHPROXY_MASTER_KEY not set - proxy accepts unauthenticated requests")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	srv := server.New(client, reader, publisher, &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		AuditWriter:     writer,
	})

	// Handle graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	slog.Info("starting server", "address", addr)

	if err := srv.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
		} else {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}
}
