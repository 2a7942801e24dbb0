// Command sandbox serves an in-memory copy of the rewards backend for local
// development and manual testing of goldctl.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/IVANFROL/reklama-oleg/internal/config"
	"github.com/IVANFROL/reklama-oleg/internal/logging"
	"github.com/IVANFROL/reklama-oleg/internal/sandbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	format := cfg.LogFormat
	if os.Getenv(config.EnvPrefix+"_LOG_FORMAT") == "" {
		format = "json"
	}
	logger, err := logging.New(format, cfg.LogLevel, os.Stdout)
	if err != nil {
		slog.Error("Invalid logging configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	secret := cfg.SandboxJWTSecret
	if secret == "" {
		secret = "sandbox-secret"
		slog.Warn("No JWT secret configured, using the built-in development secret")
	}
	backend := sandbox.New(sandbox.Options{
		Secret:          []byte(secret),
		Admins:          cfg.SandboxAdmins,
		ApplicationCost: cfg.ApplicationCost,
		MaxUploadBytes:  cfg.UploadMaxBytes,
		LegacyStatus:    cfg.SandboxLegacyStatus,
		Logger:          logger,
	})
	if len(cfg.SandboxAdmins) == 0 {
		slog.Warn("No admins configured, every user can review applications")
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.SandboxAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}).Handler(backend)

	srv := &http.Server{
		Addr:              cfg.SandboxAddr,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting HTTP server", "addr", srv.Addr, "legacy_status", cfg.SandboxLegacyStatus)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}
