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

	"github.com/rkrmr33/bukber/internal/auth"
	"github.com/rkrmr33/bukber/internal/config"
	"github.com/rkrmr33/bukber/internal/event"
	"github.com/rkrmr33/bukber/internal/handlers"
	"github.com/rkrmr33/bukber/internal/storage/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting Bukber server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Database opened", "path", cfg.DBPath)

	events := event.NewManager(store, event.WithLotteryPrefix(cfg.LotteryPrefix))

	admin, err := auth.NewAdmin(auth.AdminConfig{
		Secret:     cfg.AdminSecret,
		SecretHash: cfg.AdminSecretHash,
		TokenKey:   cfg.AdminTokenKey,
		TokenTTL:   cfg.AdminTokenTTL,
	})
	if err != nil {
		slog.Error("Failed to configure admin auth", "error", err)
		os.Exit(1)
	}
	if cfg.AdminSecretHash == "" {
		slog.Warn("ADMIN_SECRET is set in plain text; prefer ADMIN_SECRET_HASH")
	}

	loginLimiter := auth.NewLimiter(cfg.LoginRatePerMinute)
	verifyLimiter := auth.NewLimiter(cfg.VerifyRatePerMinute)

	// Initialize handlers
	handler := handlers.NewHandler(events, admin, loginLimiter, verifyLimiter)
	slog.Info("Routes configured")

	// Cleanup goroutine
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := loginLimiter.Cleanup(time.Hour) + verifyLimiter.Cleanup(time.Hour)
				slog.Debug("Rate limiter cleanup", "removed", removed)
			}
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down")
		handler.Hub().Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Shutdown failed", "error", err)
		}
	}()

	slog.Info("Bukber server starting", "addr", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}
