package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.io/infrasutra/openmail/internal/api"
	"github.io/infrasutra/openmail/internal/auth"
	"github.io/infrasutra/openmail/internal/config"
	"github.io/infrasutra/openmail/internal/smtpserver"
	"github.io/infrasutra/openmail/internal/sse"
	"github.io/infrasutra/openmail/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	mailboxes := store.New()
	if cfg.SeedAccounts {
		mailboxes.Seed()
		logger.Info("seeded demo accounts", "count", len(mailboxes.GetAccounts()))
	}

	authManager, err := auth.New(cfg.AuthSecret, 30*24*time.Hour)
	if err != nil {
		logger.Error("init auth", "error", err)
		os.Exit(1)
	}
	if cfg.AuthSecret == "" {
		logger.Warn("AUTH_SECRET not set; sessions reset on restart")
	}

	hub := sse.NewHub()
	apiServer := api.NewServer(cfg, mailboxes, authManager, hub, logger)

	smtpAddr := fmt.Sprintf(":%d", cfg.SMTPPort)
	smtpSrv := smtpserver.New(mailboxes, hub, logger, smtpAddr, cfg.Domain)

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpSrv := &http.Server{
		Addr:    httpAddr,
		Handler: apiServer,
	}

	// A failed bind (privileged port, conflict) must not take the process
	// down; the API keeps working without inbound delivery.
	go func() {
		if err := smtpSrv.ListenAndServe(); err != nil {
			logger.Error("smtp server stopped; inbound delivery disabled", "error", err)
		}
	}()

	go func() {
		logger.Info("http server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("shutdown http", "error", err)
	}
	if err := smtpSrv.Close(); err != nil {
		logger.Error("shutdown smtp", "error", err)
	}
}
