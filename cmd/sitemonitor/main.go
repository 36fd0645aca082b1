package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/alert"
	"github.com/hamed0406/sitemonitor/internal/config"
	"github.com/hamed0406/sitemonitor/internal/events"
	"github.com/hamed0406/sitemonitor/internal/httpapi"
	apimw "github.com/hamed0406/sitemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/sitemonitor/internal/logging"
	"github.com/hamed0406/sitemonitor/internal/monitor"
	"github.com/hamed0406/sitemonitor/internal/notify"
	"github.com/hamed0406/sitemonitor/internal/probe"
	"github.com/hamed0406/sitemonitor/internal/repo/backend"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default $CONFIG_FILE)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "sitemonitor:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := backend.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("store_open_failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("store_close_failed", zap.Error(err))
		}
	}()

	hub := events.NewHub()
	alerts := alert.NewDispatcher(buildNotifier(cfg), alert.Config{
		Recipient:       cfg.AlertChatID,
		AlertOnRecovery: cfg.AlertOnRecovery,
	}, logger)
	svc := monitor.New(store, buildChecker(cfg, logger), alerts, hub, monitor.Config{
		DefaultInterval: cfg.DefaultInterval,
		ResyncInterval:  cfg.ResyncInterval,
		ShutdownGrace:   cfg.ShutdownGrace,
	}, logger)
	if err := svc.Start(ctx); err != nil {
		logger.Error("monitor_start_failed", zap.Error(err))
		return err
	}
	defer svc.Stop()

	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewServer(logger, svc, hub).Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_requested")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_listen_failed", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_failed", zap.Error(err))
	}
	return nil
}

func buildChecker(cfg config.Config, logger *zap.Logger) probe.Checker {
	var c probe.Checker = probe.NewHTTPChecker(cfg.CheckTimeout, logger)
	if cfg.RetryAttempts > 1 {
		c = &probe.RetryChecker{Inner: c, Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}
	}
	return c
}

func buildNotifier(cfg config.Config) notify.Notifier {
	var m notify.Multi
	if cfg.HasTelegram() {
		m = append(m, notify.NewTelegram(cfg.BotToken, cfg.AlertChatID))
	}
	if s := notify.NewSlack(cfg.SlackWebhookURL); s != nil {
		m = append(m, s)
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}
