package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/baharkarakas/insider-wallet/internal/api"
	"github.com/baharkarakas/insider-wallet/internal/config"
	"github.com/baharkarakas/insider-wallet/internal/debug"
	"github.com/baharkarakas/insider-wallet/internal/logger"
	"github.com/baharkarakas/insider-wallet/internal/metrics"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600); err == nil {
		defer f.Close()
		log = logger.NewTo(f, cfg.Env)
	} else {
		log.Warn("log file unavailable, logging to stderr", "path", cfg.LogFile, "err", err)
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	client, err := api.New(cfg, log)
	if err != nil {
		log.Error("api client", "err", err)
		os.Exit(1)
	}

	a := newApp(ctx, cfg, client, log)
	p := a.program(tea.WithAltScreen())

	go func() {
		if err := debug.Serve(ctx, cfg, debug.NewRouter(cfg, a.state, log), log); err != nil {
			log.Error("debug listener", "err", err)
		}
	}()

	log.Info("wallet client starting", "base_url", cfg.BaseURL, "env", cfg.Env)
	_, err = p.Run()
	a.shutdown()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Error("client", "err", err)
		os.Exit(1)
	}
	log.Info("bye")
}
