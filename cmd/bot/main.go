package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/pairup/matchmaker-bot/internal/config"
	"github.com/pairup/matchmaker-bot/internal/location"
	"github.com/pairup/matchmaker-bot/internal/remote"
	"github.com/pairup/matchmaker-bot/internal/search"
	"github.com/pairup/matchmaker-bot/internal/session"
	"github.com/pairup/matchmaker-bot/internal/store"
	"github.com/pairup/matchmaker-bot/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Debug)
	defer logger.Sync()

	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}
	defer st.Close()

	api := remote.New(cfg.DirectoryURL, cfg.DirectoryToken, cfg.DirectoryTimeout, logger)
	resolver := location.NewResolver(api, st, logger)
	engine := search.New(api, st, logger)

	tg, err := transport.NewTelegram(cfg.TelegramToken, logger)
	if err != nil {
		logger.Fatal("failed to initialize transport", zap.Error(err))
	}

	manager := session.NewManager(st, engine, api, resolver, tg, logger, session.Config{
		DefaultCountryID: cfg.DefaultCountryID,
		DefaultCityID:    cfg.DefaultCityID,
		IdleTimeout:      cfg.IdleTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("bot is running")
	if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("bot stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(debug bool) *zap.Logger {
	if debug {
		logger, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return logger
	}
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return logger
}
