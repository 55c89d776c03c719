package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hrninfomeet-wq/riskengine/internal/config"
	"github.com/hrninfomeet-wq/riskengine/internal/database"
	"github.com/hrninfomeet-wq/riskengine/internal/engine"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/calccache"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/history"
	"github.com/hrninfomeet-wq/riskengine/internal/modules/portfolio"
	"github.com/hrninfomeet-wq/riskengine/internal/monitor"
	"github.com/hrninfomeet-wq/riskengine/internal/server"
	"github.com/hrninfomeet-wq/riskengine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet; fall back to a default one for the fatal message.
		fallback := logger.New(logger.Config{Level: "info"})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting risk engine")

	historyDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "history.db"),
		Name: "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	stateDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "state.db"),
		Name: "state",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state database")
	}
	defer stateDB.Close()

	prices := history.NewStore(historyDB.Conn(), log)
	if err := prices.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize price history schema")
	}

	positions := portfolio.NewStore(stateDB.Conn(), log)
	if err := positions.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize position schema")
	}

	cache := calccache.New(stateDB.Conn(), log)
	if err := cache.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize calc cache schema")
	}

	book := portfolio.New()
	if err := positions.Restore(book); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore portfolio")
	}

	eng := engine.New(cfg, prices, log)

	mon := monitor.New(cfg.Monitor, eng, eng, prices, book, cache, log)
	for _, symbol := range book.Symbols() {
		mon.Watch(symbol)
	}
	if err := mon.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start risk monitor")
	}
	defer mon.Stop()

	srv := server.New(server.Config{
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		Log:     log,
		Engine:  eng,
		Monitor: mon,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Risk engine started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Risk engine stopped")
}
