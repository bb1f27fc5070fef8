// Package main is the entry point for the glidepath retirement-portfolio
// engine. It serves position uploads, fund classification, glidepath-driven
// allocation analysis, rebalance planning and Monte Carlo retirement
// projections over a single SQLite database.
//
// Startup sequence:
// 1. Loads configuration from environment variables
// 2. Initializes the structured logger
// 3. Opens and migrates the database
// 4. Wires repositories, services and HTTP handlers
// 5. Registers background maintenance jobs
// 6. Starts the HTTP server
// 7. Waits for shutdown signal and performs graceful shutdown
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/glidepath/internal/config"
	"github.com/aristath/glidepath/internal/database"
	"github.com/aristath/glidepath/internal/modules/analysis"
	"github.com/aristath/glidepath/internal/modules/funds"
	fundshandlers "github.com/aristath/glidepath/internal/modules/funds/handlers"
	"github.com/aristath/glidepath/internal/modules/glidepath"
	glidepathhandlers "github.com/aristath/glidepath/internal/modules/glidepath/handlers"
	"github.com/aristath/glidepath/internal/modules/portfolio"
	portfoliohandlers "github.com/aristath/glidepath/internal/modules/portfolio/handlers"
	"github.com/aristath/glidepath/internal/modules/positions"
	positionshandlers "github.com/aristath/glidepath/internal/modules/positions/handlers"
	"github.com/aristath/glidepath/internal/modules/projection"
	projectionhandlers "github.com/aristath/glidepath/internal/modules/projection/handlers"
	"github.com/aristath/glidepath/internal/modules/rebalancing"
	"github.com/aristath/glidepath/internal/scheduler"
	"github.com/aristath/glidepath/internal/server"
	"github.com/aristath/glidepath/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting glidepath engine")

	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "glidepath.db"),
		Profile: database.ProfileStandard,
		Name:    "glidepath",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	// Repositories
	fundsRepo := funds.NewRepository(db.Conn(), log)
	positionsRepo := positions.NewRepository(db.Conn(), log)
	glidepathRepo := glidepath.NewRepository(db.Conn(), log)
	portfolioRepo := portfolio.NewRepository(db.Conn(), log)
	assumptionsRepo := projection.NewAssumptionsRepository(db.Conn(), log)

	// Services
	analysisSvc := analysis.NewService(positionsRepo, fundsRepo, glidepathRepo, portfolioRepo, log)
	rebalancingSvc := rebalancing.NewService(analysisSvc, fundsRepo, log)
	projectionSvc := projection.NewService(analysisSvc, glidepathRepo, assumptionsRepo, projection.DefaultClassAssumptions(), log)

	// HTTP server
	srv := server.New(server.Config{
		Log:     log,
		DB:      db,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,

		PortfolioHandlers:   portfoliohandlers.NewHandler(portfolioRepo, analysisSvc, rebalancingSvc, projectionSvc, cfg.Simulation, log),
		UploadsHandlers:     positionshandlers.NewHandler(positionsRepo, log),
		FundsHandlers:       fundshandlers.NewHandler(fundsRepo, log),
		GlidepathHandlers:   glidepathhandlers.NewHandler(glidepathRepo, log),
		AssumptionsHandlers: projectionhandlers.NewHandler(assumptionsRepo, log),
	})

	// Background maintenance
	sched := scheduler.New(log)
	if err := sched.AddJob("@hourly", scheduler.NewWALCheckpointJob(db, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register WAL checkpoint job")
	}
	if err := sched.AddJob("@daily", scheduler.NewPruneUploadsJob(positionsRepo, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register upload pruning job")
	}
	sched.Start()

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	sched.Stop()

	log.Info().Msg("Shutdown complete")
}
