package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"microcraft/internal/api"
	"microcraft/internal/config"
	"microcraft/internal/logger"
	"microcraft/internal/match"
)

func main() {
	// Load .env file from parent directory
	envErr := godotenv.Load("../.env")
	if envErr != nil {
		// Try current directory as fallback
		envErr = godotenv.Load(".env")
	}

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()
	logger.Init(appConfig.Observability.LogLevel, appConfig.Observability.LogFormat)
	log := logger.Component("main")

	if envErr != nil {
		log.Info("💡 No .env file found, using environment variables only")
	}

	log.Info("🎮 ================================")
	log.Info("🎮  MICROCRAFT - SIMULATION SERVER")
	log.Info("🎮 ================================")

	m, err := match.New(appConfig)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to set up match")
	}
	engine := m.Engine

	runID := fmt.Sprintf("%s-%d", m.Scenario.Name, time.Now().Unix())
	outputs, err := match.OpenOutputs(engine, appConfig.Output, runID)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to open outputs")
	}

	// Start debug server
	if err := api.StartDebugServer(appConfig.Observability); err != nil {
		log.WithError(err).Warn("⚠️ Debug server disabled")
	}

	// Remote players may only take factions no opponent drives
	seats := api.NewSeatManager(m.Humans)
	server := api.NewServer(engine, appConfig.Server, seats, outputs.Stats())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.Start()
	outputs.Live(ctx, appConfig.Sim.TickRate)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("❌ Failed to start server")
		}
	}()

	log.Infof("🌐 API:       http://localhost:%d/api/stats", appConfig.Server.Port)
	log.Infof("🔌 WebSocket: ws://localhost:%d/ws?faction=N&token=...", appConfig.Server.Port)
	for _, f := range m.Humans {
		log.Infof("🪑 Open seat: faction %d (POST /api/seats)", f)
	}

	// Wait for shutdown or a halted simulation
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Info("✅ Server ready! Press Ctrl+C to stop.")
	watch := time.NewTicker(time.Second)
	defer watch.Stop()

wait:
	for {
		select {
		case <-quit:
			break wait
		case <-watch.C:
			if err := engine.Halted(); err != nil {
				log.WithError(err).Error("🔴 Simulation halted")
				break wait
			}
		}
	}

	log.Info("🛑 Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("⚠️ API shutdown")
	}

	engine.Stop()
	cancel()
	if err := outputs.Close(); err != nil {
		log.WithError(err).Error("❌ Failed to flush outputs")
	}

	stats := engine.Stats()
	log.WithField("tick", stats.Tick).WithField("winner", stats.Winner).Info("👋 Goodbye!")
}
