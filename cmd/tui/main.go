// Command tui plays one faction from the terminal against the opponent
// controllers. Logs go to a file so they do not tear the screen.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"microcraft/internal/config"
	"microcraft/internal/game"
	"microcraft/internal/logger"
	"microcraft/internal/match"
	"microcraft/internal/render"
)

func main() {
	godotenv.Load(".env")
	appConfig := config.Load()

	faction := flag.Int("faction", 1, "faction to play")
	mapFile := flag.String("map", appConfig.Sim.MapFile, "ASCII map file (default built-in)")
	tps := flag.Int("tps", 10, "simulation ticks per second")
	logPath := flag.String("log", "microcraft-tui.log", "log file (empty discards logs)")
	flag.Parse()

	var logOut io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger.InitWithOutput(appConfig.Observability.LogLevel, "json", logOut)
	log := logger.Component("tui")

	appConfig.Sim.MapFile = *mapFile
	appConfig.Sim.TickRate = *tps
	scenario, err := match.LoadScenario(appConfig.Sim)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	factions, err := match.Factions(scenario)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// Every faction but the player's is driven by the opponent
	appConfig.AI.Factions = nil
	playing := false
	for _, f := range factions {
		if int(f) == *faction {
			playing = true
			continue
		}
		appConfig.AI.Factions = append(appConfig.AI.Factions, int(f))
	}
	if !playing {
		fmt.Fprintf(os.Stderr, "faction %d is not on map %s\n", *faction, scenario.Name)
		os.Exit(1)
	}

	m, err := match.New(appConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	term := render.NewTerminal(game.Faction(*faction), tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Engine.Start()
	pumpDone := make(chan error, 1)
	go func() {
		pumpDone <- render.Pump(ctx, m.Engine, term, time.Second/time.Duration(max(*tps, 1)))
	}()

	if err := term.Run(); err != nil {
		log.WithError(err).Error("❌ Terminal failed")
	}
	cancel()
	if err := <-pumpDone; err != nil {
		log.WithError(err).Error("❌ Render pump failed")
	}
	m.Engine.Stop()

	snap := m.Engine.Snapshot()
	fmt.Println(render.StatusLine(snap))
	if err := m.Engine.Halted(); err != nil {
		fmt.Fprintf(os.Stderr, "simulation halted: %v\n", err)
		os.Exit(1)
	}
}
