// Command headless plays opponent controllers against each other as fast as
// the simulation steps and prints a summary. Optional outputs are the same
// as the server's: PNG frames, an NDJSON event log and a Parquet archive.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"microcraft/internal/config"
	"microcraft/internal/game"
	"microcraft/internal/logger"
	"microcraft/internal/match"
)

func main() {
	godotenv.Load(".env")
	appConfig := config.Load()

	ticks := flag.Int("ticks", 9000, "maximum ticks to simulate")
	seed := flag.Int64("seed", appConfig.Sim.Seed, "opponent seed")
	mapFile := flag.String("map", appConfig.Sim.MapFile, "ASCII map file (default built-in)")
	doctrine := flag.String("doctrine", appConfig.AI.DoctrineFile, "doctrine JSON file (default standard)")
	factions := flag.String("ai", "1,2", "comma separated factions driven by the opponent")
	archivePath := flag.String("archive", appConfig.Output.ArchivePath, "Parquet event archive path")
	eventLog := flag.String("events", appConfig.Output.EventLog, "NDJSON event log path")
	frameDir := flag.String("frames", appConfig.Output.FrameDir, "PNG frame directory")
	frameEvery := flag.Int("frame-every", appConfig.Output.FrameEvery, "ticks between frames")
	view := flag.Int("view", appConfig.Output.ViewFaction, "faction whose fog frames show (0 for none)")
	logLevel := flag.String("log", "warn", "log level")
	flag.Parse()

	logger.Init(*logLevel, appConfig.Observability.LogFormat)
	log := logger.Component("headless")

	appConfig.Sim.Seed = *seed
	appConfig.Sim.MapFile = *mapFile
	appConfig.AI.DoctrineFile = *doctrine
	appConfig.AI.Factions = parseFactions(*factions)
	appConfig.Output.ArchivePath = *archivePath
	appConfig.Output.EventLog = *eventLog
	appConfig.Output.FrameDir = *frameDir
	appConfig.Output.FrameEvery = *frameEvery
	appConfig.Output.ViewFaction = *view

	m, err := match.New(appConfig)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to set up match")
	}

	runID := fmt.Sprintf("%s-seed%d", m.Scenario.Name, *seed)
	outputs, err := match.OpenOutputs(m.Engine, appConfig.Output, runID)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to open outputs")
	}

	start := time.Now()
	var stepErr error
	for i := 0; i < *ticks; i++ {
		if stepErr = m.Engine.Step(); stepErr != nil {
			break
		}
		if err := outputs.Sync(); err != nil {
			log.WithError(err).Warn("⚠️ Output sync failed")
		}
		if m.Engine.Snapshot().GameOver {
			break
		}
	}
	elapsed := time.Since(start)

	if err := outputs.Close(); err != nil {
		log.WithError(err).Error("❌ Failed to flush outputs")
	}

	printSummary(m.Engine.Snapshot(), elapsed)
	if outputs.Archive != nil {
		fmt.Printf("archive   %s (%d rows)\n", appConfig.Output.ArchivePath, outputs.Archive.Len())
	}
	if stepErr != nil {
		fmt.Fprintf(os.Stderr, "simulation halted: %v\n", stepErr)
		os.Exit(1)
	}
}

func printSummary(snap *game.Snapshot, elapsed time.Duration) {
	tps := float64(snap.Tick) / max(elapsed.Seconds(), 1e-9)
	fmt.Printf("ticks     %d in %s (%.0f ticks/s)\n", snap.Tick, elapsed.Round(time.Millisecond), tps)
	if snap.GameOver {
		fmt.Printf("winner    faction %d\n", snap.Winner)
	} else {
		fmt.Println("winner    none (tick limit)")
	}

	counts := make(map[game.Faction]map[game.Kind]int)
	for _, e := range snap.Entities {
		if counts[e.Faction] == nil {
			counts[e.Faction] = make(map[game.Kind]int)
		}
		counts[e.Faction][e.Kind]++
	}

	factions := make([]game.Faction, 0, len(snap.Resources))
	for f := range snap.Resources {
		factions = append(factions, f)
	}
	sort.Slice(factions, func(i, j int) bool { return factions[i] < factions[j] })

	for _, f := range factions {
		c := counts[f]
		fmt.Printf("faction %d minerals=%-5d workers=%-3d soldiers=%-3d bases=%d barracks=%d state=%s\n",
			f, snap.Resources[f], c[game.KindWorker], c[game.KindSoldier], c[game.KindBase], c[game.KindBarracks],
			stateOf(snap, f))
	}
	fmt.Printf("paths     %d requests, %d failed\n", snap.Pathfinder.Requests, snap.Pathfinder.Failures)
}

func stateOf(snap *game.Snapshot, f game.Faction) string {
	for _, e := range snap.Eliminated {
		if e == f {
			return "eliminated"
		}
	}
	if s, ok := snap.AIStates[f]; ok {
		return s
	}
	return "-"
}

func parseFactions(v string) []int {
	var out []int
	for _, part := range strings.Split(v, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, n)
		}
	}
	return out
}
