// Package match assembles a runnable game from configuration: the map, the
// tick engine and an opponent controller for every AI faction.
package match

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"microcraft/internal/ai"
	"microcraft/internal/config"
	"microcraft/internal/game"
	"microcraft/internal/logger"
)

// Match is an engine with its controllers registered but not started.
type Match struct {
	Scenario  game.Scenario
	Engine    *game.Engine
	Opponents []*ai.Opponent
	// Humans are the factions no controller drives, in ascending order.
	Humans []game.Faction
}

// New builds a match. Opponent seeds derive from the simulation seed and
// the faction, so two AI factions never share a random stream.
func New(cfg config.AppConfig) (*Match, error) {
	log := logger.Component("match")

	scenario, err := LoadScenario(cfg.Sim)
	if err != nil {
		return nil, err
	}

	world, err := scenario.Build()
	if err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}

	doctrine, err := LoadDoctrine(cfg.AI.DoctrineFile)
	if err != nil {
		return nil, err
	}

	engine := game.NewEngine(world, game.EngineOptions{
		TickRate:        cfg.Sim.TickRate,
		InboxSize:       cfg.Sim.InboxSize,
		CheckInvariants: cfg.Sim.CheckInvariants,
	})

	present := make(map[game.Faction]bool)
	for _, f := range world.Factions() {
		present[f] = true
	}
	driven := make(map[game.Faction]bool)
	for _, id := range cfg.AI.Factions {
		f := game.Faction(id)
		if id <= 0 || id > 255 || !present[f] {
			return nil, fmt.Errorf("match: opponent faction %d is not on map %s", id, scenario.Name)
		}
		driven[f] = true
	}

	m := &Match{Scenario: scenario, Engine: engine}
	params := ai.ParamsFromConfig(cfg.AI)
	for _, f := range world.Factions() {
		if !driven[f] {
			m.Humans = append(m.Humans, f)
			continue
		}
		opp, err := ai.New(f, params, doctrine, cfg.Sim.Seed*31+int64(f))
		if err != nil {
			return nil, fmt.Errorf("match: opponent %d: %w", f, err)
		}
		engine.AddController(opp)
		m.Opponents = append(m.Opponents, opp)
	}

	log.WithFields(logrus.Fields{
		"map":       scenario.Name,
		"size":      fmt.Sprintf("%dx%d", world.Grid().Width(), world.Grid().Height()),
		"opponents": len(m.Opponents),
		"humans":    m.Humans,
		"doctrine":  doctrine.Name,
	}).Info("🗺️ Match ready")

	return m, nil
}

// LoadScenario returns the map named by MapFile, or the built-in map.
func LoadScenario(cfg config.SimConfig) (game.Scenario, error) {
	if cfg.MapFile == "" {
		return game.DefaultScenario(), nil
	}
	return game.LoadScenario(cfg.MapFile)
}

// Factions lists the factions with a start on the scenario's map.
func Factions(s game.Scenario) ([]game.Faction, error) {
	m, err := game.ParseMap(s.Rows)
	if err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}
	return m.Factions(), nil
}

// LoadDoctrine reads a JSON doctrine file. An empty path yields the
// standard doctrine.
func LoadDoctrine(path string) (ai.Doctrine, error) {
	if path == "" {
		return ai.DefaultDoctrine(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ai.Doctrine{}, fmt.Errorf("match: doctrine: %w", err)
	}
	d, err := ai.ParseDoctrine(data)
	if err != nil {
		return ai.Doctrine{}, err
	}
	if _, err := d.Compile(); err != nil {
		return ai.Doctrine{}, err
	}
	return d, nil
}
