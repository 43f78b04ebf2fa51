package game

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"microcraft/internal/game/spatial"
)

// Map legend:
//
//	.  open ground
//	#  rock (impassable)
//	M  mineral patch
//	1-9  base anchor (top-left footprint cell) of that faction
var defaultMap = []string{
	"........................................",
	"........................................",
	".M..................MM..................",
	".M......................................",
	".M...1..................................",
	".M......................................",
	".M.................##...................",
	".M.................##...................",
	"...................##...######..........",
	"..MM...............##...................",
	"........................................",
	"........................................",
	"........................................",
	"...................##...................",
	"...................##...............MM..",
	"..........######...##...................",
	"...................##.................M.",
	"...................##.................M.",
	".................................2....M.",
	"......................................M.",
	"......................................M.",
	"..................MM..................M.",
	"........................................",
	"........................................",
}

// MapData is a parsed map.
type MapData struct {
	Width    int
	Height   int
	Rock     []spatial.Coord
	Minerals []spatial.Coord
	Starts   map[Faction]spatial.Coord
}

// Factions returns the factions with a start position, ascending.
func (m *MapData) Factions() []Faction {
	out := make([]Faction, 0, len(m.Starts))
	for f := range m.Starts {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseMap reads map rows. All rows must have the same width.
func ParseMap(rows []string) (*MapData, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("map: no rows")
	}
	m := &MapData{
		Width:  len(rows[0]),
		Height: len(rows),
		Starts: make(map[Faction]spatial.Coord),
	}
	if m.Width == 0 {
		return nil, fmt.Errorf("map: empty first row")
	}
	for y, row := range rows {
		if len(row) != m.Width {
			return nil, fmt.Errorf("map: row %d has width %d, want %d", y, len(row), m.Width)
		}
		for x, ch := range row {
			c := spatial.Coord{X: x, Y: y}
			switch {
			case ch == '.':
			case ch == '#':
				m.Rock = append(m.Rock, c)
			case ch == 'M':
				m.Minerals = append(m.Minerals, c)
			case ch >= '1' && ch <= '9':
				f := Faction(ch - '0')
				if _, dup := m.Starts[f]; dup {
					return nil, fmt.Errorf("map: faction %d has two starts", f)
				}
				m.Starts[f] = c
			default:
				return nil, fmt.Errorf("map: unknown tile %q at (%d,%d)", ch, x, y)
			}
		}
	}
	if len(m.Starts) < 1 {
		return nil, fmt.Errorf("map: no start positions")
	}
	return m, nil
}

// ReadMap reads rows from r, skipping blank lines and lines starting with ';'.
func ReadMap(r io.Reader) ([]string, error) {
	var rows []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		rows = append(rows, line)
	}
	return rows, sc.Err()
}

// Scenario describes a match setup.
type Scenario struct {
	Name  string
	Rows  []string
	Rules Rules
}

// DefaultScenario is the built-in two-faction map with standard rules.
func DefaultScenario() Scenario {
	return Scenario{
		Name:  "crossroads",
		Rows:  defaultMap,
		Rules: DefaultRules(),
	}
}

// LoadScenario reads an ASCII map file and pairs it with the default rules.
// The scenario is named after the file.
func LoadScenario(path string) (Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("scenario: %w", err)
	}
	defer f.Close()

	rows, err := ReadMap(f)
	if err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", path, err)
	}
	if _, err := ParseMap(rows); err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Scenario{Name: name, Rows: rows, Rules: DefaultRules()}, nil
}

// Build creates the world: terrain, minerals, a complete base per start and
// the starting workers, already gathering from the nearest visible patch.
func (s Scenario) Build() (*World, error) {
	m, err := ParseMap(s.Rows)
	if err != nil {
		return nil, err
	}

	grid := spatial.NewGrid(m.Width, m.Height)
	for _, c := range m.Rock {
		grid.SetPassable(c, false)
	}

	w := NewWorld(grid, s.Rules, m.Factions()...)
	for _, c := range m.Minerals {
		w.AddMineral(c, s.Rules.MineralAmount)
	}

	for _, f := range w.factions {
		start := m.Starts[f]
		base, err := w.Spawn(KindBase, f, start, true)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: base for faction %d: %w", s.Name, f, err)
		}
		w.resources[f] = s.Rules.StartingMinerals
		for i := 0; i < s.Rules.StartingWorkers; i++ {
			cell, ok := w.freeCellNear(base.Cell, base.stats.Footprint, 3)
			if !ok {
				return nil, fmt.Errorf("scenario %s: no room for workers of faction %d", s.Name, f)
			}
			if _, err := w.Spawn(KindWorker, f, cell, true); err != nil {
				return nil, fmt.Errorf("scenario %s: worker: %w", s.Name, err)
			}
		}
	}

	// Reveal start areas so workers can find their minerals.
	w.UpdateVisibility()
	for _, e := range w.Entities() {
		if !e.Can(CapGatherer) {
			continue
		}
		if patch, ok := w.nearestPatch(e.Faction, e.Cell); ok {
			e.order = orderGather
			e.gatherCell = patch
		}
	}
	w.events.Drain()
	return w, nil
}
