package game

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"microcraft/internal/game/spatial"
	"microcraft/internal/game/visibility"
)

// EntitySnapshot is an immutable copy of entity state for rendering and for
// the opponent's view. Uses value types (not pointers) to ensure immutability
type EntitySnapshot struct {
	ID        EntityID      `json:"id"`
	Kind      Kind          `json:"kind"`
	Faction   Faction       `json:"faction"`
	Cell      spatial.Coord `json:"cell"`
	Footprint int           `json:"footprint"`
	HP        int           `json:"hp"`
	MaxHP     int           `json:"maxHp"`
	Activity  Activity      `json:"activity"`
	Complete  bool          `json:"complete"`
	Moving    bool          `json:"moving"`
	QueueLen  int           `json:"queueLen,omitempty"`
	Carrying  int           `json:"carrying,omitempty"`
	Target    EntityID      `json:"target,omitempty"`
}

// Covers reports whether c lies inside the entity's footprint.
func (e EntitySnapshot) Covers(c spatial.Coord) bool {
	return inFootprint(e.Cell, e.Footprint, c)
}

func snapshotEntity(e *Entity) EntitySnapshot {
	return EntitySnapshot{
		ID:        e.ID,
		Kind:      e.Kind,
		Faction:   e.Faction,
		Cell:      e.Cell,
		Footprint: e.stats.Footprint,
		HP:        e.HP,
		MaxHP:     e.stats.MaxHP,
		Activity:  e.Activity,
		Complete:  e.Complete,
		Moving:    e.Moving(),
		QueueLen:  len(e.queue),
		Carrying:  e.carrying,
		Target:    e.target,
	}
}

// FogGrid is one faction's visibility in row-major order. It encodes to JSON
// as a string of digits, one per cell.
type FogGrid []visibility.State

// MarshalJSON encodes the grid as a compact digit string
func (g FogGrid) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, len(g)+2)
	buf = append(buf, '"')
	for _, s := range g {
		buf = append(buf, '0'+byte(s))
	}
	buf = append(buf, '"')
	return buf, nil
}

// Snapshot is the read-only world state published at the end of every tick.
// Nothing in it aliases simulation storage.
type Snapshot struct {
	Sequence   uint64                  `json:"sequence"`
	Tick       uint64                  `json:"tick"`
	Timestamp  int64                   `json:"timestamp"`
	Width      int                     `json:"width"`
	Height     int                     `json:"height"`
	Terrain    []bool                  `json:"terrain"`
	Entities   []EntitySnapshot        `json:"entities"`
	Minerals   []MineralPatch          `json:"minerals"`
	Resources  map[Faction]int         `json:"resources"`
	Fog        map[Faction]FogGrid     `json:"fog"`
	AIStates   map[Faction]string      `json:"aiStates,omitempty"`
	Eliminated []Faction               `json:"eliminated,omitempty"`
	GameOver   bool                    `json:"gameOver"`
	Winner     Faction                 `json:"winner,omitempty"`
	Pathfinder spatial.PathfinderStats `json:"pathfinder"`
}

// Snapshot copies the world. aiStates is attached as-is.
func (w *World) Snapshot(aiStates map[Faction]string) *Snapshot {
	g := w.grid.Snapshot()
	s := &Snapshot{
		Tick:       w.tick,
		Timestamp:  time.Now().UnixMilli(),
		Width:      g.Width,
		Height:     g.Height,
		Terrain:    g.Passable,
		Entities:   make([]EntitySnapshot, 0, len(w.order)),
		Minerals:   w.MineralPatches(),
		Resources:  make(map[Faction]int, len(w.factions)),
		Fog:        make(map[Faction]FogGrid, len(w.factions)),
		AIStates:   aiStates,
		GameOver:   w.gameOver,
		Winner:     w.winner,
		Pathfinder: w.pathfinder.Stats(),
	}
	for _, e := range w.Entities() {
		s.Entities = append(s.Entities, snapshotEntity(e))
	}
	for _, f := range w.factions {
		s.Resources[f] = w.resources[f]
		if m := w.fog.Map(int(f)); m != nil {
			s.Fog[f] = FogGrid(m.Snapshot())
		}
		if w.eliminated[f] {
			s.Eliminated = append(s.Eliminated, f)
		}
	}
	return s
}

// FogAt returns what faction f knows about c. Factions without a fog grid
// see everything.
func (s *Snapshot) FogAt(f Faction, c spatial.Coord) visibility.State {
	grid, ok := s.Fog[f]
	if !ok {
		return visibility.Visible
	}
	if c.X < 0 || c.X >= s.Width || c.Y < 0 || c.Y >= s.Height {
		return visibility.Unexplored
	}
	return grid[c.Y*s.Width+c.X]
}

// Reveals is Concerns narrowed by f's fog: a depleted patch is only news to
// factions that have explored its cell.
func (s *Snapshot) Reveals(f Faction, ev Event) bool {
	if !ev.Concerns(f) {
		return false
	}
	if ev.Type != EventTypeMineralDepleted || ev.Faction != Neutral {
		return true
	}
	var p MineralDepletedPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return false
	}
	return s.FogAt(f, p.Cell) != visibility.Unexplored
}

// Passable reports terrain passability.
func (s *Snapshot) Passable(c spatial.Coord) bool {
	if c.X < 0 || c.X >= s.Width || c.Y < 0 || c.Y >= s.Height {
		return false
	}
	return s.Terrain[c.Y*s.Width+c.X]
}

// EntityAt returns the entity covering c.
func (s *Snapshot) EntityAt(c spatial.Coord) (EntitySnapshot, bool) {
	for _, e := range s.Entities {
		if e.Covers(c) {
			return e, true
		}
	}
	return EntitySnapshot{}, false
}

// MineralAt returns the patch at c.
func (s *Snapshot) MineralAt(c spatial.Coord) (MineralPatch, bool) {
	for _, m := range s.Minerals {
		if m.Cell == c {
			return m, true
		}
	}
	return MineralPatch{}, false
}

// ForFaction returns the snapshot as faction f is allowed to see it: own
// entities plus enemies on cells f currently sees, minerals on explored
// cells, and only f's fog and bank.
func (s *Snapshot) ForFaction(f Faction) *Snapshot {
	out := *s
	out.Entities = make([]EntitySnapshot, 0, len(s.Entities))
	for _, e := range s.Entities {
		if e.Faction == f || s.seesAny(f, e) {
			out.Entities = append(out.Entities, e)
		}
	}
	out.Minerals = make([]MineralPatch, 0, len(s.Minerals))
	for _, m := range s.Minerals {
		if s.FogAt(f, m.Cell) != visibility.Unexplored {
			out.Minerals = append(out.Minerals, m)
		}
	}
	out.Fog = map[Faction]FogGrid{}
	if grid, ok := s.Fog[f]; ok {
		out.Fog[f] = grid
	}
	out.Resources = map[Faction]int{f: s.Resources[f]}
	return &out
}

func (s *Snapshot) seesAny(f Faction, e EntitySnapshot) bool {
	for _, c := range footprintCells(e.Cell, e.Footprint) {
		if s.FogAt(f, c) == visibility.Visible {
			return true
		}
	}
	return false
}

// SnapshotStore publishes the latest snapshot to concurrent readers.
// The writer builds a fresh snapshot each tick and swaps the pointer, so
// readers never observe a half-written state and never block the tick.
type SnapshotStore struct {
	current  atomic.Pointer[Snapshot]
	sequence atomic.Uint64
}

// Publish stamps and stores s.
func (p *SnapshotStore) Publish(s *Snapshot) {
	s.Sequence = p.sequence.Add(1)
	p.current.Store(s)
}

// Load returns the latest snapshot, or nil before the first tick.
func (p *SnapshotStore) Load() *Snapshot {
	return p.current.Load()
}
