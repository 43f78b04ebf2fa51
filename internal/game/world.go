package game

import (
	"errors"
	"fmt"
	"sort"

	"microcraft/internal/game/spatial"
	"microcraft/internal/game/visibility"
)

// ErrImpassable is returned when placing an entity on blocked terrain.
var ErrImpassable = errors.New("game: cell impassable")

// MineralPatch is a resource node sitting on an impassable cell.
type MineralPatch struct {
	Cell   spatial.Coord `json:"cell"`
	Amount int           `json:"amount"`
}

// World is the complete simulation state. It is not safe for concurrent use;
// the Engine serializes access.
type World struct {
	rules Rules
	tick  uint64

	grid       *spatial.Grid
	pathfinder *spatial.Pathfinder
	fog        *visibility.Engine

	entities map[EntityID]*Entity
	order    []EntityID // ascending; iteration order for every system
	nextID   EntityID

	minerals   map[spatial.Coord]*MineralPatch
	factions   []Faction
	resources  map[Faction]int
	selection  map[Faction][]EntityID
	eliminated map[Faction]bool
	gameOver   bool
	winner     Faction

	events *EventQueue
}

// NewWorld creates an empty world over grid for the given factions.
func NewWorld(grid *spatial.Grid, rules Rules, factions ...Faction) *World {
	ids := make([]int, len(factions))
	for i, f := range factions {
		ids[i] = int(f)
	}
	w := &World{
		rules:      rules,
		grid:       grid,
		pathfinder: spatial.NewPathfinder(grid),
		fog:        visibility.NewEngine(grid.Width(), grid.Height(), ids...),
		entities:   make(map[EntityID]*Entity),
		minerals:   make(map[spatial.Coord]*MineralPatch),
		factions:   append([]Faction(nil), factions...),
		resources:  make(map[Faction]int),
		selection:  make(map[Faction][]EntityID),
		eliminated: make(map[Faction]bool),
		events:     NewEventQueue(),
	}
	sort.Slice(w.factions, func(i, j int) bool { return w.factions[i] < w.factions[j] })
	return w
}

// Tick returns the number of completed ticks.
func (w *World) Tick() uint64 { return w.tick }

// Rules returns the balance table.
func (w *World) Rules() Rules { return w.rules }

// Grid returns the world grid.
func (w *World) Grid() *spatial.Grid { return w.grid }

// Pathfinder returns the pathfinder bound to the grid.
func (w *World) Pathfinder() *spatial.Pathfinder { return w.pathfinder }

// Fog returns the visibility engine.
func (w *World) Fog() *visibility.Engine { return w.fog }

// Factions returns the participating factions in ascending order.
func (w *World) Factions() []Faction { return append([]Faction(nil), w.factions...) }

// Minerals returns the bank of faction f.
func (w *World) Minerals(f Faction) int { return w.resources[f] }

// SetMinerals overwrites the bank of faction f.
func (w *World) SetMinerals(f Faction, amount int) { w.resources[f] = amount }

// Entity looks up an entity by id. Dead entities stay visible until the end
// of the tick they died in.
func (w *World) Entity(id EntityID) *Entity { return w.entities[id] }

// Entities returns living entities in id order.
func (w *World) Entities() []*Entity {
	out := make([]*Entity, 0, len(w.order))
	for _, id := range w.order {
		if e := w.entities[id]; e != nil && e.Alive {
			out = append(out, e)
		}
	}
	return out
}

// EntityCount returns the number of living entities.
func (w *World) EntityCount() int {
	n := 0
	for _, id := range w.order {
		if e := w.entities[id]; e != nil && e.Alive {
			n++
		}
	}
	return n
}

// Selection returns the selected ids of faction f.
func (w *World) Selection(f Faction) []EntityID {
	return append([]EntityID(nil), w.selection[f]...)
}

// Eliminated reports whether faction f has lost.
func (w *World) Eliminated(f Faction) bool { return w.eliminated[f] }

// GameOver reports whether a single faction remains.
func (w *World) GameOver() bool { return w.gameOver }

// Winner returns the surviving faction once the game is over.
func (w *World) Winner() Faction { return w.winner }

// Events returns the outbound event queue.
func (w *World) Events() *EventQueue { return w.events }

// CommanderFor returns the command surface of faction f.
func (w *World) CommanderFor(f Faction) Commander {
	return factionCommander{world: w, faction: f}
}

// AddMineral places a resource node and makes its cell impassable.
func (w *World) AddMineral(c spatial.Coord, amount int) {
	if !w.grid.InBounds(c) {
		return
	}
	w.minerals[c] = &MineralPatch{Cell: c, Amount: amount}
	w.grid.SetPassable(c, false)
}

// Mineral returns the patch at c, or nil.
func (w *World) Mineral(c spatial.Coord) *MineralPatch { return w.minerals[c] }

// MineralPatches returns every patch sorted by row then column.
func (w *World) MineralPatches() []MineralPatch {
	out := make([]MineralPatch, 0, len(w.minerals))
	for _, m := range w.minerals {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return coordLess(out[i].Cell, out[j].Cell) })
	return out
}

// Spawn creates an entity and claims its footprint. Buildings may be placed
// incomplete; units are always complete.
func (w *World) Spawn(kind Kind, faction Faction, anchor spatial.Coord, complete bool) (*Entity, error) {
	stats, ok := w.rules.Stats[kind]
	if !ok {
		return nil, fmt.Errorf("game: no stats for kind %s", kind)
	}
	cells := footprintCells(anchor, stats.Footprint)
	for _, c := range cells {
		if !w.grid.InBounds(c) {
			return nil, spatial.ErrOutOfBounds
		}
		if !w.grid.IsWalkable(c, spatial.NoOccupant) {
			if occ := w.grid.Occupant(c); occ != spatial.NoOccupant {
				return nil, &spatial.OccupiedError{Cell: c, Occupant: occ}
			}
			return nil, ErrImpassable
		}
	}

	w.nextID++
	e := &Entity{
		ID:       w.nextID,
		Kind:     kind,
		Faction:  faction,
		Cell:     anchor,
		HP:       stats.MaxHP,
		Alive:    true,
		Complete: complete || !kind.IsBuilding(),
		stats:    stats,
	}
	if !e.Complete {
		e.HP = max(1, stats.MaxHP/10)
		e.Activity = ActivityUnderConstruction
	}
	for _, c := range cells {
		if err := w.grid.Occupy(c, e.ID); err != nil {
			return nil, err
		}
	}
	w.entities[e.ID] = e
	w.order = append(w.order, e.ID)

	w.events.Emit(EventTypeUnitSpawned, faction, e.ID, UnitSpawnedPayload{Kind: kind, Cell: anchor})
	return e, nil
}

// kill marks e dead and frees its cells. The record is reaped at tick end.
func (w *World) kill(e *Entity, killer EntityID) {
	if !e.Alive {
		return
	}
	e.Alive = false
	e.HP = 0
	e.path = nil
	e.order = orderNone
	for _, c := range e.Footprint() {
		if w.grid.Occupant(c) == e.ID {
			w.grid.Vacate(c)
		}
	}
	other := Neutral
	if k := w.entities[killer]; k != nil {
		other = k.Faction
	}
	w.events.EmitPair(EventTypeUnitDied, e.Faction, other, e.ID, UnitDiedPayload{Kind: e.Kind, Cell: e.Cell, KillerID: killer})
}

// reap drops dead entities from the id index and selections.
func (w *World) reap() {
	kept := w.order[:0]
	for _, id := range w.order {
		if e := w.entities[id]; e != nil && e.Alive {
			kept = append(kept, id)
			continue
		}
		delete(w.entities, id)
	}
	w.order = kept

	for f, sel := range w.selection {
		live := sel[:0]
		for _, id := range sel {
			if e := w.entities[id]; e != nil && e.Alive {
				live = append(live, id)
			}
		}
		w.selection[f] = live
	}
}

// hostile reports whether two factions are enemies.
func hostile(a, b Faction) bool {
	return a != b && a != Neutral && b != Neutral
}

// visibleTo reports whether any footprint cell of e is in sight of f.
func (w *World) visibleTo(f Faction, e *Entity) bool {
	if e.Faction == f {
		return true
	}
	for _, c := range e.Footprint() {
		if w.fog.Query(int(f), c) == visibility.Visible {
			return true
		}
	}
	return false
}

// exploredBy reports whether f has ever seen c.
func (w *World) exploredBy(f Faction, c spatial.Coord) bool {
	return w.fog.Query(int(f), c) != visibility.Unexplored
}

// UpdateVisibility recomputes every faction's fog from its living entities.
func (w *World) UpdateVisibility() {
	observers := make(map[Faction][]visibility.Observer, len(w.factions))
	for _, id := range w.order {
		e := w.entities[id]
		if e == nil || !e.Alive {
			continue
		}
		observers[e.Faction] = append(observers[e.Faction], visibility.Observer{
			Cell:      e.Center(),
			Radius:    e.stats.Sight,
			Alive:     e.Alive,
			Stealthed: e.Stealthed,
		})
	}
	for _, f := range w.factions {
		w.fog.Recompute(int(f), observers[f])
	}
}

// CheckInvariants verifies that grid occupancy and entity positions agree
// in both directions.
func (w *World) CheckInvariants() error {
	for idx := 0; idx < w.grid.Width()*w.grid.Height(); idx++ {
		c := w.grid.CoordAt(idx)
		occ := w.grid.Occupant(c)
		if occ == spatial.NoOccupant {
			continue
		}
		e := w.entities[occ]
		if e == nil {
			return &InconsistentStateError{Cell: c, Entity: occ, Detail: "occupant does not exist"}
		}
		if !e.Alive {
			return &InconsistentStateError{Cell: c, Entity: occ, Detail: "occupant is dead"}
		}
		if !inFootprint(e.Cell, e.stats.Footprint, c) {
			return &InconsistentStateError{Cell: c, Entity: occ, Detail: "cell outside occupant footprint"}
		}
	}
	for _, id := range w.order {
		e := w.entities[id]
		if e == nil || !e.Alive {
			continue
		}
		for _, c := range e.Footprint() {
			if got := w.grid.Occupant(c); got != e.ID {
				return &InconsistentStateError{Cell: c, Entity: e.ID, Detail: "footprint cell not claimed"}
			}
		}
	}
	return nil
}

// checkVictory eliminates factions without a living base and ends the game
// when at most one faction remains.
func (w *World) checkVictory() {
	if w.gameOver {
		return
	}
	bases := make(map[Faction]int)
	for _, id := range w.order {
		if e := w.entities[id]; e != nil && e.Alive && e.Kind == KindBase {
			bases[e.Faction]++
		}
	}

	var remaining []Faction
	for _, f := range w.factions {
		if w.eliminated[f] {
			continue
		}
		if bases[f] == 0 {
			w.eliminated[f] = true
			w.events.Emit(EventTypeFactionEliminated, f, 0, nil)
			continue
		}
		remaining = append(remaining, f)
	}

	if len(w.factions) > 1 && len(remaining) <= 1 {
		w.gameOver = true
		if len(remaining) == 1 {
			w.winner = remaining[0]
		}
		w.events.Emit(EventTypeGameOver, w.winner, 0, GameOverPayload{Winner: w.winner})
	}
}

// freeCellNear finds the nearest empty walkable cell around a footprint,
// scanning square rings outward in row-major order.
func (w *World) freeCellNear(anchor spatial.Coord, size, maxRing int) (spatial.Coord, bool) {
	for ring := 1; ring <= maxRing; ring++ {
		minX, maxX := anchor.X-ring, anchor.X+size-1+ring
		minY, maxY := anchor.Y-ring, anchor.Y+size-1+ring
		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				if x != minX && x != maxX && y != minY && y != maxY {
					continue
				}
				c := spatial.Coord{X: x, Y: y}
				if w.grid.IsWalkable(c, spatial.NoOccupant) {
					return c, true
				}
			}
		}
	}
	return spatial.Coord{}, false
}

// approachCell picks where mover should stand to be orthogonally adjacent to
// a footprint: the walkable neighbor cell nearest to the mover, ties broken
// by row then column. ok is false when every side is blocked.
func (w *World) approachCell(mover *Entity, anchor spatial.Coord, size int) (spatial.Coord, bool) {
	if adjacentToFootprint(mover.Cell, anchor, size) {
		return mover.Cell, true
	}
	best := spatial.Coord{}
	bestDist := -1
	buf := make([]spatial.Coord, 0, 4)
	for _, fc := range footprintCells(anchor, size) {
		buf = w.grid.Neighbors(fc, buf[:0])
		for _, n := range buf {
			if inFootprint(anchor, size, n) || !w.grid.IsWalkable(n, mover.ID) {
				continue
			}
			d := n.Manhattan(mover.Cell)
			if bestDist < 0 || d < bestDist || (d == bestDist && coordLess(n, best)) {
				best = n
				bestDist = d
			}
		}
	}
	return best, bestDist >= 0
}

// adjacentToFootprint reports whether c shares an edge with the footprint.
func adjacentToFootprint(c, anchor spatial.Coord, size int) bool {
	if inFootprint(anchor, size, c) {
		return false
	}
	for _, d := range [4]spatial.Coord{{X: 0, Y: -1}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: -1, Y: 0}} {
		if inFootprint(anchor, size, c.Add(d)) {
			return true
		}
	}
	return false
}

// footprintDistSq is the squared distance from c to the nearest footprint cell.
func footprintDistSq(c, anchor spatial.Coord, size int) int {
	best := -1
	for _, fc := range footprintCells(anchor, size) {
		if d := c.DistSq(fc); best < 0 || d < best {
			best = d
		}
	}
	return best
}

func coordLess(a, b spatial.Coord) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}
