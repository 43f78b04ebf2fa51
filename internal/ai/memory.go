package ai

import (
	"sort"

	"microcraft/internal/game"
	"microcraft/internal/game/spatial"
	"microcraft/internal/game/visibility"
)

// Sighting is the last time an enemy entity was seen.
type Sighting struct {
	ID        game.EntityID
	Kind      game.Kind
	Faction   game.Faction
	Cell      spatial.Coord
	Footprint int
	Tick      uint64
}

// Memory remembers enemies the faction has seen. It is fed only from the
// faction's own view.
type Memory struct {
	ttl  uint64
	seen map[game.EntityID]Sighting
}

// NewMemory creates a memory whose entries expire ttl ticks after the last
// sighting.
func NewMemory(ttl int) *Memory {
	return &Memory{ttl: uint64(max(1, ttl)), seen: make(map[game.EntityID]Sighting)}
}

// Observe records the visible enemies and forgets stale entries: those past
// their TTL and those whose cell is in sight again with the enemy gone.
func (m *Memory) Observe(view *game.FactionView) {
	visible := make(map[game.EntityID]bool, len(view.Enemies))
	for _, e := range view.Enemies {
		visible[e.ID] = true
		m.seen[e.ID] = Sighting{
			ID:        e.ID,
			Kind:      e.Kind,
			Faction:   e.Faction,
			Cell:      e.Cell,
			Footprint: e.Footprint,
			Tick:      view.Tick,
		}
	}
	for id, s := range m.seen {
		if visible[id] {
			continue
		}
		if view.Tick-s.Tick > m.ttl || view.Visibility(s.Cell) == visibility.Visible {
			delete(m.seen, id)
		}
	}
}

// Len returns the number of remembered enemies.
func (m *Memory) Len() int { return len(m.seen) }

// Known returns every sighting ordered by id.
func (m *Memory) Known() []Sighting {
	out := make([]Sighting, 0, len(m.seen))
	for _, s := range m.seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EnemyBase returns the remembered enemy base nearest to from.
func (m *Memory) EnemyBase(from spatial.Coord) (Sighting, bool) {
	var best Sighting
	found := false
	for _, s := range m.Known() {
		if s.Kind != game.KindBase {
			continue
		}
		if !found || s.Cell.Manhattan(from) < best.Cell.Manhattan(from) {
			best = s
			found = true
		}
	}
	return best, found
}

// Latest returns the most recent sighting, lowest id first on ties.
func (m *Memory) Latest() (Sighting, bool) {
	var best Sighting
	found := false
	for _, s := range m.Known() {
		if !found || s.Tick > best.Tick {
			best = s
			found = true
		}
	}
	return best, found
}
