package visibility

import "microcraft/internal/game/spatial"

// Engine owns one fog map per faction. Factions are small integers assigned
// by the caller.
type Engine struct {
	width, height int
	maps          map[int]*Map
}

// NewEngine creates fog maps for the given factions.
func NewEngine(width, height int, factions ...int) *Engine {
	e := &Engine{
		width:  width,
		height: height,
		maps:   make(map[int]*Map, len(factions)),
	}
	for _, f := range factions {
		e.maps[f] = NewMap(width, height)
	}
	return e
}

// Recompute refreshes the map of faction from its observers. Unknown
// factions get a new map.
func (e *Engine) Recompute(faction int, observers []Observer) int {
	m, ok := e.maps[faction]
	if !ok {
		m = NewMap(e.width, e.height)
		e.maps[faction] = m
	}
	return m.Recompute(observers)
}

// Query returns what faction knows about c. Unknown factions read
// Unexplored everywhere.
func (e *Engine) Query(faction int, c spatial.Coord) State {
	m, ok := e.maps[faction]
	if !ok {
		return Unexplored
	}
	return m.At(c)
}

// Map returns the fog map of faction, or nil.
func (e *Engine) Map(faction int) *Map {
	return e.maps[faction]
}
