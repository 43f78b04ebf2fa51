package game

import (
	"microcraft/internal/game/spatial"
	"microcraft/internal/game/visibility"
)

// Controller drives one faction from inside the tick. It reads only its
// FactionView and acts only through the Commander.
type Controller interface {
	Faction() Faction
	Update(view *FactionView, cmd Commander)
	State() string
}

// FactionView is everything a faction is entitled to know at the current
// tick: its own units in full, enemies standing on cells it can see right
// now, minerals on cells it has explored, its bank, and its fog. Patches on
// unexplored cells read as open ground.
type FactionView struct {
	Tick     uint64
	Faction  Faction
	Minerals int
	Width    int
	Height   int
	Rules    Rules

	Own     []EntitySnapshot
	Enemies []EntitySnapshot
	Patches []MineralPatch
	fog     *visibility.Map
	grid    *spatial.Grid
	hidden  map[spatial.Coord]bool
}

// ViewFor builds the view of faction f.
func (w *World) ViewFor(f Faction) *FactionView {
	v := &FactionView{
		Tick:     w.tick,
		Faction:  f,
		Minerals: w.resources[f],
		Width:    w.grid.Width(),
		Height:   w.grid.Height(),
		Rules:    w.rules,
		fog:      w.fog.Map(int(f)),
		grid:     w.grid,
	}
	for _, e := range w.Entities() {
		switch {
		case e.Faction == f:
			v.Own = append(v.Own, snapshotEntity(e))
		case hostile(f, e.Faction) && w.visibleTo(f, e):
			v.Enemies = append(v.Enemies, snapshotEntity(e))
		}
	}
	for _, m := range w.MineralPatches() {
		if w.exploredBy(f, m.Cell) {
			v.Patches = append(v.Patches, m)
			continue
		}
		if v.hidden == nil {
			v.hidden = make(map[spatial.Coord]bool)
		}
		v.hidden[m.Cell] = true
	}
	return v
}

// Visibility returns the faction's knowledge of c.
func (v *FactionView) Visibility(c spatial.Coord) visibility.State {
	if v.fog == nil {
		return visibility.Unexplored
	}
	return v.fog.At(c)
}

// Passable reports static terrain passability. Terrain is public knowledge;
// mineral patches are not until explored.
func (v *FactionView) Passable(c spatial.Coord) bool {
	if v.hidden[c] {
		return true
	}
	return v.grid.Passable(c)
}

// Free reports whether c looks buildable to the faction: passable, explored,
// and, when currently visible, unoccupied. Occupancy of cells out of sight
// is unknown and assumed free.
func (v *FactionView) Free(c spatial.Coord) bool {
	if !v.grid.Passable(c) {
		return false
	}
	switch v.Visibility(c) {
	case visibility.Unexplored:
		return false
	case visibility.Visible:
		return v.grid.Occupant(c) == spatial.NoOccupant
	default:
		return true
	}
}

// DistanceField returns walking distances from sources over terrain as the
// faction knows it.
func (v *FactionView) DistanceField(sources []spatial.Coord) *spatial.DistanceField {
	f := spatial.NewDistanceField(v.grid)
	f.GenerateFunc(v.grid, sources, v.Passable)
	return f
}

// OwnOfKind returns own entities of kind k in id order.
func (v *FactionView) OwnOfKind(k Kind) []EntitySnapshot {
	var out []EntitySnapshot
	for _, e := range v.Own {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
