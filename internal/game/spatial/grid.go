// Package spatial provides the cell grid the simulation runs on, together with
// the pathfinding structures that read it.
//
// All structures use preallocated slices with integer indices (not pointers)
// to minimize GC pressure and maximize cache locality.
package spatial

// OccupantID identifies the entity standing on a cell. Zero means empty.
type OccupantID uint32

// NoOccupant marks an empty cell.
const NoOccupant OccupantID = 0

// Coord is a cell coordinate. Origin is the top-left corner, X grows right
// and Y grows down.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns c translated by d.
func (c Coord) Add(d Coord) Coord {
	return Coord{X: c.X + d.X, Y: c.Y + d.Y}
}

// Manhattan returns the 4-connected step distance between two cells.
func (c Coord) Manhattan(o Coord) int {
	return abs(c.X-o.X) + abs(c.Y-o.Y)
}

// DistSq returns the squared Euclidean distance between two cell centers.
func (c Coord) DistSq(o Coord) int {
	dx := c.X - o.X
	dy := c.Y - o.Y
	return dx*dx + dy*dy
}

// neighborOffsets is the fixed expansion order: Up, Right, Down, Left.
// Pathfinding tie-breaking depends on this order staying stable.
var neighborOffsets = [4]Coord{
	{X: 0, Y: -1},
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
}

// Grid is the fixed-size world map. Each cell carries static terrain
// passability and the id of the entity occupying it.
//
// Memory layout: cells are stored in row-major order (cells[y*width+x]).
// The grid is created once at map load and never resized.
type Grid struct {
	width, height int
	passable      []bool
	occupant      []OccupantID
}

// NewGrid creates a grid where every cell is passable and empty.
func NewGrid(width, height int) *Grid {
	// Ensure at least 1x1 grid
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	passable := make([]bool, width*height)
	for i := range passable {
		passable[i] = true
	}

	return &Grid{
		width:    width,
		height:   height,
		passable: passable,
		occupant: make([]OccupantID, width*height),
	}
}

// Width returns the number of columns.
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid) Height() int { return g.height }

// InBounds reports whether c lies inside the map.
func (g *Grid) InBounds(c Coord) bool {
	return c.X >= 0 && c.X < g.width && c.Y >= 0 && c.Y < g.height
}

// Index returns the row-major index of c. The caller must check bounds.
func (g *Grid) Index(c Coord) int {
	return c.Y*g.width + c.X
}

// CoordAt is the inverse of Index.
func (g *Grid) CoordAt(idx int) Coord {
	return Coord{X: idx % g.width, Y: idx / g.width}
}

// Passable reports static terrain passability. Out-of-bounds cells are not
// passable.
func (g *Grid) Passable(c Coord) bool {
	if !g.InBounds(c) {
		return false
	}
	return g.passable[g.Index(c)]
}

// SetPassable changes terrain passability. Used while loading a map and when
// a resource node is exhausted.
func (g *Grid) SetPassable(c Coord, passable bool) {
	if !g.InBounds(c) {
		return
	}
	g.passable[g.Index(c)] = passable
}

// Occupant returns the entity standing on c, or NoOccupant.
func (g *Grid) Occupant(c Coord) OccupantID {
	if !g.InBounds(c) {
		return NoOccupant
	}
	return g.occupant[g.Index(c)]
}

// IsWalkable reports whether mover may enter c: the cell must be in bounds,
// passable, and either empty or already occupied by mover itself.
func (g *Grid) IsWalkable(c Coord, mover OccupantID) bool {
	if !g.InBounds(c) {
		return false
	}
	idx := g.Index(c)
	if !g.passable[idx] {
		return false
	}
	occ := g.occupant[idx]
	return occ == NoOccupant || occ == mover
}

// Occupy claims c for id. Claiming a cell id already holds is a no-op.
func (g *Grid) Occupy(c Coord, id OccupantID) error {
	if !g.InBounds(c) {
		return ErrOutOfBounds
	}
	idx := g.Index(c)
	if occ := g.occupant[idx]; occ != NoOccupant && occ != id {
		return &OccupiedError{Cell: c, Occupant: occ}
	}
	g.occupant[idx] = id
	return nil
}

// Vacate clears the occupant of c.
func (g *Grid) Vacate(c Coord) {
	if !g.InBounds(c) {
		return
	}
	g.occupant[g.Index(c)] = NoOccupant
}

// Neighbors appends the in-bounds 4-connected neighbors of c to buf and
// returns it. Order is Up, Right, Down, Left.
func (g *Grid) Neighbors(c Coord, buf []Coord) []Coord {
	for _, d := range neighborOffsets {
		n := c.Add(d)
		if g.InBounds(n) {
			buf = append(buf, n)
		}
	}
	return buf
}

// OccupiedCount returns the number of cells holding an occupant.
func (g *Grid) OccupiedCount() int {
	n := 0
	for _, occ := range g.occupant {
		if occ != NoOccupant {
			n++
		}
	}
	return n
}

// GridSnapshot is a tick-stable copy of the grid for readers outside the
// simulation goroutine.
type GridSnapshot struct {
	Width    int          `json:"width"`
	Height   int          `json:"height"`
	Passable []bool       `json:"passable"`
	Occupant []OccupantID `json:"-"`
}

// Snapshot copies terrain and occupancy.
func (g *Grid) Snapshot() GridSnapshot {
	s := GridSnapshot{
		Width:    g.width,
		Height:   g.height,
		Passable: make([]bool, len(g.passable)),
		Occupant: make([]OccupantID, len(g.occupant)),
	}
	copy(s.Passable, g.passable)
	copy(s.Occupant, g.occupant)
	return s
}

// IsPassable reports terrain passability in the snapshot.
func (s GridSnapshot) IsPassable(c Coord) bool {
	if c.X < 0 || c.X >= s.Width || c.Y < 0 || c.Y >= s.Height {
		return false
	}
	return s.Passable[c.Y*s.Width+c.X]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
