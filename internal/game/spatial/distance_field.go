package spatial

// Unreachable is the distance reported for cells no source can reach.
const Unreachable = -1

// DistanceField holds exact 4-connected step distances from a set of source
// cells to every cell of a grid, over static terrain only. Occupancy is
// ignored, so the field stays valid while units move and only needs
// regenerating when terrain changes.
//
// Units that share a destination can read the field instead of each running
// A*; for threat ranges around a base it gives walking distance rather than
// straight-line distance.
//
// Time complexity: O(width × height) per Generate.
type DistanceField struct {
	width, height int
	dist          []int32
	queue         []int // Reusable BFS queue
}

// NewDistanceField creates an empty field sized for g.
func NewDistanceField(g *Grid) *DistanceField {
	size := g.width * g.height
	f := &DistanceField{
		width:  g.width,
		height: g.height,
		dist:   make([]int32, size),
		queue:  make([]int, 0, size),
	}
	for i := range f.dist {
		f.dist[i] = Unreachable
	}
	return f
}

// Generate recomputes the field by breadth-first search from sources.
// Sources need not be passable themselves (a building footprint is a valid
// source), but expansion only enters passable cells.
func (f *DistanceField) Generate(g *Grid, sources []Coord) {
	f.GenerateFunc(g, sources, nil)
}

// GenerateFunc is Generate with passability decided by passable instead of
// the grid's terrain. A nil passable uses the terrain.
func (f *DistanceField) GenerateFunc(g *Grid, sources []Coord, passable func(Coord) bool) {
	for i := range f.dist {
		f.dist[i] = Unreachable
	}

	f.queue = f.queue[:0]
	for _, s := range sources {
		if !g.InBounds(s) {
			continue
		}
		idx := g.Index(s)
		if f.dist[idx] == 0 {
			continue
		}
		f.dist[idx] = 0
		f.queue = append(f.queue, idx)
	}

	neighbors := make([]Coord, 0, 4)
	head := 0
	for head < len(f.queue) {
		current := f.queue[head]
		head++
		currentCost := f.dist[current]

		neighbors = g.Neighbors(g.CoordAt(current), neighbors[:0])
		for _, n := range neighbors {
			nidx := g.Index(n)
			if f.dist[nidx] != Unreachable {
				continue
			}
			if passable != nil {
				if !passable(n) {
					continue
				}
			} else if !g.passable[nidx] {
				continue
			}
			f.dist[nidx] = currentCost + 1
			f.queue = append(f.queue, nidx)
		}
	}
}

// Distance returns the step distance from the nearest source to c, or
// Unreachable.
func (f *DistanceField) Distance(c Coord) int {
	if c.X < 0 || c.X >= f.width || c.Y < 0 || c.Y >= f.height {
		return Unreachable
	}
	return int(f.dist[c.Y*f.width+c.X])
}

// Within reports whether c is reachable in at most limit steps.
func (f *DistanceField) Within(c Coord, limit int) bool {
	d := f.Distance(c)
	return d != Unreachable && d <= limit
}
