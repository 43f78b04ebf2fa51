// Package visibility tracks per-faction fog of war over the cell grid.
package visibility

import "microcraft/internal/game/spatial"

// State is what a faction knows about a cell.
type State uint8

const (
	// Unexplored cells have never been seen.
	Unexplored State = iota
	// Explored cells were seen before but are not in sight now.
	Explored
	// Visible cells are inside the sight radius of a living observer.
	Visible
)

func (s State) String() string {
	switch s {
	case Unexplored:
		return "unexplored"
	case Explored:
		return "explored"
	case Visible:
		return "visible"
	default:
		return "unknown"
	}
}

// Observer is a sight source. Dead or stealthed observers reveal nothing.
type Observer struct {
	Cell      spatial.Coord
	Radius    int
	Alive     bool
	Stealthed bool
}

// Map is one faction's fog of war. Cells only ever move forward from
// Unexplored; Visible falls back to Explored once out of sight.
type Map struct {
	width, height int
	cells         []State
	visible       []int // indices marked Visible by the last Recompute
	explored      int
}

// NewMap creates a fully unexplored fog map.
func NewMap(width, height int) *Map {
	return &Map{
		width:   width,
		height:  height,
		cells:   make([]State, width*height),
		visible: make([]int, 0, 256),
	}
}

// Recompute demotes every Visible cell to Explored, then marks the cells
// within each observer's radius as Visible. A cell is in range when
// dx² + dy² ≤ r². It returns the number of cells seen for the first time.
func (m *Map) Recompute(observers []Observer) int {
	for _, idx := range m.visible {
		m.cells[idx] = Explored
	}
	m.visible = m.visible[:0]

	revealed := 0
	for _, o := range observers {
		if !o.Alive || o.Stealthed || o.Radius < 0 {
			continue
		}
		r := o.Radius
		r2 := r * r
		minY, maxY := clamp(o.Cell.Y-r, m.height), clamp(o.Cell.Y+r, m.height)
		minX, maxX := clamp(o.Cell.X-r, m.width), clamp(o.Cell.X+r, m.width)
		for y := minY; y <= maxY; y++ {
			dy := y - o.Cell.Y
			for x := minX; x <= maxX; x++ {
				dx := x - o.Cell.X
				if dx*dx+dy*dy > r2 {
					continue
				}
				idx := y*m.width + x
				switch m.cells[idx] {
				case Visible:
					continue
				case Unexplored:
					revealed++
					m.explored++
				}
				m.cells[idx] = Visible
				m.visible = append(m.visible, idx)
			}
		}
	}
	return revealed
}

// At returns the state of c. Out-of-bounds cells read Unexplored.
func (m *Map) At(c spatial.Coord) State {
	if c.X < 0 || c.X >= m.width || c.Y < 0 || c.Y >= m.height {
		return Unexplored
	}
	return m.cells[c.Y*m.width+c.X]
}

// IsVisible reports whether c is currently in sight.
func (m *Map) IsVisible(c spatial.Coord) bool { return m.At(c) == Visible }

// IsExplored reports whether c has ever been seen.
func (m *Map) IsExplored(c spatial.Coord) bool { return m.At(c) != Unexplored }

// VisibleCount returns the number of cells currently in sight.
func (m *Map) VisibleCount() int { return len(m.visible) }

// ExploredCount returns the number of cells ever seen.
func (m *Map) ExploredCount() int { return m.explored }

// Width returns the number of columns.
func (m *Map) Width() int { return m.width }

// Height returns the number of rows.
func (m *Map) Height() int { return m.height }

// Snapshot copies the cell states in row-major order.
func (m *Map) Snapshot() []State {
	out := make([]State, len(m.cells))
	copy(out, m.cells)
	return out
}

// clamp bounds v to [0, n-1].
func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}
