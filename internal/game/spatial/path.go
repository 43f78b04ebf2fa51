package spatial

// Path is a route owned by a single mover. Steps run from the cell after the
// start up to and including the goal, and are consumed one at a time.
type Path struct {
	steps []Coord
	next  int
}

// NewPath wraps steps. The slice is not copied.
func NewPath(steps []Coord) *Path {
	return &Path{steps: steps}
}

// Peek returns the next step without consuming it.
func (p *Path) Peek() (Coord, bool) {
	if p == nil || p.next >= len(p.steps) {
		return Coord{}, false
	}
	return p.steps[p.next], true
}

// Advance consumes the next step.
func (p *Path) Advance() {
	if p != nil && p.next < len(p.steps) {
		p.next++
	}
}

// Len returns the number of steps left.
func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.steps) - p.next
}

// Done reports whether every step has been consumed.
func (p *Path) Done() bool { return p.Len() == 0 }

// Goal returns the final cell. ok is false for an empty path.
func (p *Path) Goal() (Coord, bool) {
	if p == nil || len(p.steps) == 0 {
		return Coord{}, false
	}
	return p.steps[len(p.steps)-1], true
}

// Remaining returns a copy of the unconsumed steps.
func (p *Path) Remaining() []Coord {
	if p.Len() == 0 {
		return nil
	}
	out := make([]Coord, p.Len())
	copy(out, p.steps[p.next:])
	return out
}
