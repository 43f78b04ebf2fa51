package spatial

import "sync/atomic"

// FindPath runs A* over the 4-connected grid from start to goal for mover.
//
// Every step costs 1 and the heuristic is Manhattan distance, which is exact
// for an obstacle-free grid and never overestimates otherwise, so returned
// paths are shortest. Among frontier nodes with equal f the one discovered
// first is expanded first.
//
// A goal that is not walkable for mover fails immediately with
// ErrNoPathFound; there is no search for a nearby substitute. start == goal
// yields an empty path. Nothing is cached between calls.
func FindPath(g *Grid, start, goal Coord, mover OccupantID) (*Path, error) {
	if !g.InBounds(start) || !g.IsWalkable(goal, mover) {
		return nil, ErrNoPathFound
	}
	if start == goal {
		return NewPath(nil), nil
	}

	size := g.width * g.height
	gScore := make([]int, size)
	cameFrom := make([]int32, size)
	closed := make([]bool, size)
	for i := range gScore {
		gScore[i] = -1
		cameFrom[i] = -1
	}

	startIdx := g.Index(start)
	goalIdx := g.Index(goal)
	gScore[startIdx] = 0

	open := newOpenSet(64)
	open.push(startIdx, 0, start.Manhattan(goal))

	neighbors := make([]Coord, 0, 4)
	for !open.empty() {
		cur := open.pop()
		if closed[cur.idx] {
			continue
		}
		if cur.idx == goalIdx {
			return NewPath(reconstruct(g, cameFrom, startIdx, goalIdx)), nil
		}
		closed[cur.idx] = true

		neighbors = g.Neighbors(g.CoordAt(cur.idx), neighbors[:0])
		for _, n := range neighbors {
			nIdx := g.Index(n)
			if closed[nIdx] || !g.IsWalkable(n, mover) {
				continue
			}
			tentative := cur.g + 1
			if gScore[nIdx] >= 0 && tentative >= gScore[nIdx] {
				continue
			}
			gScore[nIdx] = tentative
			cameFrom[nIdx] = int32(cur.idx)
			open.push(nIdx, tentative, tentative+n.Manhattan(goal))
		}
	}

	return nil, ErrNoPathFound
}

// reconstruct walks cameFrom back from the goal. The start cell is excluded.
func reconstruct(g *Grid, cameFrom []int32, startIdx, goalIdx int) []Coord {
	n := 0
	for idx := goalIdx; idx != startIdx; idx = int(cameFrom[idx]) {
		n++
	}
	steps := make([]Coord, n)
	for idx := goalIdx; idx != startIdx; idx = int(cameFrom[idx]) {
		n--
		steps[n] = g.CoordAt(idx)
	}
	return steps
}

// Pathfinder binds FindPath to a grid and counts requests for metrics.
type Pathfinder struct {
	grid     *Grid
	requests atomic.Uint64
	failures atomic.Uint64
}

// NewPathfinder creates a pathfinder over g.
func NewPathfinder(g *Grid) *Pathfinder {
	return &Pathfinder{grid: g}
}

// FindPath plans a route on the bound grid.
func (p *Pathfinder) FindPath(start, goal Coord, mover OccupantID) (*Path, error) {
	p.requests.Add(1)
	path, err := FindPath(p.grid, start, goal, mover)
	if err != nil {
		p.failures.Add(1)
	}
	return path, err
}

// PathfinderStats is a point-in-time copy of the counters.
type PathfinderStats struct {
	Requests uint64 `json:"requests"`
	Failures uint64 `json:"failures"`
}

// Stats returns request and failure totals.
func (p *Pathfinder) Stats() PathfinderStats {
	return PathfinderStats{
		Requests: p.requests.Load(),
		Failures: p.failures.Load(),
	}
}
