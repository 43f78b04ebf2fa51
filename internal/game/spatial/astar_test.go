package spatial

import (
	"errors"
	"math/rand"
	"testing"
)

// TestFindPathOpenGrid verifies the shortest 4-connected path on an empty map
func TestFindPathOpenGrid(t *testing.T) {
	g := NewGrid(10, 10)
	start := Coord{0, 0}
	goal := Coord{3, 4}

	path, err := FindPath(g, start, goal, 1)
	if err != nil {
		t.Fatalf("FindPath failed: %v", err)
	}
	if path.Len() != 7 {
		t.Errorf("Expected path length 7, got %d", path.Len())
	}

	prev := start
	for {
		step, ok := path.Peek()
		if !ok {
			break
		}
		if prev.Manhattan(step) != 1 {
			t.Errorf("Step %v -> %v is not a single orthogonal move", prev, step)
		}
		prev = step
		path.Advance()
	}
	if prev != goal {
		t.Errorf("Path should end at goal %v, ended at %v", goal, prev)
	}
}

// TestFindPathStartIsGoal verifies an empty path for a zero-length request
func TestFindPathStartIsGoal(t *testing.T) {
	g := NewGrid(4, 4)
	path, err := FindPath(g, Coord{2, 2}, Coord{2, 2}, 1)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !path.Done() {
		t.Errorf("Expected empty path, got %d steps", path.Len())
	}
}

// TestFindPathBlockedGoal verifies blocked goals fail without a partial path
func TestFindPathBlockedGoal(t *testing.T) {
	tests := []struct {
		name  string
		setup func(g *Grid)
		goal  Coord
	}{
		{
			name: "goal occupied by enemy building",
			setup: func(g *Grid) {
				_ = g.Occupy(Coord{8, 8}, 42)
			},
			goal: Coord{8, 8},
		},
		{
			name: "goal on impassable terrain",
			setup: func(g *Grid) {
				g.SetPassable(Coord{5, 5}, false)
			},
			goal: Coord{5, 5},
		},
		{
			name:  "goal out of bounds",
			setup: func(g *Grid) {},
			goal:  Coord{10, 3},
		},
		{
			name: "goal walled off",
			setup: func(g *Grid) {
				for x := 0; x < 10; x++ {
					g.SetPassable(Coord{x, 5}, false)
				}
			},
			goal: Coord{4, 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGrid(10, 10)
			tt.setup(g)
			path, err := FindPath(g, Coord{0, 0}, tt.goal, 1)
			if !errors.Is(err, ErrNoPathFound) {
				t.Errorf("Expected ErrNoPathFound, got %v", err)
			}
			if path != nil {
				t.Error("Expected nil path on failure")
			}
		})
	}
}

// TestFindPathAvoidsOccupants verifies the mover routes around other units
func TestFindPathAvoidsOccupants(t *testing.T) {
	g := NewGrid(5, 3)
	// Wall with a single gap at the bottom, plus a unit in the gap
	g.SetPassable(Coord{2, 0}, false)
	g.SetPassable(Coord{2, 1}, false)

	path, err := FindPath(g, Coord{0, 0}, Coord{4, 0}, 1)
	if err != nil {
		t.Fatalf("FindPath failed: %v", err)
	}
	for _, c := range path.Remaining() {
		if !g.Passable(c) {
			t.Errorf("Path crosses impassable cell %v", c)
		}
	}

	_ = g.Occupy(Coord{2, 2}, 9)
	if _, err := FindPath(g, Coord{0, 0}, Coord{4, 0}, 1); !errors.Is(err, ErrNoPathFound) {
		t.Errorf("Expected ErrNoPathFound with gap occupied, got %v", err)
	}
	if _, err := FindPath(g, Coord{0, 0}, Coord{4, 0}, 9); err != nil {
		t.Errorf("Occupant should be able to route through its own cell, got %v", err)
	}
}

// TestFindPathDeterministic verifies identical inputs give identical routes
func TestFindPathDeterministic(t *testing.T) {
	g := NewGrid(12, 12)
	first, err := FindPath(g, Coord{1, 1}, Coord{9, 7}, 1)
	if err != nil {
		t.Fatal(err)
	}
	a := first.Remaining()
	for i := 0; i < 5; i++ {
		p, _ := FindPath(g, Coord{1, 1}, Coord{9, 7}, 1)
		b := p.Remaining()
		for j := range a {
			if a[j] != b[j] {
				t.Fatalf("Run %d differs at step %d: %v vs %v", i, j, a[j], b[j])
			}
		}
	}
}

// TestFindPathMatchesDistanceField checks A* length against a BFS oracle on random maps
func TestFindPathMatchesDistanceField(t *testing.T) {
	rng := rand.New(rand.NewSource(1234))

	for trial := 0; trial < 50; trial++ {
		g := NewGrid(16, 12)
		for i := 0; i < 50; i++ {
			g.SetPassable(Coord{rng.Intn(16), rng.Intn(12)}, false)
		}
		start := Coord{0, 0}
		goal := Coord{15, 11}
		g.SetPassable(start, true)
		g.SetPassable(goal, true)

		field := NewDistanceField(g)
		field.Generate(g, []Coord{goal})
		want := field.Distance(start)

		path, err := FindPath(g, start, goal, 1)
		if want == Unreachable {
			if !errors.Is(err, ErrNoPathFound) {
				t.Errorf("Trial %d: expected ErrNoPathFound, got %v", trial, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Trial %d: expected path of %d, got %v", trial, want, err)
			continue
		}
		if path.Len() != want {
			t.Errorf("Trial %d: A* length %d, BFS distance %d", trial, path.Len(), want)
		}
	}
}

// TestPathfinderStats verifies request and failure counting
func TestPathfinderStats(t *testing.T) {
	g := NewGrid(4, 4)
	_ = g.Occupy(Coord{3, 3}, 5)
	pf := NewPathfinder(g)

	_, _ = pf.FindPath(Coord{0, 0}, Coord{2, 2}, 1)
	_, _ = pf.FindPath(Coord{0, 0}, Coord{3, 3}, 1)

	stats := pf.Stats()
	if stats.Requests != 2 {
		t.Errorf("Expected 2 requests, got %d", stats.Requests)
	}
	if stats.Failures != 1 {
		t.Errorf("Expected 1 failure, got %d", stats.Failures)
	}
}

// BenchmarkFindPath measures a corner-to-corner search on a 64x64 map
func BenchmarkFindPath(b *testing.B) {
	g := NewGrid(64, 64)
	for y := 4; y < 60; y += 8 {
		for x := 0; x < 56; x++ {
			g.SetPassable(Coord{x, y}, false)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = FindPath(g, Coord{0, 0}, Coord{63, 63}, 1)
	}
}
