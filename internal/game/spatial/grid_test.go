package spatial

import (
	"errors"
	"testing"
)

// TestGridOccupancy verifies occupy/vacate semantics and walkability per mover
func TestGridOccupancy(t *testing.T) {
	g := NewGrid(5, 5)
	cell := Coord{X: 2, Y: 2}

	if err := g.Occupy(cell, 7); err != nil {
		t.Fatalf("Occupy failed: %v", err)
	}
	if err := g.Occupy(cell, 7); err != nil {
		t.Errorf("Re-occupying with same id should be a no-op, got %v", err)
	}

	err := g.Occupy(cell, 8)
	var occErr *OccupiedError
	if !errors.As(err, &occErr) {
		t.Fatalf("Expected OccupiedError, got %v", err)
	}
	if occErr.Occupant != 7 || occErr.Cell != cell {
		t.Errorf("Unexpected error contents: %+v", occErr)
	}

	if !g.IsWalkable(cell, 7) {
		t.Error("Cell should be walkable for its own occupant")
	}
	if g.IsWalkable(cell, 8) {
		t.Error("Cell should not be walkable for another mover")
	}

	g.Vacate(cell)
	if g.Occupant(cell) != NoOccupant {
		t.Error("Vacate should clear the occupant")
	}
	if !g.IsWalkable(cell, 8) {
		t.Error("Vacated cell should be walkable")
	}
}

// TestGridBounds verifies out-of-bounds handling
func TestGridBounds(t *testing.T) {
	g := NewGrid(3, 2)

	tests := []struct {
		name string
		c    Coord
		in   bool
	}{
		{"origin", Coord{0, 0}, true},
		{"last cell", Coord{2, 1}, true},
		{"negative x", Coord{-1, 0}, false},
		{"past width", Coord{3, 0}, false},
		{"past height", Coord{0, 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.InBounds(tt.c); got != tt.in {
				t.Errorf("InBounds(%v) = %v, want %v", tt.c, got, tt.in)
			}
			if !tt.in {
				if g.IsWalkable(tt.c, 1) {
					t.Error("Out-of-bounds cell should never be walkable")
				}
				if err := g.Occupy(tt.c, 1); !errors.Is(err, ErrOutOfBounds) {
					t.Errorf("Expected ErrOutOfBounds, got %v", err)
				}
			}
		})
	}
}

// TestNeighborsOrder verifies 4-connectivity and the fixed Up, Right, Down, Left order
func TestNeighborsOrder(t *testing.T) {
	g := NewGrid(3, 3)

	got := g.Neighbors(Coord{1, 1}, nil)
	want := []Coord{{1, 0}, {2, 1}, {1, 2}, {0, 1}}
	if len(got) != len(want) {
		t.Fatalf("Expected %d neighbors, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Neighbor %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	corner := g.Neighbors(Coord{0, 0}, nil)
	if len(corner) != 2 {
		t.Errorf("Corner should have 2 neighbors, got %d", len(corner))
	}
}

// TestImpassableTerrain verifies terrain blocks every mover
func TestImpassableTerrain(t *testing.T) {
	g := NewGrid(4, 4)
	rock := Coord{1, 1}
	g.SetPassable(rock, false)

	if g.IsWalkable(rock, NoOccupant) {
		t.Error("Rock should not be walkable")
	}
	if g.Passable(rock) {
		t.Error("Rock should not be passable")
	}
}

// TestSnapshotIsCopy verifies the snapshot does not alias grid storage
func TestSnapshotIsCopy(t *testing.T) {
	g := NewGrid(2, 2)
	snap := g.Snapshot()

	g.SetPassable(Coord{0, 0}, false)
	if err := g.Occupy(Coord{1, 1}, 3); err != nil {
		t.Fatal(err)
	}

	if !snap.IsPassable(Coord{0, 0}) {
		t.Error("Snapshot terrain changed after grid mutation")
	}
	if snap.Occupant[3] != NoOccupant {
		t.Error("Snapshot occupancy changed after grid mutation")
	}
}
