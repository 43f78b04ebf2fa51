package spatial

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPathFound is returned when the goal is unreachable or is not
	// walkable for the mover. It is never fatal; movers hold position.
	ErrNoPathFound = errors.New("spatial: no path found")

	// ErrOutOfBounds is returned for coordinates outside the map.
	ErrOutOfBounds = errors.New("spatial: cell out of bounds")
)

// OccupiedError reports an attempt to claim a cell held by another entity.
type OccupiedError struct {
	Cell     Coord
	Occupant OccupantID
}

func (e *OccupiedError) Error() string {
	return fmt.Sprintf("spatial: cell (%d,%d) occupied by entity %d", e.Cell.X, e.Cell.Y, e.Occupant)
}
