package game

import (
	"errors"
	"fmt"

	"microcraft/internal/game/spatial"
)

// ErrInboxFull is returned by Submit when the command inbox is saturated.
var ErrInboxFull = errors.New("game: command inbox full")

// Rejection reasons. They double as metric labels, so keep the set small.
const (
	ReasonUnknownEntity  = "unknown entity"
	ReasonNotOwned       = "not owned"
	ReasonDead           = "entity dead"
	ReasonIncapable      = "entity cannot do that"
	ReasonNoUnits        = "no units"
	ReasonOutOfBounds    = "target out of bounds"
	ReasonNotVisible     = "target not visible"
	ReasonNotEnemy       = "target not hostile"
	ReasonNotExplored    = "site not explored"
	ReasonSiteBlocked    = "site blocked"
	ReasonInsufficient   = "insufficient minerals"
	ReasonQueueFull      = "queue full"
	ReasonIncomplete     = "building incomplete"
	ReasonNoMineral      = "no mineral patch"
	ReasonEliminated     = "faction eliminated"
	ReasonUnknownCommand = "unknown command"
)

// InvalidCommandError reports a command that failed validation. The
// simulation carries on; a command_rejected event is emitted instead.
type InvalidCommandError struct {
	Type    CommandType
	Faction Faction
	Reason  string
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("game: %s command from faction %d rejected: %s", e.Type, e.Faction, e.Reason)
}

func reject(cmd Command, reason string) *InvalidCommandError {
	return &InvalidCommandError{Type: cmd.Type, Faction: cmd.Faction, Reason: reason}
}

// InconsistentStateError reports a broken occupancy invariant. It is fatal:
// the tick driver halts.
type InconsistentStateError struct {
	Cell   spatial.Coord
	Entity EntityID
	Detail string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("game: inconsistent state at (%d,%d) entity %d: %s", e.Cell.X, e.Cell.Y, e.Entity, e.Detail)
}
